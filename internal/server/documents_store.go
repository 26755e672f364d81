package server

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinvera/clinvera/internal/ingest"
	"github.com/clinvera/clinvera/pkg/httperr"
)

// DocumentStore persists ingestion records. SaveDocument upserts: the
// pipeline writes the same record once per status transition.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]ingest.Document, error)
	GetDocument(ctx context.Context, id string) (ingest.Document, error)
	SaveDocument(ctx context.Context, doc ingest.Document) error
}

// --- postgres ---

type pgDocumentStore struct {
	pool *pgxpool.Pool
}

func NewPGDocumentStore(pool *pgxpool.Pool) DocumentStore {
	return &pgDocumentStore{pool: pool}
}

func (s *pgDocumentStore) ListDocuments(ctx context.Context) ([]ingest.Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM documents ORDER BY uploaded_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ingest.Document
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var d ingest.Document
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgDocumentStore) GetDocument(ctx context.Context, id string) (ingest.Document, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM documents WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.Document{}, httperr.NewNotFound("document not found: " + id)
	}
	if err != nil {
		return ingest.Document{}, err
	}
	var d ingest.Document
	if err := json.Unmarshal(doc, &d); err != nil {
		return ingest.Document{}, err
	}
	return d, nil
}

func (s *pgDocumentStore) SaveDocument(ctx context.Context, d ingest.Document) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, uploaded_at, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		d.ID, d.UploadedAt, doc)
	return err
}

// --- memory ---

type memDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]ingest.Document
}

func NewMemDocumentStore() DocumentStore {
	return &memDocumentStore{docs: make(map[string]ingest.Document)}
}

func (s *memDocumentStore) ListDocuments(_ context.Context) ([]ingest.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memDocumentStore) GetDocument(_ context.Context, id string) (ingest.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return ingest.Document{}, httperr.NewNotFound("document not found: " + id)
	}
	return d, nil
}

func (s *memDocumentStore) SaveDocument(_ context.Context, d ingest.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d
	return nil
}

// extractedStudyWriter adapts the study store to the ingestion
// pipeline's persistence stage.
type extractedStudyWriter struct {
	studies StudyStore
}

func NewExtractedStudyWriter(studies StudyStore) ingest.StudyWriter {
	return &extractedStudyWriter{studies: studies}
}

func (w *extractedStudyWriter) SaveExtractedStudy(ctx context.Context, extract ingest.StudyExtract, studyID string, actor string) (string, error) {
	draft := StudyDraft{
		ProtocolNumber: extract.ProtocolNumber,
		Title:          extract.Title,
		Phase:          extract.Phase,
		Status:         StudyStatusDraft,
		Sponsor:        extract.Sponsor,
		Indication:     extract.Indication,
		Objectives:     extract.Objectives,
		Assessments:    extract.Assessments,
	}
	for _, arm := range extract.Arms {
		draft.Arms = append(draft.Arms, StudyArm{Name: arm})
	}
	for _, visit := range extract.Visits {
		draft.Visits = append(draft.Visits, StudyVisit{Name: visit})
	}

	if studyID == "" {
		st, err := w.studies.CreateStudy(ctx, draft, actor)
		if err != nil {
			return "", err
		}
		return st.ID, nil
	}

	// updating an existing study: extracted fields win where present,
	// everything else is kept
	current, err := w.studies.GetStudy(ctx, studyID)
	if err != nil {
		return "", err
	}
	draft.Status = current.Status
	if draft.Phase == "" {
		draft.Phase = current.Phase
	}
	if draft.Sponsor == "" {
		draft.Sponsor = current.Sponsor
	}
	if draft.Indication == "" {
		draft.Indication = current.Indication
	}
	if len(draft.Arms) == 0 {
		draft.Arms = current.Arms
	}
	if len(draft.Objectives) == 0 {
		draft.Objectives = current.Objectives
	}
	if len(draft.Visits) == 0 {
		draft.Visits = current.Visits
	}
	if len(draft.Assessments) == 0 {
		draft.Assessments = current.Assessments
	}
	st, err := w.studies.UpdateStudy(ctx, studyID, draft, actor)
	if err != nil {
		return "", err
	}
	return st.ID, nil
}
