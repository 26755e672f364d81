package server

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinvera/clinvera/pkg/httperr"
	"github.com/clinvera/clinvera/pkg/uuidv7"
)

// Study is the protocol-level aggregate. Arms, objectives, visits and
// assessments are embedded documents; they have no life cycle of their
// own outside the study.
type Study struct {
	ID             string       `json:"id"`
	ProtocolNumber string       `json:"protocolNumber"`
	Title          string       `json:"title"`
	Phase          string       `json:"phase,omitempty"`
	Status         string       `json:"status"`
	Sponsor        string       `json:"sponsor,omitempty"`
	Indication     string       `json:"indication,omitempty"`
	Arms           []StudyArm   `json:"arms,omitempty"`
	Objectives     []string     `json:"objectives,omitempty"`
	Visits         []StudyVisit `json:"visits,omitempty"`
	Assessments    []string     `json:"assessments,omitempty"`
	CreatedBy      string       `json:"createdBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedBy      string       `json:"updatedBy"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type StudyArm struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type StudyVisit struct {
	Name      string `json:"name"`
	Day       int    `json:"day,omitempty"`
	WindowLow int    `json:"windowLow,omitempty"`
	WindowHi  int    `json:"windowHi,omitempty"`
}

const (
	StudyStatusDraft     = "DRAFT"
	StudyStatusActive    = "ACTIVE"
	StudyStatusCompleted = "COMPLETED"
	StudyStatusArchived  = "ARCHIVED"
)

func validStudyStatus(s string) bool {
	switch s {
	case StudyStatusDraft, StudyStatusActive, StudyStatusCompleted, StudyStatusArchived:
		return true
	}
	return false
}

// StudyDraft carries the caller-supplied fields of a create or update.
type StudyDraft struct {
	ProtocolNumber string       `json:"protocolNumber"`
	Title          string       `json:"title"`
	Phase          string       `json:"phase,omitempty"`
	Status         string       `json:"status,omitempty"`
	Sponsor        string       `json:"sponsor,omitempty"`
	Indication     string       `json:"indication,omitempty"`
	Arms           []StudyArm   `json:"arms,omitempty"`
	Objectives     []string     `json:"objectives,omitempty"`
	Visits         []StudyVisit `json:"visits,omitempty"`
	Assessments    []string     `json:"assessments,omitempty"`
}

func (d *StudyDraft) normalize() error {
	d.ProtocolNumber = strings.TrimSpace(d.ProtocolNumber)
	d.Title = strings.TrimSpace(d.Title)
	if d.ProtocolNumber == "" {
		return httperr.NewBadRequest("protocolNumber is required")
	}
	if d.Title == "" {
		return httperr.NewBadRequest("title is required")
	}
	if d.Status == "" {
		d.Status = StudyStatusDraft
	}
	if !validStudyStatus(d.Status) {
		return httperr.NewBadRequest("invalid status: " + d.Status)
	}
	return nil
}

type StudyStore interface {
	ListStudies(ctx context.Context) ([]Study, error)
	GetStudy(ctx context.Context, id string) (Study, error)
	CreateStudy(ctx context.Context, draft StudyDraft, actor string) (Study, error)
	UpdateStudy(ctx context.Context, id string, draft StudyDraft, actor string) (Study, error)
	DeleteStudy(ctx context.Context, id string) error
}

// --- postgres ---

type pgStudyStore struct {
	pool *pgxpool.Pool
}

func NewPGStudyStore(pool *pgxpool.Pool) StudyStore {
	return &pgStudyStore{pool: pool}
}

func (s *pgStudyStore) ListStudies(ctx context.Context) ([]Study, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM studies ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Study
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var st Study
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *pgStudyStore) GetStudy(ctx context.Context, id string) (Study, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM studies WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Study{}, httperr.NewNotFound("study not found: " + id)
	}
	if err != nil {
		return Study{}, err
	}
	var st Study
	if err := json.Unmarshal(doc, &st); err != nil {
		return Study{}, err
	}
	return st, nil
}

func (s *pgStudyStore) CreateStudy(ctx context.Context, draft StudyDraft, actor string) (Study, error) {
	if err := draft.normalize(); err != nil {
		return Study{}, err
	}

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM studies WHERE protocol_number = $1)`,
		draft.ProtocolNumber).Scan(&exists)
	if err != nil {
		return Study{}, err
	}
	if exists {
		return Study{}, httperr.NewConflict("protocol number already exists: " + draft.ProtocolNumber)
	}

	st := studyFromDraft(uuidv7.MustNewString(), draft, actor, time.Now().UTC())
	doc, err := json.Marshal(st)
	if err != nil {
		return Study{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO studies (id, protocol_number, created_at, doc) VALUES ($1, $2, $3, $4)`,
		st.ID, st.ProtocolNumber, st.CreatedAt, doc)
	if err != nil {
		return Study{}, err
	}
	return st, nil
}

func (s *pgStudyStore) UpdateStudy(ctx context.Context, id string, draft StudyDraft, actor string) (Study, error) {
	if err := draft.normalize(); err != nil {
		return Study{}, err
	}
	current, err := s.GetStudy(ctx, id)
	if err != nil {
		return Study{}, err
	}

	if draft.ProtocolNumber != current.ProtocolNumber {
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM studies WHERE protocol_number = $1 AND id <> $2)`,
			draft.ProtocolNumber, id).Scan(&exists)
		if err != nil {
			return Study{}, err
		}
		if exists {
			return Study{}, httperr.NewConflict("protocol number already exists: " + draft.ProtocolNumber)
		}
	}

	st := applyStudyDraft(current, draft, actor, time.Now().UTC())
	doc, err := json.Marshal(st)
	if err != nil {
		return Study{}, err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE studies SET protocol_number = $2, doc = $3 WHERE id = $1`,
		id, st.ProtocolNumber, doc)
	if err != nil {
		return Study{}, err
	}
	return st, nil
}

func (s *pgStudyStore) DeleteStudy(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM studies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NewNotFound("study not found: " + id)
	}
	return nil
}

// --- memory ---

type memStudyStore struct {
	mu      sync.RWMutex
	studies map[string]Study
}

func NewMemStudyStore() StudyStore {
	return &memStudyStore{studies: make(map[string]Study)}
}

func (s *memStudyStore) ListStudies(_ context.Context) ([]Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Study, 0, len(s.studies))
	for _, st := range s.studies {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStudyStore) GetStudy(_ context.Context, id string) (Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.studies[id]
	if !ok {
		return Study{}, httperr.NewNotFound("study not found: " + id)
	}
	return st, nil
}

func (s *memStudyStore) CreateStudy(_ context.Context, draft StudyDraft, actor string) (Study, error) {
	if err := draft.normalize(); err != nil {
		return Study{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.studies {
		if st.ProtocolNumber == draft.ProtocolNumber {
			return Study{}, httperr.NewConflict("protocol number already exists: " + draft.ProtocolNumber)
		}
	}
	st := studyFromDraft(uuidv7.MustNewString(), draft, actor, time.Now().UTC())
	s.studies[st.ID] = st
	return st, nil
}

func (s *memStudyStore) UpdateStudy(_ context.Context, id string, draft StudyDraft, actor string) (Study, error) {
	if err := draft.normalize(); err != nil {
		return Study{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.studies[id]
	if !ok {
		return Study{}, httperr.NewNotFound("study not found: " + id)
	}
	for otherID, st := range s.studies {
		if otherID != id && st.ProtocolNumber == draft.ProtocolNumber {
			return Study{}, httperr.NewConflict("protocol number already exists: " + draft.ProtocolNumber)
		}
	}
	st := applyStudyDraft(current, draft, actor, time.Now().UTC())
	s.studies[id] = st
	return st, nil
}

func (s *memStudyStore) DeleteStudy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[id]; !ok {
		return httperr.NewNotFound("study not found: " + id)
	}
	delete(s.studies, id)
	return nil
}

func studyFromDraft(id string, draft StudyDraft, actor string, now time.Time) Study {
	return Study{
		ID:             id,
		ProtocolNumber: draft.ProtocolNumber,
		Title:          draft.Title,
		Phase:          draft.Phase,
		Status:         draft.Status,
		Sponsor:        draft.Sponsor,
		Indication:     draft.Indication,
		Arms:           draft.Arms,
		Objectives:     draft.Objectives,
		Visits:         draft.Visits,
		Assessments:    draft.Assessments,
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedBy:      actor,
		UpdatedAt:      now,
	}
}

func applyStudyDraft(current Study, draft StudyDraft, actor string, now time.Time) Study {
	st := studyFromDraft(current.ID, draft, actor, now)
	st.CreatedBy = current.CreatedBy
	st.CreatedAt = current.CreatedAt
	return st
}
