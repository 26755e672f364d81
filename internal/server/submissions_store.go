package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinvera/clinvera/internal/formengine"
	"github.com/clinvera/clinvera/pkg/httperr"
	"github.com/clinvera/clinvera/pkg/uuidv7"
)

// Submission is an accepted values snapshot for one form. Submissions
// are immutable; corrections arrive as new submissions.
type Submission struct {
	ID          string                  `json:"id"`
	FormID      string                  `json:"formId"`
	StudyID     string                  `json:"studyId"`
	FormVersion int                     `json:"formVersion"`
	Values      formengine.FormValues   `json:"values"`
	Policy      formengine.SubmitPolicy `json:"policy"`
	SubmittedBy string                  `json:"submittedBy"`
	SubmittedAt time.Time               `json:"submittedAt"`
}

func NewSubmission(form FormDefinition, values formengine.FormValues, policy formengine.SubmitPolicy, actor string) Submission {
	return Submission{
		ID:          uuidv7.MustNewString(),
		FormID:      form.ID,
		StudyID:     form.StudyID,
		FormVersion: form.Version,
		Values:      values,
		Policy:      policy,
		SubmittedBy: actor,
		SubmittedAt: time.Now().UTC(),
	}
}

type SubmissionStore interface {
	ListSubmissions(ctx context.Context, formID string, studyID string) ([]Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
}

// --- postgres ---

type pgSubmissionStore struct {
	pool *pgxpool.Pool
}

func NewPGSubmissionStore(pool *pgxpool.Pool) SubmissionStore {
	return &pgSubmissionStore{pool: pool}
}

func (s *pgSubmissionStore) ListSubmissions(ctx context.Context, formID string, studyID string) ([]Submission, error) {
	query := `SELECT doc FROM submissions`
	var where []string
	var args []any
	if formID != "" {
		args = append(args, formID)
		where = append(where, fmt.Sprintf("form_id = $%d", len(args)))
	}
	if studyID != "" {
		args = append(args, studyID)
		where = append(where, fmt.Sprintf("doc->>'studyId' = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY submitted_at, id`
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var sub Submission
		if err := json.Unmarshal(doc, &sub); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *pgSubmissionStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM submissions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Submission{}, httperr.NewNotFound("submission not found: " + id)
	}
	if err != nil {
		return Submission{}, err
	}
	var sub Submission
	if err := json.Unmarshal(doc, &sub); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (s *pgSubmissionStore) CreateSubmission(ctx context.Context, sub Submission) (Submission, error) {
	doc, err := json.Marshal(sub)
	if err != nil {
		return Submission{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO submissions (id, form_id, submitted_at, doc) VALUES ($1, $2, $3, $4)`,
		sub.ID, sub.FormID, sub.SubmittedAt, doc)
	if err != nil {
		return Submission{}, err
	}
	return sub, nil
}

// --- memory ---

type memSubmissionStore struct {
	mu   sync.RWMutex
	subs map[string]Submission
}

func NewMemSubmissionStore() SubmissionStore {
	return &memSubmissionStore{subs: make(map[string]Submission)}
}

func (s *memSubmissionStore) ListSubmissions(_ context.Context, formID string, studyID string) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Submission
	for _, sub := range s.subs {
		if formID != "" && sub.FormID != formID {
			continue
		}
		if studyID != "" && sub.StudyID != studyID {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memSubmissionStore) GetSubmission(_ context.Context, id string) (Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return Submission{}, httperr.NewNotFound("submission not found: " + id)
	}
	return sub, nil
}

func (s *memSubmissionStore) CreateSubmission(_ context.Context, sub Submission) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	return sub, nil
}
