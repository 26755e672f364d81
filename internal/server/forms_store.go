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

	"github.com/clinvera/clinvera/internal/editcheck"
	"github.com/clinvera/clinvera/internal/formengine"
	"github.com/clinvera/clinvera/pkg/httperr"
	"github.com/clinvera/clinvera/pkg/uuidv7"
)

// FormDefinition is a versioned CRF (case report form) design: the
// declarative field spec the engine evaluates, plus the cross-field
// edit checks and the submit policy governing it.
type FormDefinition struct {
	ID           string                  `json:"id"`
	StudyID      string                  `json:"studyId"`
	OID          string                  `json:"oid"`
	Name         string                  `json:"name"`
	Version      int                     `json:"version"`
	Spec         formengine.FormSpec     `json:"spec"`
	EditChecks   []editcheck.Check       `json:"editChecks,omitempty"`
	SubmitPolicy formengine.SubmitPolicy `json:"submitPolicy"`
	CreatedBy    string                  `json:"createdBy"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedBy    string                  `json:"updatedBy"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}

type FormDraft struct {
	StudyID      string              `json:"studyId"`
	OID          string              `json:"oid"`
	Name         string              `json:"name"`
	Spec         formengine.FormSpec `json:"spec"`
	EditChecks   []editcheck.Check   `json:"editChecks,omitempty"`
	SubmitPolicy string              `json:"submitPolicy,omitempty"`
}

type FormStore interface {
	ListForms(ctx context.Context, studyID string) ([]FormDefinition, error)
	GetForm(ctx context.Context, id string) (FormDefinition, error)
	CreateForm(ctx context.Context, form FormDefinition) (FormDefinition, error)
	UpdateForm(ctx context.Context, form FormDefinition) (FormDefinition, error)
	DeleteForm(ctx context.Context, id string) error
}

// NewFormDefinition assembles a persistable definition from a draft
// that already passed validation.
func NewFormDefinition(draft FormDraft, policy formengine.SubmitPolicy, actor string) FormDefinition {
	now := time.Now().UTC()
	return FormDefinition{
		ID:           uuidv7.MustNewString(),
		StudyID:      strings.TrimSpace(draft.StudyID),
		OID:          strings.TrimSpace(draft.OID),
		Name:         strings.TrimSpace(draft.Name),
		Version:      1,
		Spec:         draft.Spec,
		EditChecks:   draft.EditChecks,
		SubmitPolicy: policy,
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedBy:    actor,
		UpdatedAt:    now,
	}
}

// --- postgres ---

type pgFormStore struct {
	pool *pgxpool.Pool
}

func NewPGFormStore(pool *pgxpool.Pool) FormStore {
	return &pgFormStore{pool: pool}
}

func (s *pgFormStore) ListForms(ctx context.Context, studyID string) ([]FormDefinition, error) {
	query := `SELECT doc FROM forms ORDER BY created_at, id`
	args := []any{}
	if studyID != "" {
		query = `SELECT doc FROM forms WHERE study_id = $1 ORDER BY created_at, id`
		args = append(args, studyID)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FormDefinition
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var form FormDefinition
		if err := json.Unmarshal(doc, &form); err != nil {
			return nil, err
		}
		out = append(out, form)
	}
	return out, rows.Err()
}

func (s *pgFormStore) GetForm(ctx context.Context, id string) (FormDefinition, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM forms WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return FormDefinition{}, httperr.NewNotFound("form not found: " + id)
	}
	if err != nil {
		return FormDefinition{}, err
	}
	var form FormDefinition
	if err := json.Unmarshal(doc, &form); err != nil {
		return FormDefinition{}, err
	}
	return form, nil
}

func (s *pgFormStore) CreateForm(ctx context.Context, form FormDefinition) (FormDefinition, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM forms WHERE study_id = $1 AND oid = $2)`,
		form.StudyID, form.OID).Scan(&exists)
	if err != nil {
		return FormDefinition{}, err
	}
	if exists {
		return FormDefinition{}, httperr.NewConflict("form OID already exists in study: " + form.OID)
	}

	doc, err := json.Marshal(form)
	if err != nil {
		return FormDefinition{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO forms (id, study_id, oid, created_at, doc) VALUES ($1, $2, $3, $4, $5)`,
		form.ID, form.StudyID, form.OID, form.CreatedAt, doc)
	if err != nil {
		return FormDefinition{}, err
	}
	return form, nil
}

func (s *pgFormStore) UpdateForm(ctx context.Context, form FormDefinition) (FormDefinition, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM forms WHERE study_id = $1 AND oid = $2 AND id <> $3)`,
		form.StudyID, form.OID, form.ID).Scan(&exists)
	if err != nil {
		return FormDefinition{}, err
	}
	if exists {
		return FormDefinition{}, httperr.NewConflict("form OID already exists in study: " + form.OID)
	}

	doc, err := json.Marshal(form)
	if err != nil {
		return FormDefinition{}, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE forms SET study_id = $2, oid = $3, doc = $4 WHERE id = $1`,
		form.ID, form.StudyID, form.OID, doc)
	if err != nil {
		return FormDefinition{}, err
	}
	if tag.RowsAffected() == 0 {
		return FormDefinition{}, httperr.NewNotFound("form not found: " + form.ID)
	}
	return form, nil
}

func (s *pgFormStore) DeleteForm(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM forms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NewNotFound("form not found: " + id)
	}
	return nil
}

// --- memory ---

type memFormStore struct {
	mu    sync.RWMutex
	forms map[string]FormDefinition
}

func NewMemFormStore() FormStore {
	return &memFormStore{forms: make(map[string]FormDefinition)}
}

func (s *memFormStore) ListForms(_ context.Context, studyID string) ([]FormDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FormDefinition
	for _, form := range s.forms {
		if studyID != "" && form.StudyID != studyID {
			continue
		}
		out = append(out, form)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memFormStore) GetForm(_ context.Context, id string) (FormDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	form, ok := s.forms[id]
	if !ok {
		return FormDefinition{}, httperr.NewNotFound("form not found: " + id)
	}
	return form, nil
}

func (s *memFormStore) CreateForm(_ context.Context, form FormDefinition) (FormDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.forms {
		if existing.StudyID == form.StudyID && existing.OID == form.OID {
			return FormDefinition{}, httperr.NewConflict("form OID already exists in study: " + form.OID)
		}
	}
	s.forms[form.ID] = form
	return form, nil
}

func (s *memFormStore) UpdateForm(_ context.Context, form FormDefinition) (FormDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forms[form.ID]; !ok {
		return FormDefinition{}, httperr.NewNotFound("form not found: " + form.ID)
	}
	for id, existing := range s.forms {
		if id != form.ID && existing.StudyID == form.StudyID && existing.OID == form.OID {
			return FormDefinition{}, httperr.NewConflict("form OID already exists in study: " + form.OID)
		}
	}
	s.forms[form.ID] = form
	return form, nil
}

func (s *memFormStore) DeleteForm(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forms[id]; !ok {
		return httperr.NewNotFound("form not found: " + id)
	}
	delete(s.forms, id)
	return nil
}
