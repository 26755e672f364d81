package server

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinvera/clinvera/internal/formengine"
	"github.com/clinvera/clinvera/pkg/httperr"
)

var codeListCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,63}$`)

// CodeList is a controlled terminology: a named set of coded values
// that SELECT-like fields reference by code.
type CodeList struct {
	Code      string                     `json:"code"`
	Name      string                     `json:"name"`
	Values    []formengine.CodeListValue `json:"values"`
	CreatedBy string                     `json:"createdBy"`
	CreatedAt time.Time                  `json:"createdAt"`
	UpdatedBy string                     `json:"updatedBy"`
	UpdatedAt time.Time                  `json:"updatedAt"`
}

type CodeListDraft struct {
	Code   string                     `json:"code"`
	Name   string                     `json:"name"`
	Values []formengine.CodeListValue `json:"values"`
}

func (d *CodeListDraft) normalize() error {
	d.Code = strings.TrimSpace(d.Code)
	d.Name = strings.TrimSpace(d.Name)
	if !codeListCodePattern.MatchString(d.Code) {
		return httperr.NewBadRequest("invalid codelist code")
	}
	if d.Name == "" {
		return httperr.NewBadRequest("name is required")
	}
	if len(d.Values) == 0 {
		return httperr.NewBadRequest("values are required")
	}
	seen := make(map[string]bool, len(d.Values))
	for _, v := range d.Values {
		if strings.TrimSpace(v.Code) == "" {
			return httperr.NewBadRequest("value code is required")
		}
		if seen[v.Code] {
			return httperr.NewBadRequest("duplicate value code: " + v.Code)
		}
		seen[v.Code] = true
	}
	return nil
}

type CodeListStore interface {
	ListCodeLists(ctx context.Context) ([]CodeList, error)
	GetCodeList(ctx context.Context, code string) (CodeList, error)
	PutCodeList(ctx context.Context, draft CodeListDraft, actor string) (CodeList, bool, error)
	DeleteCodeList(ctx context.Context, code string) error
}

// --- postgres ---

type pgCodeListStore struct {
	pool *pgxpool.Pool
}

func NewPGCodeListStore(pool *pgxpool.Pool) CodeListStore {
	return &pgCodeListStore{pool: pool}
}

func (s *pgCodeListStore) ListCodeLists(ctx context.Context) ([]CodeList, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM codelists ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CodeList
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var cl CodeList
		if err := json.Unmarshal(doc, &cl); err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, rows.Err()
}

func (s *pgCodeListStore) GetCodeList(ctx context.Context, code string) (CodeList, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM codelists WHERE code = $1`, code).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return CodeList{}, httperr.NewNotFound("codelist not found: " + code)
	}
	if err != nil {
		return CodeList{}, err
	}
	var cl CodeList
	if err := json.Unmarshal(doc, &cl); err != nil {
		return CodeList{}, err
	}
	return cl, nil
}

// PutCodeList upserts by code. The boolean result reports whether the
// list was created rather than replaced.
func (s *pgCodeListStore) PutCodeList(ctx context.Context, draft CodeListDraft, actor string) (CodeList, bool, error) {
	if err := draft.normalize(); err != nil {
		return CodeList{}, false, err
	}
	now := time.Now().UTC()

	current, err := s.GetCodeList(ctx, draft.Code)
	created := httperr.IsNotFound(err)
	if err != nil && !created {
		return CodeList{}, false, err
	}

	cl := codeListFromDraft(draft, current, created, actor, now)
	doc, err := json.Marshal(cl)
	if err != nil {
		return CodeList{}, false, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO codelists (code, doc) VALUES ($1, $2)
		 ON CONFLICT (code) DO UPDATE SET doc = EXCLUDED.doc`,
		cl.Code, doc)
	if err != nil {
		return CodeList{}, false, err
	}
	return cl, created, nil
}

func (s *pgCodeListStore) DeleteCodeList(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM codelists WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NewNotFound("codelist not found: " + code)
	}
	return nil
}

// --- memory ---

type memCodeListStore struct {
	mu    sync.RWMutex
	lists map[string]CodeList
}

func NewMemCodeListStore() CodeListStore {
	return &memCodeListStore{lists: make(map[string]CodeList)}
}

func (s *memCodeListStore) ListCodeLists(_ context.Context) ([]CodeList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CodeList, 0, len(s.lists))
	for _, cl := range s.lists {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *memCodeListStore) GetCodeList(_ context.Context, code string) (CodeList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cl, ok := s.lists[code]
	if !ok {
		return CodeList{}, httperr.NewNotFound("codelist not found: " + code)
	}
	return cl, nil
}

func (s *memCodeListStore) PutCodeList(_ context.Context, draft CodeListDraft, actor string) (CodeList, bool, error) {
	if err := draft.normalize(); err != nil {
		return CodeList{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.lists[draft.Code]
	cl := codeListFromDraft(draft, current, !ok, actor, time.Now().UTC())
	s.lists[cl.Code] = cl
	return cl, !ok, nil
}

func (s *memCodeListStore) DeleteCodeList(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[code]; !ok {
		return httperr.NewNotFound("codelist not found: " + code)
	}
	delete(s.lists, code)
	return nil
}

func codeListFromDraft(draft CodeListDraft, current CodeList, created bool, actor string, now time.Time) CodeList {
	cl := CodeList{
		Code:      draft.Code,
		Name:      draft.Name,
		Values:    draft.Values,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedBy: actor,
		UpdatedAt: now,
	}
	if !created {
		cl.CreatedBy = current.CreatedBy
		cl.CreatedAt = current.CreatedAt
	}
	return cl
}
