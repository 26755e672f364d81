package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/clinvera/clinvera/internal/ingest"
	"github.com/clinvera/clinvera/internal/routing"
)

type allowAllAuthz struct{}

func (allowAllAuthz) Authorize(string, string, string) (bool, bool, error) {
	return true, true, nil
}

type testActors map[string]Actor

func (m testActors) ResolveActor(key string) (Actor, bool) {
	a, ok := m[key]
	return a, ok
}

func defaultTestActors() testActors {
	return testActors{
		"dm-key":  {ID: "dm-001", Name: "Dana", Role: "data_manager"},
		"inv-key": {ID: "inv-001", Name: "Isa", Role: "investigator"},
		"mon-key": {ID: "mon-001", Name: "Mori", Role: "monitor"},
	}
}

type testEnv struct {
	handler     http.Handler
	studies     StudyStore
	forms       FormStore
	codelists   CodeListStore
	submissions SubmissionStore
	documents   DocumentStore
}

type fakeLLM struct {
	extract ingest.StudyExtract
	err     error
}

func (f *fakeLLM) ExtractStudyFields(context.Context, ingest.ExtractedContent) (ingest.StudyExtract, error) {
	return f.extract, f.err
}

func newTestEnv(t *testing.T, llm ingest.FieldExtractor) *testEnv {
	t.Helper()
	if llm == nil {
		llm = &fakeLLM{extract: ingest.StudyExtract{ProtocolNumber: "PROTO-1", Title: "Extracted Study"}}
	}
	env := &testEnv{
		studies:     NewMemStudyStore(),
		forms:       NewMemFormStore(),
		codelists:   NewMemCodeListStore(),
		submissions: NewMemSubmissionStore(),
		documents:   NewMemDocumentStore(),
	}
	handler, err := NewHandlerWithOptions(HandlerOptions{
		Logger:      zap.NewNop(),
		Studies:     env.studies,
		Forms:       env.forms,
		CodeLists:   env.codelists,
		Submissions: env.submissions,
		Documents:   env.documents,
		Blobs:       ingest.NewMemBlobStore(),
		Extractor:   ingest.NewTextExtractor(),
		LLM:         llm,
		Actors:      defaultTestActors(),
		Authorizer:  allowAllAuthz{},
	})
	if err != nil {
		t.Fatal(err)
	}
	env.handler = handler
	return env
}

// doJSON issues a request with the given bearer key and optional JSON
// body, returning status and decoded envelope.
func (env *testEnv) doJSON(t *testing.T, method, path, key string, body any) (int, routing.Envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	var envl routing.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&envl); err != nil {
		t.Fatalf("decoding %s %s response (%d): %v", method, path, rec.Code, err)
	}
	return rec.Code, envl
}

func dataAs(t *testing.T, envl routing.Envelope, dst any) {
	t.Helper()
	b, err := json.Marshal(envl.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		t.Fatal(err)
	}
}

func TestHealthNeedsNoCredential(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body=%q", rec.Body.String())
	}
}

func TestMissingBearerIs401(t *testing.T) {
	env := newTestEnv(t, nil)
	code, envl := env.doJSON(t, http.MethodGet, "/study/api/studies", "", nil)
	if code != http.StatusUnauthorized || envl.Success {
		t.Fatalf("code=%d envelope=%+v", code, envl)
	}
}

func TestUnknownCredentialIs401(t *testing.T) {
	env := newTestEnv(t, nil)
	code, _ := env.doJSON(t, http.MethodGet, "/study/api/studies", "bogus", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("code=%d", code)
	}
}

type denyAuthz struct{}

func (denyAuthz) Authorize(string, string, string) (bool, bool, error) {
	return false, true, nil
}

func TestDeniedWriteIs403(t *testing.T) {
	handler, err := NewHandlerWithOptions(HandlerOptions{
		Logger:      zap.NewNop(),
		Studies:     NewMemStudyStore(),
		Forms:       NewMemFormStore(),
		CodeLists:   NewMemCodeListStore(),
		Submissions: NewMemSubmissionStore(),
		Documents:   NewMemDocumentStore(),
		Blobs:       ingest.NewMemBlobStore(),
		Extractor:   ingest.NewTextExtractor(),
		LLM:         &fakeLLM{},
		Actors:      defaultTestActors(),
		Authorizer:  denyAuthz{},
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/study/api/studies", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer mon-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t, nil)
	code, _ := env.doJSON(t, http.MethodGet, "/study/api/nonsense", "dm-key", nil)
	if code != http.StatusNotFound {
		t.Fatalf("code=%d", code)
	}
}

func TestAuthzRequirementForRoute(t *testing.T) {
	cases := []struct {
		method, path   string
		object, action string
	}{
		{http.MethodGet, "/study/api/studies", "study.studies", "read"},
		{http.MethodPost, "/study/api/studies", "study.studies", "write"},
		{http.MethodDelete, "/study/api/studies/abc", "study.studies", "write"},
		{http.MethodPost, "/forms/api/forms", "forms.forms", "write"},
		{http.MethodPost, "/forms/api/forms/abc/evaluate", "forms.forms", "read"},
		{http.MethodPost, "/forms/api/forms/abc/rules:explain", "forms.forms", "read"},
		{http.MethodPost, "/forms/api/forms/abc/submit", "forms.submissions", "write"},
		{http.MethodGet, "/forms/api/submissions", "forms.submissions", "read"},
		{http.MethodPut, "/forms/api/codelists", "forms.codelists", "write"},
		{http.MethodPost, "/docs/api/documents", "docs.documents", "write"},
	}
	for _, tc := range cases {
		object, action, check := authzRequirementForRoute(tc.method, tc.path)
		if !check || object != tc.object || action != tc.action {
			t.Errorf("%s %s: got %q %q check=%v", tc.method, tc.path, object, action, check)
		}
	}
}

var errBoom = errors.New("boom")
