package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	a := Allowlist{
		Version: 1,
		Entrypoints: map[string]Entrypoint{
			"server": {Routes: []Route{
				{Path: "/health", Methods: []string{"GET"}, RouteClass: "ops"},
				{Path: "/study/api/studies", Methods: []string{"GET", "POST"}, RouteClass: "internal_api"},
				{Path: "/study/api/studies/{id}", Methods: []string{"GET"}, RouteClass: "internal_api"},
			}},
		},
	}
	c, err := NewClassifier(a, "server")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRouter_ExactAndPattern(t *testing.T) {
	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/study/api/studies", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteData(w, http.StatusOK, "list")
	}))
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/study/api/studies/{id}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		WriteData(w, http.StatusOK, Param(req, "id"))
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/study/api/studies", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/study/api/studies/abc-123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Data != "abc-123" {
		t.Fatalf("data=%v", env.Data)
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/study/api/studies", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteData(w, http.StatusOK, nil)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/study/api/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Success || env.Error != "not_found" {
		t.Fatalf("env=%+v", env)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/study/api/studies", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestRouter_PanicRecovers(t *testing.T) {
	r := NewRouter(testClassifier(t))
	r.Handle(RouteClassInternalAPI, http.MethodGet, "/study/api/studies", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/study/api/studies", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestPathPattern_Match(t *testing.T) {
	p, ok := ParsePathPattern("/forms/api/forms/{id}/submit")
	if !ok {
		t.Fatal("expected pattern")
	}
	params, ok := p.Match("/forms/api/forms/F-1/submit")
	if !ok || params["id"] != "F-1" {
		t.Fatalf("params=%v ok=%v", params, ok)
	}
	if _, ok := p.Match("/forms/api/forms/F-1"); ok {
		t.Fatal("length mismatch should not match")
	}
	if _, ok := p.Match("/forms/api/forms/F-1/evaluate"); ok {
		t.Fatal("literal mismatch should not match")
	}
}

func TestClassifier_Fallbacks(t *testing.T) {
	c := testClassifier(t)
	tests := []struct {
		path string
		want RouteClass
	}{
		{"/health", RouteClassOps},
		{"/study/api/studies", RouteClassInternalAPI},
		{"/study/api/studies/xyz", RouteClassInternalAPI},
		{"/docs/api/documents", RouteClassInternalAPI}, // unlisted module API by shape
		{"/api/v1/anything", RouteClassPublicAPI},
		{"/assets/app.js", RouteClassStatic},
		{"/", RouteClassUI},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.path); got != tt.want {
			t.Fatalf("path=%q got=%q want=%q", tt.path, got, tt.want)
		}
	}
}
