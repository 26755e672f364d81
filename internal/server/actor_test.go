package server

import (
	"net/http/httptest"
	"testing"
)

func TestParseActorsYAML(t *testing.T) {
	reg, err := parseActorsYAML([]byte(`
version: 1
actors:
  - key: k1
    id: u1
    name: One
    role: data_manager
  - key: k2
    id: u2
    name: Two
    role: Monitor
`))
	if err != nil {
		t.Fatal(err)
	}
	a, ok := reg.ResolveActor("k1")
	if !ok || a.ID != "u1" || a.Role != "data_manager" {
		t.Fatalf("a=%+v ok=%v", a, ok)
	}
	if _, ok := reg.ResolveActor("unknown"); ok {
		t.Fatal("unknown key must not resolve")
	}
}

func TestParseActorsYAMLRejections(t *testing.T) {
	cases := map[string]string{
		"bad version": "version: 2\nactors:\n  - key: k\n    id: u\n    role: monitor\n",
		"empty":       "version: 1\nactors: []\n",
		"missing key": "version: 1\nactors:\n  - id: u\n    role: monitor\n",
		"missing id":  "version: 1\nactors:\n  - key: k\n    role: monitor\n",
		"bad role":    "version: 1\nactors:\n  - key: k\n    id: u\n    role: superuser\n",
	}
	for name, doc := range cases {
		if _, err := parseActorsYAML([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)

	if _, ok := bearerToken(r); ok {
		t.Fatal("no header must not parse")
	}
	r.Header.Set("Authorization", "Basic abc")
	if _, ok := bearerToken(r); ok {
		t.Fatal("basic auth must not parse")
	}
	r.Header.Set("Authorization", "Bearer   ")
	if _, ok := bearerToken(r); ok {
		t.Fatal("blank token must not parse")
	}
	r.Header.Set("Authorization", "Bearer secret-key")
	token, ok := bearerToken(r)
	if !ok || token != "secret-key" {
		t.Fatalf("token=%q ok=%v", token, ok)
	}
}
