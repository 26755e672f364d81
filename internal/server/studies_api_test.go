package server

import (
	"net/http"
	"testing"
)

func TestStudyCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	code, envl := env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", StudyDraft{
		ProtocolNumber: "ONC-2026-001",
		Title:          "Phase II Oncology Study",
		Phase:          "II",
		Sponsor:        "Clinvera Pharma",
		Arms:           []StudyArm{{Name: "Treatment"}, {Name: "Placebo"}},
	})
	if code != http.StatusCreated || !envl.Success {
		t.Fatalf("create: code=%d envelope=%+v", code, envl)
	}
	var created Study
	dataAs(t, envl, &created)
	if created.ID == "" || created.Status != StudyStatusDraft {
		t.Fatalf("created=%+v", created)
	}
	if created.CreatedBy != "dm-001" || created.UpdatedBy != "dm-001" {
		t.Fatalf("audit fields: %+v", created)
	}

	code, envl = env.doJSON(t, http.MethodGet, "/study/api/studies/"+created.ID, "mon-key", nil)
	if code != http.StatusOK {
		t.Fatalf("get: code=%d", code)
	}
	var got Study
	dataAs(t, envl, &got)
	if got.ProtocolNumber != "ONC-2026-001" || len(got.Arms) != 2 {
		t.Fatalf("got=%+v", got)
	}

	code, envl = env.doJSON(t, http.MethodPut, "/study/api/studies/"+created.ID, "dm-key", StudyDraft{
		ProtocolNumber: "ONC-2026-001",
		Title:          "Phase II Oncology Study (amended)",
		Status:         StudyStatusActive,
	})
	if code != http.StatusOK {
		t.Fatalf("update: code=%d envelope=%+v", code, envl)
	}
	var updated Study
	dataAs(t, envl, &updated)
	if updated.Status != StudyStatusActive || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("updated=%+v", updated)
	}

	code, envl = env.doJSON(t, http.MethodGet, "/study/api/studies", "mon-key", nil)
	if code != http.StatusOK {
		t.Fatalf("list: code=%d", code)
	}
	var list []Study
	dataAs(t, envl, &list)
	if len(list) != 1 {
		t.Fatalf("list=%+v", list)
	}

	code, _ = env.doJSON(t, http.MethodDelete, "/study/api/studies/"+created.ID, "dm-key", nil)
	if code != http.StatusOK {
		t.Fatalf("delete: code=%d", code)
	}
	code, _ = env.doJSON(t, http.MethodGet, "/study/api/studies/"+created.ID, "dm-key", nil)
	if code != http.StatusNotFound {
		t.Fatalf("get after delete: code=%d", code)
	}
}

func TestStudyListFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", StudyDraft{
		ProtocolNumber: "ONC-1", Title: "Oncology Trial", Phase: "II",
	})
	env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", StudyDraft{
		ProtocolNumber: "CAR-1", Title: "Cardiology Trial", Phase: "III", Status: StudyStatusActive,
	})

	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"ONC-1", "CAR-1"}},
		{"?status=ACTIVE", []string{"CAR-1"}},
		{"?phase=II", []string{"ONC-1"}},
		{"?q=onc", []string{"ONC-1"}},
		{"?q=TRIAL", []string{"ONC-1", "CAR-1"}},
		{"?q=cardiology&phase=III", []string{"CAR-1"}},
		{"?q=cardiology&phase=II", nil},
	}
	for _, tc := range cases {
		code, envl := env.doJSON(t, http.MethodGet, "/study/api/studies"+tc.query, "mon-key", nil)
		if code != http.StatusOK {
			t.Fatalf("%s: code=%d", tc.query, code)
		}
		var list []Study
		dataAs(t, envl, &list)
		got := make([]string, 0, len(list))
		for _, st := range list {
			got = append(got, st.ProtocolNumber)
		}
		if len(got) != len(tc.want) {
			t.Errorf("%s: got=%v want=%v", tc.query, got, tc.want)
			continue
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("%s: got=%v want=%v", tc.query, got, tc.want)
			}
		}
	}
}

func TestStudyDuplicateProtocolIs409(t *testing.T) {
	env := newTestEnv(t, nil)
	draft := StudyDraft{ProtocolNumber: "DUP-1", Title: "First"}
	if code, _ := env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", draft); code != http.StatusCreated {
		t.Fatalf("code=%d", code)
	}
	draft.Title = "Second"
	code, envl := env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", draft)
	if code != http.StatusConflict || envl.Error != "conflict" {
		t.Fatalf("code=%d envelope=%+v", code, envl)
	}
}

func TestStudyValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", StudyDraft{Title: "no protocol"})
	if code != http.StatusBadRequest {
		t.Fatalf("missing protocol: code=%d", code)
	}
	code, _ = env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", StudyDraft{ProtocolNumber: "P-1"})
	if code != http.StatusBadRequest {
		t.Fatalf("missing title: code=%d", code)
	}
	code, _ = env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", StudyDraft{
		ProtocolNumber: "P-1", Title: "T", Status: "WEIRD",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("bad status: code=%d", code)
	}
}

func TestStudyUpdateProtocolConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	_, a := env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", StudyDraft{ProtocolNumber: "A-1", Title: "A"})
	env.doJSON(t, http.MethodPost, "/study/api/studies", "dm-key", StudyDraft{ProtocolNumber: "B-1", Title: "B"})

	var stA Study
	dataAs(t, a, &stA)
	code, _ := env.doJSON(t, http.MethodPut, "/study/api/studies/"+stA.ID, "dm-key", StudyDraft{ProtocolNumber: "B-1", Title: "A"})
	if code != http.StatusConflict {
		t.Fatalf("code=%d", code)
	}
}
