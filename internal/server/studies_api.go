package server

import (
	"net/http"
	"strings"

	"github.com/clinvera/clinvera/internal/routing"
)

func handleStudiesList(store StudyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studies, err := store.ListStudies(r.Context())
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		studies = filterStudies(studies,
			r.URL.Query().Get("status"),
			r.URL.Query().Get("phase"),
			r.URL.Query().Get("q"))
		routing.WriteData(w, http.StatusOK, studies)
	}
}

// filterStudies applies the optional list filters: exact status and
// phase, and a case-insensitive substring match on protocol number and
// title.
func filterStudies(in []Study, status, phase, q string) []Study {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]Study, 0, len(in))
	for _, st := range in {
		if status != "" && st.Status != status {
			continue
		}
		if phase != "" && st.Phase != phase {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(st.ProtocolNumber), q) &&
			!strings.Contains(strings.ToLower(st.Title), q) {
			continue
		}
		out = append(out, st)
	}
	return out
}

func handleStudiesCreate(store StudyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		var draft StudyDraft
		if !decodeJSON(w, r, &draft) {
			return
		}
		st, err := store.CreateStudy(r.Context(), draft, actor.ID)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusCreated, st, "study created")
	}
}

func handleStudiesGet(store StudyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := store.GetStudy(r.Context(), routing.Param(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteData(w, http.StatusOK, st)
	}
}

func handleStudiesUpdate(store StudyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}
		var draft StudyDraft
		if !decodeJSON(w, r, &draft) {
			return
		}
		st, err := store.UpdateStudy(r.Context(), routing.Param(r, "id"), draft, actor.ID)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusOK, st, "study updated")
	}
}

func handleStudiesDelete(store StudyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteStudy(r.Context(), routing.Param(r, "id")); err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteMessage(w, http.StatusOK, nil, "study deleted")
	}
}
