package server

import (
	"net/http"
	"strings"

	"github.com/clinvera/clinvera/internal/routing"
)

func handleSubmissionsList(store SubmissionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := store.ListSubmissions(r.Context(),
			strings.TrimSpace(r.URL.Query().Get("formId")),
			strings.TrimSpace(r.URL.Query().Get("studyId")))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if subs == nil {
			subs = []Submission{}
		}
		routing.WriteData(w, http.StatusOK, subs)
	}
}

func handleSubmissionsGet(store SubmissionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := store.GetSubmission(r.Context(), routing.Param(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteData(w, http.StatusOK, sub)
	}
}
