package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/clinvera/clinvera/internal/ingest"
	"github.com/clinvera/clinvera/internal/routing"
	"github.com/clinvera/clinvera/pkg/httperr"
)

const maxUploadBytes = 32 << 20

func handleDocumentsList(store DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := store.ListDocuments(r.Context())
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if docs == nil {
			docs = []ingest.Document{}
		}
		routing.WriteData(w, http.StatusOK, docs)
	}
}

func handleDocumentsGet(store DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := store.GetDocument(r.Context(), routing.Param(r, "id"))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		routing.WriteData(w, http.StatusOK, doc)
	}
}

// handleDocumentsUpload accepts one multipart file, checks the
// extension allowlist, and runs the ingestion pipeline synchronously.
// A stage failure surfaces as 500 with the stage named in the message;
// the FAILED document record is returned alongside.
func handleDocumentsUpload(pipeline *ingest.Pipeline, studies StudyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_request", "multipart field 'file' is required")
			return
		}
		defer file.Close()

		if !ingest.ExtensionAllowed(header.Filename) {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "unsupported_file_type", "unsupported file type: "+header.Filename)
			return
		}

		studyID := strings.TrimSpace(r.FormValue("studyId"))
		if studyID != "" {
			if _, err := studies.GetStudy(r.Context(), studyID); err != nil {
				if httperr.IsNotFound(err) {
					routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_request", "studyId references unknown study: "+studyID)
					return
				}
				writeStoreError(w, r, err)
				return
			}
		}

		data, err := io.ReadAll(file)
		if err != nil {
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_request", "failed to read upload")
			return
		}

		doc, err := pipeline.Run(r.Context(), header.Filename, header.Header.Get("Content-Type"), data, studyID, actor.ID)
		if err != nil {
			var stageErr *ingest.StageError
			if errors.As(err, &stageErr) {
				routing.WriteErrorDetail(w, http.StatusInternalServerError, "ingestion_failed", stageErr.Error(), doc)
				return
			}
			routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		routing.WriteMessage(w, http.StatusCreated, doc, "document ingested")
	}
}
