package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/clinvera/clinvera/internal/routing"
	"github.com/clinvera/clinvera/pkg/httperr"
)

const maxJSONBodyBytes = 1 << 20

// decodeJSON reads a request body into dst, rejecting trailing garbage
// and bodies over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := dec.Decode(dst); err != nil {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return false
	}
	if dec.More() {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "invalid_json", "trailing data after JSON body")
		return false
	}
	return true
}

// writeStoreError maps a classified store error to its HTTP status.
// Unclassified errors surface as 500 with a generic message so internal
// details never leak to clients.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case httperr.IsBadRequest(err):
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusBadRequest, "bad_request", err.Error())
	case httperr.IsNotFound(err):
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusNotFound, "not_found", err.Error())
	case httperr.IsConflict(err):
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusConflict, "conflict", err.Error())
	default:
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func mustActor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	actor, ok := currentActor(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassInternalAPI, http.StatusInternalServerError, "actor_missing", "actor missing")
		return Actor{}, false
	}
	return actor, true
}
