package routing

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform JSON response shape: success with data, or
// failure with a machine-readable error code and a human message.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Envelope{Success: true, Data: data})
}

// WriteMessage writes a success envelope with an explanatory message.
func WriteMessage(w http.ResponseWriter, status int, data any, message string) {
	writeEnvelope(w, status, Envelope{Success: true, Data: data, Message: message})
}

// WriteError writes a failure envelope. rc selects HTML rendering for
// UI routes; API classes always get JSON.
func WriteError(w http.ResponseWriter, r *http.Request, rc RouteClass, status int, code string, message string) {
	if isJSONOnly(rc) || wantsJSON(r) {
		writeEnvelope(w, status, Envelope{Success: false, Error: code, Message: message})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<!doctype html><html><body>"))
	_, _ = w.Write([]byte(message))
	_, _ = w.Write([]byte("</body></html>"))
}

// WriteErrorDetail writes a failure envelope carrying structured error
// data (e.g. a per-field violation map) alongside the code and message.
func WriteErrorDetail(w http.ResponseWriter, status int, code string, message string, detail any) {
	writeEnvelope(w, status, Envelope{Success: false, Error: code, Message: message, Data: detail})
}

func writeEnvelope(w http.ResponseWriter, status int, e Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json" || r.Header.Get("Accept") == "application/json; charset=utf-8"
}

func isJSONOnly(rc RouteClass) bool {
	return rc == RouteClassInternalAPI || rc == RouteClassPublicAPI
}
