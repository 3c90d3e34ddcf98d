package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Machine-readable error codes shared by both services.
const (
	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
	codeInternal       = "internal_error"
	codeServerBusy     = "server_busy"
	codeTimeout        = "timeout"
)

// retryAfterSeconds is sent with every 503 so clients back off before retrying.
const retryAfterSeconds = "1"

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error","code":"internal_error","retryable":false}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response. Retryable 503 responses carry
// Retry-After.
func writeError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, status, errorResponse{Error: message, Code: code, Retryable: retryable})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// errorMapping binds a sentinel error to its HTTP representation.
type errorMapping struct {
	err       error
	status    int
	code      string
	retryable bool
}

// writeMappedError writes the first mapping err matches. Unmapped errors are
// logged and reported as a generic 500; a request deadline is reported as a
// retryable 503.
func writeMappedError(w http.ResponseWriter, logger *slog.Logger, table []errorMapping, err error) {
	for _, m := range table {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, m.err.Error(), m.retryable)
			return
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, codeTimeout, "request timed out, please try again", true)
		return
	}

	logger.Error("unhandled error", "error", err)
	writeError(w, http.StatusInternalServerError, codeInternal, "internal server error", false)
}

// decodeJSON reads a small JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body", false)
		return false
	}
	return true
}

// maxBodyBytes bounds request bodies; every payload in the API is tiny.
const maxBodyBytes = 4 << 10

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// health returns a simple health check response.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// TallyResponse is the JSON representation of an election tally.
type TallyResponse struct {
	ElectionID     string         `json:"election_id"`
	Total          int            `json:"total"`
	CountsByAnswer map[string]int `json:"counts_by_answer"`
}
