package httphandler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/application"
	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// issuerErrors maps issuer failures to responses. Dependency failures during
// issuance surface as retryable 503s, indistinguishable from contention.
var issuerErrors = []errorMapping{
	{driven.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", false},
	{application.ErrNotEligible, http.StatusForbidden, "not_eligible", false},
	{application.ErrElectionNotFound, http.StatusNotFound, "election_not_found", false},
	{application.ErrElectionNotOpen, http.StatusConflict, "election_not_open", false},
	{application.ErrAlreadyVoted, http.StatusConflict, "already_voted", false},
	{application.ErrCredentialAlreadyIssued, http.StatusConflict, "credential_already_issued", false},
	{application.ErrResultsNotAvailable, http.StatusConflict, "results_not_available", false},
	{application.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", true},
	{application.ErrRegistrationFailed, http.StatusServiceUnavailable, "registration_failed", true},
	{driven.ErrContention, http.StatusServiceUnavailable, "transient_contention", true},
	{driven.ErrUnavailable, http.StatusServiceUnavailable, "dependency_unavailable", true},
}

// IssuerHandler serves the Credential Issuer's caller-facing API. Callers
// authenticate with the membership provider's bearer token.
type IssuerHandler struct {
	svc      *application.IssuerService
	verifier driven.MembershipVerifier
	logger   *slog.Logger
}

// NewIssuerHandler creates an IssuerHandler with all required dependencies.
func NewIssuerHandler(svc *application.IssuerService, verifier driven.MembershipVerifier, logger *slog.Logger) *IssuerHandler {
	return &IssuerHandler{svc: svc, verifier: verifier, logger: logger}
}

// NewIssuerMux creates an http.Handler with all issuer routes registered and
// wrapped with timeout, logging and recovery middleware.
func NewIssuerMux(h *IssuerHandler, requestTimeout time.Duration, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /request-credential", h.RequestCredential)
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /results", h.Results)
	mux.HandleFunc("GET /health", health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = timeoutMiddleware(requestTimeout, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// RequestCredentialRequest is the JSON body for the request-credential endpoint.
type RequestCredentialRequest struct {
	ElectionID string `json:"election_id"`
}

// CredentialResponse carries a plaintext credential. It is the only response
// in the system that does.
type CredentialResponse struct {
	Credential string `json:"credential"`
	ExpiresAt  string `json:"expires_at"`
}

// StatusResponse is the caller's view of their credential.
type StatusResponse struct {
	Issued bool `json:"issued"`
	Used   bool `json:"used"`
}

// RequestCredential mints, or returns from escrow, the caller's credential.
// A freshly minted credential is answered with 201, an escrowed one with 200.
func (h *IssuerHandler) RequestCredential(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req RequestCredentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ElectionID = strings.TrimSpace(req.ElectionID)
	if req.ElectionID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "election_id is required", false)
		return
	}

	issued, err := h.svc.RequestCredential(r.Context(), caller, req.ElectionID)
	if err != nil {
		writeMappedError(w, h.logger, issuerErrors, err)
		return
	}

	status := http.StatusCreated
	if issued.Reissued {
		status = http.StatusOK
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, CredentialResponse{
		Credential: issued.Credential,
		ExpiresAt:  issued.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Status reports whether the caller has been issued a credential and used it.
func (h *IssuerHandler) Status(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	electionID, ok := requireElectionID(w, r)
	if !ok {
		return
	}

	status, err := h.svc.GetStatus(r.Context(), caller, electionID)
	if err != nil {
		writeMappedError(w, h.logger, issuerErrors, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Issued: status.Issued, Used: status.Used})
}

// Results relays the tally of a closed election.
func (h *IssuerHandler) Results(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	electionID, ok := requireElectionID(w, r)
	if !ok {
		return
	}

	tally, err := h.svc.FetchResults(r.Context(), caller, electionID)
	if err != nil {
		writeMappedError(w, h.logger, issuerErrors, err)
		return
	}

	writeJSON(w, http.StatusOK, toTallyResponse(tally))
}

// authenticate resolves the bearer token into a caller. On failure the
// response has already been written.
func (h *IssuerHandler) authenticate(w http.ResponseWriter, r *http.Request) (model.Caller, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "bearer token required", false)
		return model.Caller{}, false
	}

	caller, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		writeMappedError(w, h.logger, issuerErrors, err)
		return model.Caller{}, false
	}
	return caller, true
}

func requireElectionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("election_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "election_id is required", false)
		return "", false
	}
	return id, true
}

// toTallyResponse converts a domain Tally to its JSON representation. Every
// allowed answer is present and nothing else is.
func toTallyResponse(t model.Tally) TallyResponse {
	counts := make(map[string]int, len(model.Answers))
	for _, a := range model.Answers {
		counts[string(a)] = t.Counts[a]
	}
	return TallyResponse{ElectionID: t.ElectionID, Total: t.Total, CountsByAnswer: counts}
}
