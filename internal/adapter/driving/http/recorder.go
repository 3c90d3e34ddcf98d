package httphandler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ericfisherdev/ballotbox/internal/application"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// CredentialHeader carries the plaintext voting credential on public recorder calls.
const CredentialHeader = "X-Voting-Credential"

// recorderErrors maps recorder failures to responses.
var recorderErrors = []errorMapping{
	{application.ErrInvalidAnswer, http.StatusBadRequest, "invalid_answer", false},
	{application.ErrInvalidHashFormat, http.StatusBadRequest, "invalid_hash_format", false},
	{application.ErrInvalidElection, http.StatusBadRequest, "invalid_election", false},
	{application.ErrMissingCredential, http.StatusUnauthorized, "missing_credential", false},
	{driven.ErrNotRegistered, http.StatusNotFound, "not_registered", false},
	{driven.ErrAlreadyUsed, http.StatusConflict, "already_used", false},
	{driven.ErrDuplicateHash, http.StatusConflict, "duplicate_hash", false},
	{driven.ErrCredentialExpired, http.StatusGone, "credential_expired", false},
	{driven.ErrContention, http.StatusServiceUnavailable, "transient_contention", true},
}

// RecorderOptions configures the recorder's protective middleware.
type RecorderOptions struct {
	APIKeys        []string
	RequestTimeout time.Duration
	MaxInFlight    int64
	AdmissionWait  time.Duration
}

// RecorderHandler serves the Ballot Recorder's S2S and public APIs.
type RecorderHandler struct {
	svc    *application.RecorderService
	logger *slog.Logger
}

// NewRecorderHandler creates a RecorderHandler with all required dependencies.
func NewRecorderHandler(svc *application.RecorderService, logger *slog.Logger) *RecorderHandler {
	return &RecorderHandler{svc: svc, logger: logger}
}

// NewRecorderMux creates an http.Handler with all recorder routes. S2S routes
// require a configured API key; /vote is admission-limited.
func NewRecorderMux(h *RecorderHandler, opts RecorderOptions, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	s2s := func(fn http.HandlerFunc) http.Handler { return apiKeyMiddleware(opts.APIKeys, fn) }
	mux.Handle("POST /s2s/register-hash", s2s(h.RegisterHash))
	mux.Handle("GET /s2s/results", s2s(h.Results))
	mux.Handle("GET /s2s/credential-status", s2s(h.HashStatus))

	maxInFlight := opts.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	sem := semaphore.NewWeighted(maxInFlight)
	mux.Handle("POST /vote", admissionMiddleware(sem, opts.AdmissionWait, http.HandlerFunc(h.Vote)))
	mux.HandleFunc("GET /credential-status", h.CredentialStatus)
	mux.HandleFunc("GET /health", health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = timeoutMiddleware(opts.RequestTimeout, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// RegisterHashRequest is the JSON body of the S2S hash registration.
type RegisterHashRequest struct {
	Hash       string     `json:"hash"`
	ElectionID string     `json:"election_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// RegisterHashResponse acknowledges a registration.
type RegisterHashResponse struct {
	Accepted bool `json:"accepted"`
}

// HashStatusResponse is the S2S view of a hash.
type HashStatusResponse struct {
	Registered bool `json:"registered"`
	Used       bool `json:"used"`
}

// VoteRequest is the JSON body of a ballot submission.
type VoteRequest struct {
	Answer string `json:"answer"`
}

// VoteResponse identifies the recorded ballot.
type VoteResponse struct {
	BallotID string `json:"ballot_id"`
}

// CredentialStatusResponse is the public view of a credential.
type CredentialStatusResponse struct {
	Valid bool `json:"valid"`
	Used  bool `json:"used"`
}

// RegisterHash accepts a credential hash from the issuer.
func (h *RecorderHandler) RegisterHash(w http.ResponseWriter, r *http.Request) {
	var req RegisterHashRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reg := driven.HashRegistration{Hash: req.Hash, ElectionID: req.ElectionID}
	if req.ExpiresAt != nil {
		reg.ExpiresAt = *req.ExpiresAt
	}

	if err := h.svc.RegisterHash(r.Context(), reg); err != nil {
		writeMappedError(w, h.logger, recorderErrors, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterHashResponse{Accepted: true})
}

// Results returns the tally for an election.
func (h *RecorderHandler) Results(w http.ResponseWriter, r *http.Request) {
	tally, err := h.svc.GetTally(r.Context(), strings.TrimSpace(r.URL.Query().Get("election_id")))
	if err != nil {
		writeMappedError(w, h.logger, recorderErrors, err)
		return
	}

	writeJSON(w, http.StatusOK, toTallyResponse(tally))
}

// HashStatus reports registration and usage of a hash to the issuer.
func (h *RecorderHandler) HashStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.HashStatus(r.Context(), r.URL.Query().Get("hash"))
	if err != nil {
		writeMappedError(w, h.logger, recorderErrors, err)
		return
	}

	writeJSON(w, http.StatusOK, HashStatusResponse{Registered: status.Registered, Used: status.Used})
}

// Vote records a ballot. The body is parsed before the credential is
// considered so a malformed answer never reaches the ledger.
func (h *RecorderHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ballot, err := h.svc.SubmitBallot(r.Context(), strings.TrimSpace(r.Header.Get(CredentialHeader)), req.Answer)
	if err != nil {
		writeMappedError(w, h.logger, recorderErrors, err)
		return
	}

	writeJSON(w, http.StatusCreated, VoteResponse{BallotID: ballot.ID})
}

// CredentialStatus reports on the credential presented in the header.
func (h *RecorderHandler) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.CredentialStatus(r.Context(), strings.TrimSpace(r.Header.Get(CredentialHeader)))
	if err != nil {
		writeMappedError(w, h.logger, recorderErrors, err)
		return
	}

	writeJSON(w, http.StatusOK, CredentialStatusResponse{Valid: status.Valid, Used: status.Used})
}
