package httphandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ballotbox/internal/adapter/driven/recorderclient"
	"github.com/ericfisherdev/ballotbox/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/ballotbox/internal/adapter/driving/http"
	"github.com/ericfisherdev/ballotbox/internal/application"
	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

const (
	testAPIKey   = "s2s-current"
	testElection = "agm-2026"
)

var testEscrowKey = bytes.Repeat([]byte{0x42}, 32)

// --- Stub collaborators ---

// stubVerifier maps bearer tokens to callers.
type stubVerifier map[string]model.Caller

func (s stubVerifier) Verify(_ context.Context, token string) (model.Caller, error) {
	c, ok := s[token]
	if !ok {
		return model.Caller{}, driven.ErrUnauthenticated
	}
	return c, nil
}

type stubElections struct {
	mu        sync.Mutex
	elections map[string]model.Election
}

func (s *stubElections) Get(_ context.Context, id string) (*model.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *stubElections) setStatus(id string, status model.ElectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.elections[id]
	e.Status = status
	s.elections[id] = e
}

// --- System under test ---

type system struct {
	issuer     *httptest.Server
	recorder   *httptest.Server
	elections  *stubElections
	recorderDB *sqlite.DB

	// recorderDown makes the recorder answer every request with a 502.
	recorderDown atomic.Bool
}

type systemOptions struct {
	escrowKey     []byte
	rateLimit     int
	maxInFlight   int64
	credentialTTL time.Duration
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openDB(t *testing.T, name string, schema sqlite.Schema) *sqlite.DB {
	t.Helper()

	db, err := sqlite.NewDB(context.Background(), filepath.Join(t.TempDir(), name), sqlite.Options{
		WriterConns: 1,
		ReaderConns: 8,
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite.RunMigrations(db.Writer, schema))
	return db
}

func newRecorderServer(t *testing.T, maxInFlight int64) (*httptest.Server, *sqlite.DB) {
	t.Helper()

	handler, db := newRecorderHandler(t, maxInFlight)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, db
}

func newRecorderHandler(t *testing.T, maxInFlight int64) (http.Handler, *sqlite.DB) {
	t.Helper()
	logger := discardLogger()

	db := openDB(t, "recorder.db", sqlite.SchemaRecorder)
	svc := application.NewRecorderService(sqlite.NewLedgerRepo(db), sqlite.NewAuditRepo(db), logger)
	handler := httphandler.NewRecorderMux(httphandler.NewRecorderHandler(svc, logger), httphandler.RecorderOptions{
		APIKeys:        []string{testAPIKey, "s2s-previous"},
		RequestTimeout: 3 * time.Second,
		MaxInFlight:    maxInFlight,
		AdmissionWait:  2 * time.Second,
	}, logger)

	return handler, db
}

func newSystem(t *testing.T, opts systemOptions) *system {
	t.Helper()
	logger := discardLogger()

	if opts.maxInFlight == 0 {
		opts.maxInFlight = 64
	}
	if opts.credentialTTL == 0 {
		opts.credentialTTL = time.Hour
	}
	sys := &system{}
	recorderHandler, recorderDB := newRecorderHandler(t, opts.maxInFlight)
	recorderSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sys.recorderDown.Load() {
			http.Error(w, "maintenance", http.StatusBadGateway)
			return
		}
		recorderHandler.ServeHTTP(w, r)
	}))
	t.Cleanup(recorderSrv.Close)

	now := time.Now()
	elections := &stubElections{elections: map[string]model.Election{
		testElection: {
			ID: testElection, Question: "Approve the budget?", Status: model.ElectionStatusPublished,
			StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
		},
		"draft-2026": {
			ID: "draft-2026", Status: model.ElectionStatusDraft,
			StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
		},
	}}

	client, err := recorderclient.NewClient(recorderSrv.URL, testAPIKey, 2*time.Second)
	require.NoError(t, err)

	issuerDB := openDB(t, "issuer.db", sqlite.SchemaIssuer)
	svc := application.NewIssuerService(application.IssuerDeps{
		Credentials: sqlite.NewCredentialRepo(issuerDB),
		Escrow:      sqlite.NewEscrowRepo(issuerDB, opts.escrowKey),
		Limiter:     sqlite.NewRateLimitRepo(issuerDB, opts.rateLimit, 10*time.Minute),
		Audit:       sqlite.NewAuditRepo(issuerDB),
		Elections:   elections,
		Recorder:    client,
	}, application.IssuerConfig{CredentialTTL: opts.credentialTTL, EscrowTTL: 10 * time.Minute}, logger)

	verifier := stubVerifier{
		"tok-alice": {ID: "member-alice", Eligible: true},
		"tok-bob":   {ID: "member-bob", Eligible: true},
		"tok-guest": {ID: "guest-1", Eligible: false},
	}
	issuerSrv := httptest.NewServer(httphandler.NewIssuerMux(
		httphandler.NewIssuerHandler(svc, verifier, logger), 5*time.Second, logger,
	))
	t.Cleanup(issuerSrv.Close)

	sys.issuer = issuerSrv
	sys.recorder = recorderSrv
	sys.elections = elections
	sys.recorderDB = recorderDB
	return sys
}

// --- HTTP helpers ---

type response struct {
	status int
	header http.Header
	body   map[string]any
}

func do(t *testing.T, method, url string, headers map[string]string, body any) response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	out := response{status: resp.StatusCode, header: resp.Header}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out.body), "body: %s", data)
	}
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func withCredential(credential string) map[string]string {
	return map[string]string{httphandler.CredentialHeader: credential}
}

func s2sKey(key string) map[string]string {
	return map[string]string{httphandler.APIKeyHeader: key}
}

func (s *system) requestCredential(t *testing.T, token string) response {
	t.Helper()
	return do(t, http.MethodPost, s.issuer.URL+"/request-credential", bearer(token),
		map[string]string{"election_id": testElection})
}

func (s *system) vote(t *testing.T, credential, answer string) response {
	t.Helper()
	return do(t, http.MethodPost, s.recorder.URL+"/vote", withCredential(credential),
		map[string]string{"answer": answer})
}

func (s *system) recorderTally(t *testing.T) map[string]any {
	t.Helper()
	resp := do(t, http.MethodGet, s.recorder.URL+"/s2s/results?election_id="+testElection, s2sKey(testAPIKey), nil)
	require.Equal(t, http.StatusOK, resp.status)
	return resp.body
}

func counts(body map[string]any) map[string]float64 {
	out := map[string]float64{}
	for k, v := range body["counts_by_answer"].(map[string]any) {
		out[k] = v.(float64)
	}
	return out
}
