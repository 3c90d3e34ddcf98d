package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// --- Mock implementations of the driven ports ---

type credKey struct{ caller, election string }

type mockCredentialStore struct {
	mu      sync.Mutex
	records map[credKey]model.CredentialRecord
	getErr  error
	// confirmErr, when set, is returned by ConfirmRegistration.
	confirmErr error
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{records: make(map[credKey]model.CredentialRecord)}
}

func (m *mockCredentialStore) Get(_ context.Context, callerRef, electionID string) (*model.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[credKey{callerRef, electionID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *mockCredentialStore) Reserve(_ context.Context, rec model.CredentialRecord, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credKey{rec.CallerRef, rec.ElectionID}
	if cur, ok := m.records[key]; ok {
		replaceable := !cur.Used && (!cur.Registered() || cur.Expired(now))
		if !replaceable {
			return false, nil
		}
	}
	rec.RegisteredAt = nil
	rec.Used = false
	rec.UsedAt = nil
	m.records[key] = rec
	return true, nil
}

func (m *mockCredentialStore) ConfirmRegistration(_ context.Context, callerRef, electionID, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return m.confirmErr
	}
	key := credKey{callerRef, electionID}
	cur, ok := m.records[key]
	if !ok || cur.Hash != hash || cur.Registered() {
		return driven.ErrReservationLost
	}
	cur.RegisteredAt = &at
	m.records[key] = cur
	return nil
}

func (m *mockCredentialStore) MarkUsed(_ context.Context, callerRef, electionID, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credKey{callerRef, electionID}
	cur, ok := m.records[key]
	if !ok || cur.Hash != hash || cur.Used {
		return nil
	}
	coarse := model.CoarseTime(at)
	cur.Used = true
	cur.UsedAt = &coarse
	m.records[key] = cur
	return nil
}

type mockEscrow struct {
	mu       sync.Mutex
	disabled bool
	entries  map[credKey]escrowEntry
}

type escrowEntry struct {
	plaintext string
	expiresAt time.Time
}

func newMockEscrow() *mockEscrow {
	return &mockEscrow{entries: make(map[credKey]escrowEntry)}
}

func (m *mockEscrow) Put(_ context.Context, callerRef, electionID, plaintext string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return driven.ErrEscrowDisabled
	}
	m.entries[credKey{callerRef, electionID}] = escrowEntry{plaintext, expiresAt}
	return nil
}

func (m *mockEscrow) Get(_ context.Context, callerRef, electionID string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return "", driven.ErrEscrowDisabled
	}
	e, ok := m.entries[credKey{callerRef, electionID}]
	if !ok || !now.Before(e.expiresAt) {
		return "", nil
	}
	return e.plaintext, nil
}

func (m *mockEscrow) Delete(_ context.Context, callerRef, electionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return driven.ErrEscrowDisabled
	}
	delete(m.entries, credKey{callerRef, electionID})
	return nil
}

func (m *mockEscrow) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return 0, driven.ErrEscrowDisabled
	}
	var n int64
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

type mockLimiter struct {
	mu       sync.Mutex
	limit    int
	counts   map[string]int
	purges   int
	subjects []string
}

func (m *mockLimiter) Allow(_ context.Context, subject string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.subjects = append(m.subjects, subject)
	m.counts[subject]++
	return m.limit <= 0 || m.counts[subject] <= m.limit, nil
}

func (m *mockLimiter) PurgeExpired(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purges++
	return 0, nil
}

type mockAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (m *mockAudit) Record(_ context.Context, entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAudit) Prune(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *mockAudit) actions() []model.AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AuditAction, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func (m *mockAudit) last() model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

type mockElections struct {
	elections map[string]model.Election
}

func (m *mockElections) Get(_ context.Context, id string) (*model.Election, error) {
	e, ok := m.elections[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

type mockRecorder struct {
	mu         sync.Mutex
	registered map[string]driven.HashRegistration
	used       map[string]bool
	tally      model.Tally
	registerFn func(driven.HashRegistration) error
	statusErr  error
	tallyErr   error
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		registered: make(map[string]driven.HashRegistration),
		used:       make(map[string]bool),
	}
}

func (m *mockRecorder) RegisterHash(_ context.Context, reg driven.HashRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerFn != nil {
		if err := m.registerFn(reg); err != nil {
			return err
		}
	}
	if _, ok := m.registered[reg.Hash]; ok {
		return driven.ErrDuplicateHash
	}
	m.registered[reg.Hash] = reg
	return nil
}

func (m *mockRecorder) HashStatus(_ context.Context, hash string) (driven.HashStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return driven.HashStatus{}, m.statusErr
	}
	_, ok := m.registered[hash]
	return driven.HashStatus{Registered: ok, Used: m.used[hash]}, nil
}

func (m *mockRecorder) Tally(_ context.Context, electionID string) (model.Tally, error) {
	if m.tallyErr != nil {
		return model.Tally{}, m.tallyErr
	}
	t := m.tally
	t.ElectionID = electionID
	return t, nil
}

func (m *mockRecorder) markUsed(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used[hash] = true
}

type mockLedger struct {
	mu       sync.Mutex
	hashes   map[string]model.CredentialHashRecord
	ballots  []model.Ballot
	castErr  error
	castCall int
}

func newMockLedger() *mockLedger {
	return &mockLedger{hashes: make(map[string]model.CredentialHashRecord)}
}

func (m *mockLedger) RegisterHash(_ context.Context, rec model.CredentialHashRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[rec.Hash]; ok {
		return driven.ErrDuplicateHash
	}
	m.hashes[rec.Hash] = rec
	return nil
}

func (m *mockLedger) GetHash(_ context.Context, hash string) (*model.CredentialHashRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.hashes[hash]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *mockLedger) CastBallot(_ context.Context, ballot model.Ballot, now time.Time) (model.Ballot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.castCall++
	if m.castErr != nil {
		return model.Ballot{}, m.castErr
	}
	rec, ok := m.hashes[ballot.CredentialHash]
	switch {
	case !ok:
		return model.Ballot{}, driven.ErrNotRegistered
	case rec.Used:
		return model.Ballot{}, driven.ErrAlreadyUsed
	case rec.Expired(now):
		return model.Ballot{}, driven.ErrCredentialExpired
	}
	ballot.ElectionID = rec.ElectionID
	ballot.SubmittedAt = model.CoarseTime(ballot.SubmittedAt)
	rec.Used = true
	rec.UsedAt = &ballot.SubmittedAt
	m.hashes[ballot.CredentialHash] = rec
	m.ballots = append(m.ballots, ballot)
	return ballot, nil
}

func (m *mockLedger) Tally(_ context.Context, electionID string) (model.Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := model.NewTally(electionID)
	for _, b := range m.ballots {
		if b.ElectionID == electionID {
			t.Counts[b.Answer]++
			t.Total++
		}
	}
	return t, nil
}

func (m *mockLedger) ResetElection(_ context.Context, electionID string) (driven.ResetResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res driven.ResetResult
	kept := m.ballots[:0]
	for _, b := range m.ballots {
		if b.ElectionID == electionID {
			res.Ballots++
			continue
		}
		kept = append(kept, b)
	}
	m.ballots = kept
	for h, rec := range m.hashes {
		if rec.ElectionID == electionID {
			delete(m.hashes, h)
			res.Hashes++
		}
	}
	return res, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
