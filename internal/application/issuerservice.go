package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// purgeInterval is the minimum gap between opportunistic purges of expired
// escrow rows and rate-limit buckets on the request path.
const purgeInterval = time.Minute

// IssuerConfig holds the issuance policy.
type IssuerConfig struct {
	CredentialTTL time.Duration
	EscrowTTL     time.Duration
}

// IssuerDeps are the driven ports the IssuerService orchestrates.
type IssuerDeps struct {
	Credentials driven.CredentialStore
	Escrow      driven.EscrowStore
	Limiter     driven.RateLimiter
	Audit       driven.AuditStore
	Elections   driven.ElectionDirectory
	Recorder    driven.RecorderClient
}

// IssuedCredential is returned to the caller exactly as handed out.
type IssuedCredential struct {
	Credential string
	ExpiresAt  time.Time
	Reissued   bool // true when served from escrow rather than freshly minted
}

// CredentialStatus is the caller's view of their credential for an election.
type CredentialStatus struct {
	Issued bool
	Used   bool
}

// IssuerService mints voting credentials for eligible callers, registers their
// hashes with the ballot recorder, and relays results once an election closes.
type IssuerService struct {
	deps   IssuerDeps
	cfg    IssuerConfig
	logger *slog.Logger
	now    func() time.Time

	lastPurge atomic.Int64
}

// NewIssuerService creates a new IssuerService with the required dependencies.
func NewIssuerService(deps IssuerDeps, cfg IssuerConfig, logger *slog.Logger) *IssuerService {
	return &IssuerService{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// RequestCredential returns a credential for caller in the election. A fresh
// credential is only handed out after the recorder has accepted its hash; any
// registration failure fails the request closed.
func (s *IssuerService) RequestCredential(ctx context.Context, caller model.Caller, electionID string) (IssuedCredential, error) {
	now := s.now()
	defer s.purgeExpired(ctx, now)

	allowed, err := s.deps.Limiter.Allow(ctx, "caller:"+caller.ID, now)
	if err != nil {
		return IssuedCredential{}, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		s.audit(ctx, model.AuditCredentialDenied, false, caller, electionID, map[string]any{"reason": "rate_limited"})
		return IssuedCredential{}, ErrRateLimited
	}

	if !caller.Eligible {
		s.audit(ctx, model.AuditCredentialDenied, false, caller, electionID, map[string]any{"reason": "not_eligible"})
		return IssuedCredential{}, ErrNotEligible
	}

	election, err := s.openElection(ctx, electionID, now)
	if err != nil {
		s.audit(ctx, model.AuditCredentialDenied, false, caller, electionID, map[string]any{"reason": reasonOf(err)})
		return IssuedCredential{}, err
	}

	existing, err := s.deps.Credentials.Get(ctx, caller.ID, electionID)
	if err != nil {
		return IssuedCredential{}, fmt.Errorf("load credential record: %w", err)
	}
	if existing != nil {
		if existing.Used {
			s.audit(ctx, model.AuditCredentialDenied, false, caller, electionID, map[string]any{"reason": "already_voted"})
			return IssuedCredential{}, ErrAlreadyVoted
		}
		if existing.Registered() {
			// The recorder is the authority on spent hashes, expired or not.
			if err := s.syncUsed(ctx, caller, *existing, now); err != nil {
				return IssuedCredential{}, err
			}
			if !existing.Expired(now) {
				return s.reissue(ctx, caller, *existing, now)
			}
		}
	}

	return s.issue(ctx, caller, *election, now)
}

func (s *IssuerService) openElection(ctx context.Context, electionID string, now time.Time) (*model.Election, error) {
	election, err := s.deps.Elections.Get(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("load election: %w", err)
	}
	if election == nil {
		return nil, ErrElectionNotFound
	}
	if !election.IsOpen(now) {
		return nil, ErrElectionNotOpen
	}
	return election, nil
}

// reissue handles a re-request while a live, unspent credential exists.
func (s *IssuerService) reissue(ctx context.Context, caller model.Caller, rec model.CredentialRecord, now time.Time) (IssuedCredential, error) {
	plaintext, err := s.deps.Escrow.Get(ctx, caller.ID, rec.ElectionID, now)
	if err != nil && !errors.Is(err, driven.ErrEscrowDisabled) {
		return IssuedCredential{}, fmt.Errorf("load escrowed credential: %w", err)
	}
	if plaintext == "" || model.HashCredential(plaintext) != rec.Hash {
		s.audit(ctx, model.AuditCredentialDenied, false, caller, rec.ElectionID, map[string]any{
			"reason":      "already_issued",
			"hash_prefix": model.HashPrefix(rec.Hash),
		})
		return IssuedCredential{}, ErrCredentialAlreadyIssued
	}

	s.audit(ctx, model.AuditCredentialReturned, true, caller, rec.ElectionID, map[string]any{
		"hash_prefix": model.HashPrefix(rec.Hash),
	})
	return IssuedCredential{Credential: plaintext, ExpiresAt: rec.ExpiresAt, Reissued: true}, nil
}

func (s *IssuerService) issue(ctx context.Context, caller model.Caller, election model.Election, now time.Time) (IssuedCredential, error) {
	plaintext, err := model.GenerateCredential()
	if err != nil {
		return IssuedCredential{}, err
	}
	hash := model.HashCredential(plaintext)

	expiresAt := now.Add(s.cfg.CredentialTTL)
	if election.EndsAt.Before(expiresAt) {
		expiresAt = election.EndsAt
	}

	rec := model.CredentialRecord{
		CallerRef:  caller.ID,
		ElectionID: election.ID,
		Hash:       hash,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}

	reserved, err := s.deps.Credentials.Reserve(ctx, rec, now)
	if err != nil {
		return IssuedCredential{}, fmt.Errorf("reserve credential record: %w", err)
	}
	if !reserved {
		// A concurrent request won the reservation and completed registration.
		current, err := s.deps.Credentials.Get(ctx, caller.ID, election.ID)
		if err != nil {
			return IssuedCredential{}, fmt.Errorf("load credential record: %w", err)
		}
		if current != nil && current.Used {
			return IssuedCredential{}, ErrAlreadyVoted
		}
		return IssuedCredential{}, ErrCredentialAlreadyIssued
	}

	err = s.deps.Recorder.RegisterHash(ctx, driven.HashRegistration{
		Hash:       hash,
		ElectionID: election.ID,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		s.logger.Warn("hash registration failed, credential withheld",
			"election_id", election.ID,
			"hash_prefix", model.HashPrefix(hash),
			"error", err,
		)
		s.audit(ctx, model.AuditRegistrationFailed, false, caller, election.ID, map[string]any{
			"hash_prefix": model.HashPrefix(hash),
		})
		return IssuedCredential{}, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	if err := s.deps.Credentials.ConfirmRegistration(ctx, caller.ID, election.ID, hash, now); err != nil {
		s.logger.Warn("confirm registration failed, credential withheld",
			"election_id", election.ID,
			"hash_prefix", model.HashPrefix(hash),
			"error", err,
		)
		s.audit(ctx, model.AuditRegistrationFailed, false, caller, election.ID, map[string]any{
			"hash_prefix": model.HashPrefix(hash),
			"reason":      "confirm_failed",
		})
		return IssuedCredential{}, fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	escrowUntil := now.Add(s.cfg.EscrowTTL)
	if expiresAt.Before(escrowUntil) {
		escrowUntil = expiresAt
	}
	if err := s.deps.Escrow.Put(ctx, caller.ID, election.ID, plaintext, escrowUntil); err != nil &&
		!errors.Is(err, driven.ErrEscrowDisabled) {
		s.logger.Warn("escrow credential failed", "election_id", election.ID, "error", err)
	}

	s.audit(ctx, model.AuditCredentialIssued, true, caller, election.ID, map[string]any{
		"hash_prefix": model.HashPrefix(hash),
	})
	return IssuedCredential{Credential: plaintext, ExpiresAt: expiresAt}, nil
}

// GetStatus reports whether the caller holds a registered credential for the
// election and whether it has been used. It never writes: an issued, unused
// record is checked against the recorder and a recorder failure falls back to
// the local view.
func (s *IssuerService) GetStatus(ctx context.Context, caller model.Caller, electionID string) (CredentialStatus, error) {
	rec, err := s.deps.Credentials.Get(ctx, caller.ID, electionID)
	if err != nil {
		return CredentialStatus{}, fmt.Errorf("load credential record: %w", err)
	}
	if rec == nil || !rec.Registered() {
		return CredentialStatus{}, nil
	}
	if rec.Used {
		return CredentialStatus{Issued: true, Used: true}, nil
	}

	status, err := s.deps.Recorder.HashStatus(ctx, rec.Hash)
	if err != nil {
		s.logger.Warn("recorder status lookup failed",
			"election_id", rec.ElectionID,
			"hash_prefix", model.HashPrefix(rec.Hash),
			"error", err,
		)
		return CredentialStatus{Issued: true}, nil
	}
	return CredentialStatus{Issued: true, Used: status.Used}, nil
}

// syncUsed asks the recorder whether rec's hash has been spent. A spent hash
// is written back to the local record and reported as ErrAlreadyVoted. An
// unreachable recorder fails the request closed with ErrRegistrationFailed.
func (s *IssuerService) syncUsed(ctx context.Context, caller model.Caller, rec model.CredentialRecord, now time.Time) error {
	status, err := s.deps.Recorder.HashStatus(ctx, rec.Hash)
	if err != nil {
		s.logger.Warn("recorder status sync failed, credential withheld",
			"election_id", rec.ElectionID,
			"hash_prefix", model.HashPrefix(rec.Hash),
			"error", err,
		)
		s.audit(ctx, model.AuditCredentialDenied, false, caller, rec.ElectionID, map[string]any{
			"reason":      "status_unavailable",
			"hash_prefix": model.HashPrefix(rec.Hash),
		})
		return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}
	if !status.Used {
		return nil
	}

	if err := s.deps.Credentials.MarkUsed(ctx, rec.CallerRef, rec.ElectionID, rec.Hash, now); err != nil {
		s.logger.Warn("mark credential used failed", "election_id", rec.ElectionID, "error", err)
	}
	if err := s.deps.Escrow.Delete(ctx, rec.CallerRef, rec.ElectionID); err != nil &&
		!errors.Is(err, driven.ErrEscrowDisabled) {
		s.logger.Warn("delete escrowed credential failed", "election_id", rec.ElectionID, "error", err)
	}
	s.audit(ctx, model.AuditStatusSynced, true, caller, rec.ElectionID, map[string]any{
		"hash_prefix": model.HashPrefix(rec.Hash),
	})
	s.audit(ctx, model.AuditCredentialDenied, false, caller, rec.ElectionID, map[string]any{"reason": "already_voted"})
	return ErrAlreadyVoted
}

// FetchResults relays the recorder's tally for a closed election to an
// eligible caller. Counts are passed through untouched.
func (s *IssuerService) FetchResults(ctx context.Context, caller model.Caller, electionID string) (model.Tally, error) {
	if !caller.Eligible {
		return model.Tally{}, ErrNotEligible
	}

	election, err := s.deps.Elections.Get(ctx, electionID)
	if err != nil {
		return model.Tally{}, fmt.Errorf("load election: %w", err)
	}
	if election == nil {
		return model.Tally{}, ErrElectionNotFound
	}
	if !election.IsClosed() {
		return model.Tally{}, ErrResultsNotAvailable
	}

	tally, err := s.deps.Recorder.Tally(ctx, electionID)
	if err != nil {
		s.audit(ctx, model.AuditResultsFetched, false, caller, electionID, nil)
		return model.Tally{}, fmt.Errorf("fetch results: %w", err)
	}

	s.audit(ctx, model.AuditResultsFetched, true, caller, electionID, map[string]any{"total": tally.Total})
	return tally, nil
}

// audit records an entry and logs, rather than returns, a failure.
func (s *IssuerService) audit(ctx context.Context, action model.AuditAction, success bool, caller model.Caller, electionID string, details map[string]any) {
	d := map[string]any{
		"caller":      model.Redact(caller.ID),
		"election_id": electionID,
	}
	for k, v := range details {
		d[k] = v
	}

	err := s.deps.Audit.Record(ctx, model.AuditEntry{
		Action:    action,
		Success:   success,
		Details:   d,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

// purgeExpired drops expired escrow rows and rate-limit buckets at most once
// per purgeInterval.
func (s *IssuerService) purgeExpired(ctx context.Context, now time.Time) {
	last := s.lastPurge.Load()
	if now.UnixNano()-last < int64(purgeInterval) {
		return
	}
	if !s.lastPurge.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	if _, err := s.deps.Escrow.PurgeExpired(ctx, now); err != nil && !errors.Is(err, driven.ErrEscrowDisabled) {
		s.logger.Warn("purge expired escrow failed", "error", err)
	}
	if _, err := s.deps.Limiter.PurgeExpired(ctx, now); err != nil {
		s.logger.Warn("purge expired rate limits failed", "error", err)
	}
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrElectionNotFound):
		return "election_not_found"
	case errors.Is(err, ErrElectionNotOpen):
		return "election_not_open"
	default:
		return "error"
	}
}
