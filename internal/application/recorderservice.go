package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// VoterStatus is the public view of a credential: whether it can still be
// presented and whether it has been spent.
type VoterStatus struct {
	Valid bool
	Used  bool
}

// RecorderService accepts hash registrations from the issuer, records
// ballots cast with plaintext credentials, and computes tallies. It never
// sees caller identity and keeps no credential state in memory.
type RecorderService struct {
	ledger driven.LedgerStore
	audit  driven.AuditStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewRecorderService creates a new RecorderService with the required dependencies.
func NewRecorderService(ledger driven.LedgerStore, audit driven.AuditStore, logger *slog.Logger) *RecorderService {
	return &RecorderService{
		ledger: ledger,
		audit:  audit,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RegisterHash records a credential hash announced by the issuer. A duplicate
// is rejected with driven.ErrDuplicateHash and leaves the existing row as is.
func (s *RecorderService) RegisterHash(ctx context.Context, reg driven.HashRegistration) error {
	if !model.ValidHash(reg.Hash) {
		s.record(ctx, model.AuditHashRegistered, false, map[string]any{"reason": "invalid_hash_format"})
		return ErrInvalidHashFormat
	}
	if reg.ElectionID == "" {
		s.record(ctx, model.AuditHashRegistered, false, map[string]any{
			"hash_prefix": model.HashPrefix(reg.Hash),
			"reason":      "invalid_election",
		})
		return ErrInvalidElection
	}

	rec := model.CredentialHashRecord{
		Hash:         reg.Hash,
		ElectionID:   reg.ElectionID,
		RegisteredAt: s.now(),
	}
	if !reg.ExpiresAt.IsZero() {
		exp := reg.ExpiresAt.UTC()
		rec.ExpiresAt = &exp
	}

	err := s.ledger.RegisterHash(ctx, rec)
	details := map[string]any{
		"hash_prefix": model.HashPrefix(reg.Hash),
		"election_id": reg.ElectionID,
	}
	if err != nil {
		details["reason"] = failureReason(err)
		s.record(ctx, model.AuditHashRegistered, false, details)
		return err
	}

	s.record(ctx, model.AuditHashRegistered, true, details)
	return nil
}

// SubmitBallot casts answer with a plaintext credential. The answer is
// validated before the credential is looked at, so bad input never spends a
// credential. Contention is reported as driven.ErrContention for the caller
// to retry.
func (s *RecorderService) SubmitBallot(ctx context.Context, credential, answer string) (model.Ballot, error) {
	details := map[string]any{}
	if credential != "" {
		details["hash_prefix"] = model.HashPrefix(model.HashCredential(credential))
	}

	a := model.Answer(answer)
	if !a.Valid() {
		details["reason"] = "invalid_answer"
		s.record(ctx, model.AuditBallotCast, false, details)
		return model.Ballot{}, ErrInvalidAnswer
	}
	if credential == "" {
		details["reason"] = "missing_credential"
		s.record(ctx, model.AuditBallotCast, false, details)
		return model.Ballot{}, ErrMissingCredential
	}

	now := s.now()
	ballot, err := s.ledger.CastBallot(ctx, model.Ballot{
		ID:             s.newID(),
		CredentialHash: model.HashCredential(credential),
		Answer:         a,
		SubmittedAt:    now,
	}, now)
	if err != nil {
		details["reason"] = failureReason(err)
		s.record(ctx, model.AuditBallotCast, false, details)
		return model.Ballot{}, err
	}

	details["election_id"] = ballot.ElectionID
	s.record(ctx, model.AuditBallotCast, true, details)
	return ballot, nil
}

// CredentialStatus reports whether a plaintext credential is registered and
// unexpired, and whether it has been used.
func (s *RecorderService) CredentialStatus(ctx context.Context, credential string) (VoterStatus, error) {
	if credential == "" {
		return VoterStatus{}, ErrMissingCredential
	}

	rec, err := s.ledger.GetHash(ctx, model.HashCredential(credential))
	if err != nil {
		return VoterStatus{}, err
	}
	if rec == nil {
		return VoterStatus{}, nil
	}
	return VoterStatus{Valid: !rec.Expired(s.now()), Used: rec.Used}, nil
}

// HashStatus reports registration and usage of a hash for the issuer's status sync.
func (s *RecorderService) HashStatus(ctx context.Context, hash string) (driven.HashStatus, error) {
	if !model.ValidHash(hash) {
		return driven.HashStatus{}, ErrInvalidHashFormat
	}

	rec, err := s.ledger.GetHash(ctx, hash)
	if err != nil {
		return driven.HashStatus{}, err
	}
	if rec == nil {
		return driven.HashStatus{}, nil
	}
	return driven.HashStatus{Registered: true, Used: rec.Used}, nil
}

// GetTally recomputes the per-answer counts for an election from the ledger.
func (s *RecorderService) GetTally(ctx context.Context, electionID string) (model.Tally, error) {
	if electionID == "" {
		return model.Tally{}, ErrInvalidElection
	}
	return s.ledger.Tally(ctx, electionID)
}

// ResetElection deletes all ballots and registrations for an election. It is
// an administrative operation between election runs and is always audited.
func (s *RecorderService) ResetElection(ctx context.Context, electionID string) (driven.ResetResult, error) {
	if electionID == "" {
		return driven.ResetResult{}, ErrInvalidElection
	}

	res, err := s.ledger.ResetElection(ctx, electionID)
	if err != nil {
		s.record(ctx, model.AuditElectionReset, false, map[string]any{"election_id": electionID})
		return driven.ResetResult{}, fmt.Errorf("reset election: %w", err)
	}

	s.logger.Info("election reset", "election_id", electionID, "ballots", res.Ballots, "hashes", res.Hashes)
	s.record(ctx, model.AuditElectionReset, true, map[string]any{
		"election_id": electionID,
		"ballots":     res.Ballots,
		"hashes":      res.Hashes,
	})
	return res, nil
}

func (s *RecorderService) record(ctx context.Context, action model.AuditAction, success bool, details map[string]any) {
	err := s.audit.Record(ctx, model.AuditEntry{
		Action:    action,
		Success:   success,
		Details:   details,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

// failureReason maps an error to the short code written to the audit log.
func failureReason(err error) string {
	switch {
	case errors.Is(err, driven.ErrDuplicateHash):
		return "duplicate_hash"
	case errors.Is(err, driven.ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, driven.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, driven.ErrCredentialExpired):
		return "credential_expired"
	case errors.Is(err, driven.ErrContention):
		return "contention"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
