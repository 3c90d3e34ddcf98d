package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

// ResetResult reports what an administrative election reset removed.
type ResetResult struct {
	Ballots int64
	Hashes  int64
}

// LedgerStore is the ballot recorder's driven port: credential hash
// registrations and the ballots cast with them. Implementations must not
// cache credential state in process.
type LedgerStore interface {
	// RegisterHash inserts a new unused registration.
	// Returns ErrDuplicateHash when the hash exists; the existing row is untouched.
	RegisterHash(ctx context.Context, rec model.CredentialHashRecord) error

	// GetHash returns the registration for hash, or nil, nil when absent.
	GetHash(ctx context.Context, hash string) (*model.CredentialHashRecord, error)

	// CastBallot atomically locks the registration for ballot.CredentialHash
	// without waiting, verifies it is unused and unexpired at now, inserts the
	// ballot, and marks the registration used. ballot.ElectionID is filled
	// from the registration. Returns ErrNotRegistered, ErrAlreadyUsed,
	// ErrCredentialExpired, or ErrContention; on any error nothing is written.
	CastBallot(ctx context.Context, ballot model.Ballot, now time.Time) (model.Ballot, error)

	// Tally counts ballots per answer for an election.
	Tally(ctx context.Context, electionID string) (model.Tally, error)

	// ResetElection deletes every ballot and registration for an election in
	// one transaction.
	ResetElection(ctx context.Context, electionID string) (ResetResult, error)
}
