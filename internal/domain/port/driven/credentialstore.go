package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

// CredentialStore defines the issuer's driven port for credential records.
// Records are unique per (caller, election) and never deleted.
type CredentialStore interface {
	// Get returns the record for the caller and election, or nil, nil when none exists.
	Get(ctx context.Context, callerRef, electionID string) (*model.CredentialRecord, error)

	// Reserve atomically writes rec as a pending record. It inserts when no
	// record exists and overwrites a record that is pending, or unused and
	// expired at now. It returns false when a live record already exists.
	Reserve(ctx context.Context, rec model.CredentialRecord, now time.Time) (bool, error)

	// ConfirmRegistration marks the pending record carrying hash as registered.
	// Returns ErrReservationLost when the record no longer carries hash.
	ConfirmRegistration(ctx context.Context, callerRef, electionID, hash string, at time.Time) error

	// MarkUsed flips the record carrying hash to used. Idempotent.
	MarkUsed(ctx context.Context, callerRef, electionID, hash string, at time.Time) error
}
