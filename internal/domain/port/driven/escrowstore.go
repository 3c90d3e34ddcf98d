package driven

import (
	"context"
	"errors"
	"time"
)

// ErrEscrowDisabled is returned by EscrowStore operations when
// BALLOTBOX_ESCROW_KEY has not been configured.
var ErrEscrowDisabled = errors.New("credential escrow disabled: set BALLOTBOX_ESCROW_KEY")

// EscrowStore holds recently issued plaintext credentials for a short grace
// window so an interrupted caller can retrieve the same credential. The
// adapter is responsible for encryption; this interface deals in plaintext.
type EscrowStore interface {
	// Put stores or replaces the escrowed credential for the caller and election.
	Put(ctx context.Context, callerRef, electionID, plaintext string, expiresAt time.Time) error

	// Get returns the escrowed credential, or "" when none exists or it
	// expired at or before now.
	Get(ctx context.Context, callerRef, electionID string, now time.Time) (string, error)

	// Delete removes the escrowed credential. No-op when none exists.
	Delete(ctx context.Context, callerRef, electionID string) error

	// PurgeExpired deletes all escrow entries expired at now and returns how many.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
