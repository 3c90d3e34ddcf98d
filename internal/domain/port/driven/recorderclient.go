package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

// HashRegistration is the payload of the S2S hash-registration call.
type HashRegistration struct {
	Hash       string
	ElectionID string
	ExpiresAt  time.Time
}

// HashStatus is the recorder's view of a registered hash.
type HashStatus struct {
	Registered bool
	Used       bool
}

// RecorderClient is the issuer's server-to-server port to the ballot recorder.
// It carries only hashes and aggregate numbers.
type RecorderClient interface {
	// RegisterHash announces a credential hash. Returns ErrDuplicateHash on 409.
	RegisterHash(ctx context.Context, reg HashRegistration) error

	// HashStatus reports registration and usage for a hash.
	HashStatus(ctx context.Context, hash string) (HashStatus, error)

	// Tally fetches the raw per-answer counts for an election.
	Tally(ctx context.Context, electionID string) (model.Tally, error)
}
