package driven

import (
	"context"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

// MembershipVerifier resolves a caller token issued by the external identity
// provider into a caller identity and eligibility flag.
// Returns ErrUnauthenticated when the token is missing, invalid, or expired.
type MembershipVerifier interface {
	Verify(ctx context.Context, token string) (model.Caller, error)
}
