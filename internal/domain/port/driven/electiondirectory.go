package driven

import (
	"context"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

// ElectionDirectory provides read-only election metadata.
// Get returns nil, nil when the election is unknown.
type ElectionDirectory interface {
	Get(ctx context.Context, id string) (*model.Election, error)
}
