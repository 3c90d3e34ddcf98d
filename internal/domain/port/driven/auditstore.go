package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
)

// AuditStore is the append-only audit trail. Entries are never read back by
// business logic.
type AuditStore interface {
	Record(ctx context.Context, entry model.AuditEntry) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}
