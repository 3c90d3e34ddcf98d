package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditStore = (*AuditRepo)(nil)

// AuditRepo writes audit entries to the audit_log table present in both the
// issuer and the recorder schema.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo backed by the given DB.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Record appends an entry. Missing ID and CreatedAt are filled in.
func (r *AuditRepo) Record(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	const query = `INSERT INTO audit_log (id, action, success, details, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err = r.db.Writer.ExecContext(ctx, query, entry.ID, string(entry.Action), entry.Success, string(data), formatTime(entry.CreatedAt))
	if err != nil {
		return wrapErr(fmt.Sprintf("record audit %s", entry.Action), err)
	}
	return nil
}

// Prune deletes entries created before the cutoff.
func (r *AuditRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM audit_log WHERE created_at < ?`
	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(before))
	if err != nil {
		return 0, wrapErr("prune audit log", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return n, nil
}
