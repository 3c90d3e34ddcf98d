package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/model"
	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the issuer's CredentialStore.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Get returns the credential record for the caller and election, or nil, nil.
func (r *CredentialRepo) Get(ctx context.Context, callerRef, electionID string) (*model.CredentialRecord, error) {
	const query = `
		SELECT caller_ref, election_id, hash, issued_at, expires_at, registered_at, used, used_at
		FROM credential_records
		WHERE caller_ref = ? AND election_id = ?`

	var (
		rec                  model.CredentialRecord
		issuedAt, expiresAt  string
		registeredAt, usedAt *string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, callerRef, electionID).Scan(
		&rec.CallerRef, &rec.ElectionID, &rec.Hash, &issuedAt, &expiresAt, &registeredAt, &rec.Used, &usedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get credential record for election %s", electionID), err)
	}

	if rec.IssuedAt, err = parseTime(issuedAt); err != nil {
		return nil, fmt.Errorf("parse issued_at: %w", err)
	}
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if rec.RegisteredAt, err = parseNullTime(registeredAt); err != nil {
		return nil, fmt.Errorf("parse registered_at: %w", err)
	}
	if rec.UsedAt, err = parseNullTime(usedAt); err != nil {
		return nil, fmt.Errorf("parse used_at: %w", err)
	}

	return &rec, nil
}

// Reserve inserts rec as a pending record, or overwrites an existing record
// that is unused and either still pending or expired at now. A live record
// (registered, unexpired) or a used record is never touched.
func (r *CredentialRepo) Reserve(ctx context.Context, rec model.CredentialRecord, now time.Time) (bool, error) {
	const query = `
		INSERT INTO credential_records (caller_ref, election_id, hash, issued_at, expires_at, registered_at, used, used_at)
		VALUES (?, ?, ?, ?, ?, NULL, 0, NULL)
		ON CONFLICT (caller_ref, election_id) DO UPDATE SET
			hash          = excluded.hash,
			issued_at     = excluded.issued_at,
			expires_at    = excluded.expires_at,
			registered_at = NULL
		WHERE credential_records.used = 0
		  AND (credential_records.registered_at IS NULL OR credential_records.expires_at <= ?)`

	result, err := r.db.Writer.ExecContext(ctx, query,
		rec.CallerRef, rec.ElectionID, rec.Hash,
		formatTime(rec.IssuedAt), formatTime(rec.ExpiresAt),
		formatTime(now),
	)
	if err != nil {
		return false, wrapErr(fmt.Sprintf("reserve credential for election %s", rec.ElectionID), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows == 1, nil
}

// ConfirmRegistration stamps registered_at on the pending record carrying hash.
func (r *CredentialRepo) ConfirmRegistration(ctx context.Context, callerRef, electionID, hash string, at time.Time) error {
	const query = `
		UPDATE credential_records SET registered_at = ?
		WHERE caller_ref = ? AND election_id = ? AND hash = ? AND registered_at IS NULL`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), callerRef, electionID, hash)
	if err != nil {
		return wrapErr(fmt.Sprintf("confirm registration %s", model.HashPrefix(hash)), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("confirm registration %s: %w", model.HashPrefix(hash), driven.ErrReservationLost)
	}
	return nil
}

// MarkUsed flips used to true for the record carrying hash. The usage time is
// stored at ballot granularity so it cannot be matched against the recorder's
// ballot timestamps more precisely than those are kept.
func (r *CredentialRepo) MarkUsed(ctx context.Context, callerRef, electionID, hash string, at time.Time) error {
	const query = `
		UPDATE credential_records SET used = 1, used_at = COALESCE(used_at, ?)
		WHERE caller_ref = ? AND election_id = ? AND hash = ?`

	_, err := r.db.Writer.ExecContext(ctx, query, formatTime(model.CoarseTime(at)), callerRef, electionID, hash)
	if err != nil {
		return wrapErr(fmt.Sprintf("mark credential %s used", model.HashPrefix(hash)), err)
	}
	return nil
}
