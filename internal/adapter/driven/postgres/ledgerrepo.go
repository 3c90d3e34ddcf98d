package postgres

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
var _ driven.LedgerStore = (*LedgerRepo)(nil)

// LedgerRepo is the PostgreSQL implementation of the recorder's LedgerStore.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo creates a new LedgerRepo backed by the given pool.
func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// RegisterHash inserts an unused registration. The primary key rejects
// duplicates; the existing row is never updated.
func (r *LedgerRepo) RegisterHash(ctx context.Context, rec model.CredentialHashRecord) error {
	const query = `
		INSERT INTO credential_hashes (hash, election_id, registered_at, expires_at, used, used_at)
		VALUES ($1, $2, $3, $4, FALSE, NULL)`

	var expiresAt sql.NullTime
	if rec.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: rec.ExpiresAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, rec.Hash, rec.ElectionID, rec.RegisteredAt.UTC(), expiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("register hash %s: %w", model.HashPrefix(rec.Hash), driven.ErrDuplicateHash)
		}
		return wrapErr(fmt.Sprintf("register hash %s", model.HashPrefix(rec.Hash)), err)
	}
	return nil
}

// GetHash returns the registration for hash, or nil, nil when absent.
func (r *LedgerRepo) GetHash(ctx context.Context, hash string) (*model.CredentialHashRecord, error) {
	const query = `
		SELECT hash, election_id, registered_at, expires_at, used, used_at
		FROM credential_hashes WHERE hash = $1`

	var (
		rec               model.CredentialHashRecord
		expiresAt, usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&rec.Hash, &rec.ElectionID, &rec.RegisteredAt, &expiresAt, &rec.Used, &usedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get hash %s", model.HashPrefix(hash)), err)
	}

	rec.RegisteredAt = rec.RegisteredAt.UTC()
	rec.ExpiresAt = nullTimePtr(expiresAt)
	rec.UsedAt = nullTimePtr(usedAt)
	return &rec, nil
}

// CastBallot locks the registration row with FOR UPDATE NOWAIT inside a
// SERIALIZABLE transaction, then inserts the ballot and marks the row used.
// A held lock fails immediately with SQLSTATE 55P03, reported as ErrContention.
func (r *LedgerRepo) CastBallot(ctx context.Context, ballot model.Ballot, now time.Time) (model.Ballot, error) {
	op := fmt.Sprintf("cast ballot %s", model.HashPrefix(ballot.CredentialHash))

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return model.Ballot{}, wrapErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		electionID string
		expiresAt  sql.NullTime
		used       bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT election_id, expires_at, used FROM credential_hashes WHERE hash = $1 FOR UPDATE NOWAIT`,
		ballot.CredentialHash,
	).Scan(&electionID, &expiresAt, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ballot{}, fmt.Errorf("%s: %w", op, driven.ErrNotRegistered)
	}
	if err != nil {
		return model.Ballot{}, wrapErr(op, err)
	}
	if used {
		return model.Ballot{}, fmt.Errorf("%s: %w", op, driven.ErrAlreadyUsed)
	}
	if expiresAt.Valid && !now.Before(expiresAt.Time) {
		return model.Ballot{}, fmt.Errorf("%s: %w", op, driven.ErrCredentialExpired)
	}

	ballot.ElectionID = electionID
	ballot.SubmittedAt = model.CoarseTime(ballot.SubmittedAt)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ballots (id, election_id, credential_hash, answer, submitted_at) VALUES ($1, $2, $3, $4, $5)`,
		ballot.ID, ballot.ElectionID, ballot.CredentialHash, string(ballot.Answer), ballot.SubmittedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Ballot{}, fmt.Errorf("%s: %w", op, driven.ErrAlreadyUsed)
		}
		return model.Ballot{}, wrapErr(op, err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE credential_hashes SET used = TRUE, used_at = $1 WHERE hash = $2 AND used = FALSE`,
		ballot.SubmittedAt, ballot.CredentialHash,
	)
	if err != nil {
		return model.Ballot{}, wrapErr(op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return model.Ballot{}, fmt.Errorf("%s: check rows affected: %w", op, err)
	}
	if rows != 1 {
		return model.Ballot{}, fmt.Errorf("%s: %w", op, driven.ErrAlreadyUsed)
	}

	if err := tx.Commit(); err != nil {
		return model.Ballot{}, wrapErr(op, err)
	}
	return ballot, nil
}

// Tally counts ballots per answer. Every allowed answer is present in the result.
func (r *LedgerRepo) Tally(ctx context.Context, electionID string) (model.Tally, error) {
	const query = `SELECT answer, COUNT(*) FROM ballots WHERE election_id = $1 GROUP BY answer`

	rows, err := r.db.QueryContext(ctx, query, electionID)
	if err != nil {
		return model.Tally{}, wrapErr(fmt.Sprintf("tally election %s", electionID), err)
	}
	defer rows.Close()

	tally := model.NewTally(electionID)
	for rows.Next() {
		var (
			answer string
			count  int
		)
		if err := rows.Scan(&answer, &count); err != nil {
			return model.Tally{}, fmt.Errorf("scan tally row: %w", err)
		}
		tally.Counts[model.Answer(answer)] = count
		tally.Total += count
	}
	if err := rows.Err(); err != nil {
		return model.Tally{}, fmt.Errorf("iterate tally rows: %w", err)
	}
	return tally, nil
}

// ResetElection deletes ballots, then registrations, for an election.
func (r *LedgerRepo) ResetElection(ctx context.Context, electionID string) (driven.ResetResult, error) {
	op := fmt.Sprintf("reset election %s", electionID)

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return driven.ResetResult{}, wrapErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var res driven.ResetResult

	result, err := tx.ExecContext(ctx, `DELETE FROM ballots WHERE election_id = $1`, electionID)
	if err != nil {
		return driven.ResetResult{}, wrapErr(op, err)
	}
	if res.Ballots, err = result.RowsAffected(); err != nil {
		return driven.ResetResult{}, fmt.Errorf("%s: check rows affected: %w", op, err)
	}

	result, err = tx.ExecContext(ctx, `DELETE FROM credential_hashes WHERE election_id = $1`, electionID)
	if err != nil {
		return driven.ResetResult{}, wrapErr(op, err)
	}
	if res.Hashes, err = result.RowsAffected(); err != nil {
		return driven.ResetResult{}, fmt.Errorf("%s: check rows affected: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return driven.ResetResult{}, wrapErr(op, err)
	}
	return res, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
