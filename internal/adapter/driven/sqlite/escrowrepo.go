package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EscrowStore = (*EscrowRepo)(nil)

// EscrowRepo is the SQLite implementation of the EscrowStore port.
// Plaintext credentials are encrypted with AES-256-GCM before write and
// decrypted after read. The (caller, election) pair is bound as additional
// authenticated data so a ciphertext cannot be replayed under another row.
type EscrowRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when escrow is disabled.
}

// NewEscrowRepo creates a new EscrowRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable escrow (Put and Get return ErrEscrowDisabled).
func NewEscrowRepo(db *DB, key []byte) *EscrowRepo {
	return &EscrowRepo{db: db, key: key}
}

// Put stores or replaces the escrowed credential.
func (r *EscrowRepo) Put(ctx context.Context, callerRef, electionID, plaintext string, expiresAt time.Time) error {
	encrypted, err := r.encrypt(plaintext, aad(callerRef, electionID))
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO credential_escrow (caller_ref, election_id, ciphertext, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (caller_ref, election_id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			expires_at = excluded.expires_at`
	_, err = r.db.Writer.ExecContext(ctx, query, callerRef, electionID, encrypted, formatTime(expiresAt))
	if err != nil {
		return wrapErr(fmt.Sprintf("escrow credential for election %s", electionID), err)
	}
	return nil
}

// Get returns the escrowed plaintext, or "" when absent or expired at now.
func (r *EscrowRepo) Get(ctx context.Context, callerRef, electionID string, now time.Time) (string, error) {
	if r.key == nil {
		return "", driven.ErrEscrowDisabled
	}

	const query = `
		SELECT ciphertext FROM credential_escrow
		WHERE caller_ref = ? AND election_id = ? AND expires_at > ?`
	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, callerRef, electionID, formatTime(now)).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapErr(fmt.Sprintf("get escrowed credential for election %s", electionID), err)
	}

	plaintext, err := r.decrypt(encrypted, aad(callerRef, electionID))
	if err != nil {
		return "", fmt.Errorf("decrypt escrowed credential for election %s: %w", electionID, err)
	}
	return plaintext, nil
}

// Delete removes the escrowed credential for the caller and election.
func (r *EscrowRepo) Delete(ctx context.Context, callerRef, electionID string) error {
	const query = `DELETE FROM credential_escrow WHERE caller_ref = ? AND election_id = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, callerRef, electionID)
	if err != nil {
		return wrapErr(fmt.Sprintf("delete escrowed credential for election %s", electionID), err)
	}
	return nil
}

// PurgeExpired deletes escrow rows expired at now.
func (r *EscrowRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM credential_escrow WHERE expires_at <= ?`
	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(now))
	if err != nil {
		return 0, wrapErr("purge expired escrow", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return n, nil
}

func aad(callerRef, electionID string) []byte {
	return []byte(callerRef + "\x00" + electionID)
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *EscrowRepo) encrypt(plaintext string, additional []byte) (string, error) {
	if r.key == nil {
		return "", driven.ErrEscrowDisabled
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), additional)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *EscrowRepo) decrypt(encoded string, additional []byte) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *EscrowRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
