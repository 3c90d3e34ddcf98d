package model

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// CredentialBytes is the entropy of a voting credential (256 bits).
	CredentialBytes = 32

	// HashLength is the length of a hex-encoded SHA-256 credential hash.
	HashLength = sha256.Size * 2

	hashPrefixLength = 8
)

// CredentialRecord is the issuer-side record of a credential handed to a
// caller. CallerRef is PII and never leaves the issuer.
type CredentialRecord struct {
	CallerRef    string
	ElectionID   string
	Hash         string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RegisteredAt *time.Time // nil while registration with the recorder is pending.
	Used         bool
	UsedAt       *time.Time
}

// Registered reports whether the recorder has confirmed this credential's hash.
func (c CredentialRecord) Registered() bool {
	return c.RegisteredAt != nil
}

// Expired reports whether the credential is past its expiry at now.
func (c CredentialRecord) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CredentialHashRecord is the recorder-side registration of a credential hash.
// It carries no caller identity.
type CredentialHashRecord struct {
	Hash         string
	ElectionID   string
	RegisteredAt time.Time
	ExpiresAt    *time.Time
	Used         bool
	UsedAt       *time.Time
}

// Expired reports whether the registration has an expiry at or before now.
func (c CredentialHashRecord) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// GenerateCredential returns a fresh credential: 256 random bits encoded as
// unpadded base64url.
func GenerateCredential() (string, error) {
	b := make([]byte, CredentialBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashCredential returns the lowercase hex SHA-256 digest of a plaintext credential.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether h is a well-formed credential hash: exactly
// HashLength lowercase hex characters.
func ValidHash(h string) bool {
	if len(h) != HashLength {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// HashPrefix returns the short prefix of a hash that is safe to log.
func HashPrefix(h string) string {
	if len(h) <= hashPrefixLength {
		return h
	}
	return h[:hashPrefixLength]
}

// Redact keeps the first few characters of an identifier and masks the rest.
func Redact(s string) string {
	const keep = 4
	if len(s) <= keep {
		return "****"
	}
	return s[:keep] + "****"
}
