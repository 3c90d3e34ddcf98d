// Package driven defines secondary port interfaces for external adapters.
package driven

import "errors"

// Sentinel errors returned by driven adapters. Adapters wrap them with
// context; callers match with errors.Is.
var (
	// ErrDuplicateHash indicates the credential hash is already registered.
	ErrDuplicateHash = errors.New("credential hash already registered")

	// ErrNotRegistered indicates no registration exists for the credential hash.
	ErrNotRegistered = errors.New("credential not registered")

	// ErrAlreadyUsed indicates the credential has already cast a ballot.
	ErrAlreadyUsed = errors.New("credential already used")

	// ErrCredentialExpired indicates the credential registration has expired.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrContention indicates a transient lock, pool, or timeout condition.
	// It is the only driven error that is safe to retry unchanged.
	ErrContention = errors.New("transient contention, retry shortly")

	// ErrReservationLost indicates a pending credential record was replaced by
	// a concurrent request before its registration could be confirmed.
	ErrReservationLost = errors.New("credential reservation lost")

	// ErrUnauthenticated indicates the membership provider rejected the caller token.
	ErrUnauthenticated = errors.New("caller not authenticated")

	// ErrUnavailable indicates a remote dependency could not be reached or
	// answered with a server error.
	ErrUnavailable = errors.New("dependency unavailable")
)
