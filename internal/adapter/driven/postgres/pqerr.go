package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ericfisherdev/ballotbox/internal/domain/port/driven"
)

// SQLSTATE codes the recorder reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeTooManyConnections   = "53300"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isContention(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch pqCode(err) {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected,
		codeTooManyConnections, codeQueryCanceled:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

func wrapErr(op string, err error) error {
	if isContention(err) {
		return fmt.Errorf("%s: %w: %v", op, driven.ErrContention, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
