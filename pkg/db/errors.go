package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgCodeLockNotAvailable = "55P03"
	pgCodeDeadlockDetected = "40P01"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}

// IsLockTimeout reports whether the error is a Postgres lock_not_available
// failure, raised when a bounded-wait row lock exceeds lock_timeout.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	if code := pgErrorCode(err); code != "" {
		return code == pgCodeLockNotAvailable
	}
	return strings.Contains(err.Error(), "lock timeout") ||
		strings.Contains(err.Error(), "canceling statement due to lock timeout")
}

// IsDeadlock reports whether the error is a genuine Postgres deadlock.
func IsDeadlock(err error) bool {
	if err == nil {
		return false
	}
	if code := pgErrorCode(err); code != "" {
		return code == pgCodeDeadlockDetected
	}
	return strings.Contains(err.Error(), "deadlock detected")
}

func pgErrorCode(err error) string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
