package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if hasPGCode(err, pgUniqueViolation) {
		return true
	}

	// PostgreSQL without pgconn wrapping
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsSerializationFailure reports transaction conflicts the caller may retry.
func IsSerializationFailure(err error) bool {
	return hasPGCode(err, pgSerializationFailure) || hasPGCode(err, pgDeadlockDetected)
}

// IsLockTimeout reports a NOWAIT or lock_timeout failure on a row lock.
func IsLockTimeout(err error) bool {
	return hasPGCode(err, pgLockNotAvailable)
}

// IsConflict reports any storage-level race between concurrent writers.
func IsConflict(err error) bool {
	return IsSerializationFailure(err) || IsLockTimeout(err)
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
