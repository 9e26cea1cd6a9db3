// Package sqlgraph classifies errors reported by the database engines.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ConstraintError describes a constraint violation reported by the database.
type ConstraintError struct {
	Kind       string // "unique", "foreign_key", "check" or "not_null"
	Constraint string // Constraint name, when the driver reports it
	Err        error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	if e.Constraint != "" {
		return e.Kind + " constraint " + e.Constraint + " violated: " + e.Err.Error()
	}
	return e.Kind + " constraint violated: " + e.Err.Error()
}

// Unwrap returns the driver error.
func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// Classify wraps err in a ConstraintError when it reports a constraint
// violation, and returns it unchanged otherwise.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return err
	}
	var kind string
	switch {
	case IsUniqueConstraintError(err):
		kind = "unique"
	case IsForeignKeyConstraintError(err):
		kind = "foreign_key"
	case IsCheckConstraintError(err):
		kind = "check"
	case IsNotNullConstraintError(err):
		kind = "not_null"
	default:
		return err
	}
	return &ConstraintError{Kind: kind, Constraint: constraintName(err), Err: err}
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err) ||
		IsNotNullConstraintError(err)
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by *pgconn.PgError and wrappers of it.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// sqlState extracts the SQLSTATE code from the Postgres drivers' errors.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState()
	}
	return ""
}

// constraintName returns the violated constraint name reported by Postgres.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == pgUniqueViolation {
		return true
	}
	// SQLite reports constraint failures through the message only.
	return containsAny(err.Error(),
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == pgForeignKeyViolation {
		return true
	}
	return containsAny(err.Error(),
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
// e.g. an enum value outside its allowed set.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == pgCheckViolation {
		return true
	}
	return containsAny(err.Error(),
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

// IsNotNullConstraintError reports if the error resulted from a NOT NULL violation.
func IsNotNullConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == pgNotNullViolation {
		return true
	}
	return containsAny(err.Error(),
		"violates not-null constraint", // Postgres
		"NOT NULL constraint failed",   // SQLite
	)
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
