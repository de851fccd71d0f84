package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no person matches a lookup.
	ErrNotFound = errors.New("person not found")

	// ErrConflict is returned when the database rejects an insert, e.g. because the personal
	// id is already taken.
	ErrConflict = errors.New("conflicting person")

	// ErrConcurrency is returned when a person was modified or removed between being read and
	// being written.
	ErrConcurrency = errors.New("person was modified concurrently")
)

// Error keeps the driver error behind one of the sentinels above, so callers can use
// errors.Is on the sentinel and still log the cause.
type Error struct {
	Sentinel error
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Sentinel, e.Cause)
}

func (e *Error) Is(target error) bool { return e.Sentinel == target }
func (e *Error) Unwrap() error        { return e.Cause }

// mapError translates driver errors into the sentinels of this package. Errors it does not
// recognize are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Sentinel: ErrNotFound, Cause: err}
	}
	if isUniqueViolation(err) {
		return &Error{Sentinel: ErrConflict, Cause: err}
	}
	return err
}

// isUniqueViolation reports whether err is a unique or primary key violation of MySQL,
// PostgreSQL or SQLite.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062 // ER_DUP_ENTRY
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505" // unique_violation
	}
	// mattn/go-sqlite3 only exposes typed errors when built with cgo
	s := err.Error()
	return strings.Contains(s, "UNIQUE constraint failed") ||
		strings.Contains(s, "PRIMARY KEY constraint failed")
}
