package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record is not found, mirroring the
// teacher's infrastructure/database/errors.go sentinel-plus-wrapper
// pattern.
var ErrNotFound = errors.New("record not found")

// NotFoundError wraps ErrNotFound with the entity and id that were
// looked up, for log/error messages.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func newNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err is (or wraps) ErrNotFound, including
// the case where it's a bare sql.ErrNoRows from a Get/QueryRowx call.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

func wrapNotFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return newNotFoundError(entity, id)
	}
	return err
}
