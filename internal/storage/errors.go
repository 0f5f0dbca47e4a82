package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when the store is not configured. No I/O is attempted.
	ErrConfiguration = errors.New("repository not configured")

	// ErrNotFound is returned when a lookup by ID finds no row.
	ErrNotFound = errors.New("not found")

	// ErrNoRowsUpdated is returned when an update or delete touched no row, usually
	// because an access policy rejected it rather than because the row is missing.
	ErrNoRowsUpdated = errors.New("no rows updated")
)

// RepositoryError wraps a failure from the underlying store.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// wrap returns nil for a nil err and a *RepositoryError otherwise.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

// IsRepositoryError reports whether err came from the store itself.
func IsRepositoryError(err error) bool {
	var repoErr *RepositoryError
	return errors.As(err, &repoErr)
}
