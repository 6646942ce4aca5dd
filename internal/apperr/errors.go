// Package apperr holds the error taxonomy shared by the comment and relevance layers.
package apperr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// VerificationError is a failed or timed-out bot challenge. Code is one of the
// verifier's error codes, or a local one (see services.VerificationMessage).
type VerificationError struct {
	Code string
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bot verification failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("bot verification failed (%s)", e.Code)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// StorageError wraps a persistence failure. Code carries the provider's error code
// (a Postgres SQLSTATE) when one is available.
type StorageError struct {
	Op      string
	Message string
	Code    string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("storage: %s: %s (code %s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("storage: %s: %s", e.Op, e.Message)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage builds a StorageError from a driver error, lifting the SQLSTATE out of
// pgconn errors.
func Storage(op string, err error) *StorageError {
	se := &StorageError{Op: op, Message: err.Error(), Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		se.Message = pgErr.Message
		se.Code = pgErr.Code
	}
	return se
}

// NotFoundError means a referenced record is absent.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// StorageNotFound is a storage failure whose cause is a missing record. Both
// errors.As(err, *StorageError) and errors.As(err, *NotFoundError) match it.
func StorageNotFound(op, resource, id string) *StorageError {
	nf := NotFound(resource, id)
	return &StorageError{Op: op, Message: nf.Error(), Err: nf}
}
