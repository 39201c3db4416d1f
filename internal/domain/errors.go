package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
	ErrStorage           = errors.New("storage failure")
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ConflictError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %s already exists", e.Kind, e.ID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// ReferenceError reports a linkage endpoint or join reference that does not
// resolve to an existing entity.
type ReferenceError struct {
	Side string
	Type string
	ID   string
}

func (e *ReferenceError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s references unknown entity %s", e.Side, e.ID)
	}
	return fmt.Sprintf("%s references unknown %s %s", e.Side, e.Type, e.ID)
}

func (e *ReferenceError) Is(target error) bool { return target == ErrInvalidReference }

type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a persistence failure. The wrapped error is never shown
// to API clients.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func Validation(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}
