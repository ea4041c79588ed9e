package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so adapters can map it to a transport status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	}
	return "internal"
}

// Error is the structured failure returned by every service operation.
// Reason is a stable machine-readable code; Message is meant for people.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validation(reason, msg string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: msg}
}

func notFound(reason, msg string, details interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Message: msg, Details: details}
}

func conflict(reason, msg string, details interface{}) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: msg, Details: details}
}

// dependency wraps a storage or collaborator failure.  Errors that are
// already structured pass through unchanged.
func dependency(op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{
		Kind:    KindDependency,
		Reason:  "storage_unavailable",
		Message: "the ticket store is temporarily unavailable, retry the whole operation",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

// KindOf returns the Kind of err, or KindInternal when err is not a
// structured service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
