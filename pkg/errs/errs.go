// Package errs defines the structured errors returned by entity operations
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an entity-level failure
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindKeysUnallowed: a field name outside the permitted key set
	KindKeysUnallowed
	// KindInvalidInput: a pipeline ended Invalid or input failed to decode
	KindInvalidInput
	// KindConnector: opaque storage backend failure
	KindConnector
	// KindNotFound: no stored record for an identifier
	KindNotFound
	// KindObjectDeleted: save attempted on a deleted entity
	KindObjectDeleted
)

func (k Kind) String() string {
	switch k {
	case KindKeysUnallowed:
		return "keys_unallowed"
	case KindInvalidInput:
		return "invalid_input"
	case KindConnector:
		return "connector_failure"
	case KindNotFound:
		return "not_found"
	case KindObjectDeleted:
		return "object_deleted"
	}
	return "unknown"
}

// Error is the structured error type. Field is set for field-level
// failures, Keys for rejected key sets.
type Error struct {
	Kind    Kind
	Field   string
	Keys    []string
	Message string
	Err     error
}

var (
	ErrKeysUnallowed = &Error{Kind: KindKeysUnallowed}
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrConnector     = &Error{Kind: KindConnector}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrObjectDeleted = &Error{Kind: KindObjectDeleted}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindKeysUnallowed:
		if len(e.Keys) == 0 {
			return "keys unallowed"
		}
		return "keys unallowed: " + strings.Join(e.Keys, ", ")
	case KindInvalidInput:
		if e.Field == "" {
			return "invalid input: " + e.Message
		}
		return fmt.Sprintf("invalid input for %q: %s", e.Field, e.Message)
	case KindConnector:
		if e.Err == nil {
			return "connector failure: " + e.Message
		}
		return fmt.Sprintf("connector failure: %s: %v", e.Message, e.Err)
	case KindNotFound:
		return e.Message + " not found"
	case KindObjectDeleted:
		return e.Message + " object was deleted"
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidInput)
// holds for every field-level validation failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KeysUnallowed reports field names outside the permitted key set
func KeysUnallowed(keys ...string) *Error {
	return &Error{Kind: KindKeysUnallowed, Keys: append([]string(nil), keys...)}
}

// InvalidInput reports a rejected value for field with a user facing message
func InvalidInput(field, message string) *Error {
	return &Error{Kind: KindInvalidInput, Field: field, Message: message}
}

// Connector wraps a backend failure for operation op
func Connector(op string, err error) *Error {
	return &Error{Kind: KindConnector, Message: op, Err: err}
}

// NotFound reports a missing record of model
func NotFound(model string) *Error {
	return &Error{Kind: KindNotFound, Message: model}
}

// ObjectDeleted reports reuse of a deleted entity of model
func ObjectDeleted(model string) *Error {
	return &Error{Kind: KindObjectDeleted, Message: model}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
