package schema

import (
	"errors"
	"fmt"
)

// ErrorKind classifies schema failures. Schema errors are never retried.
type ErrorKind string

const (
	KindUnknownAction    ErrorKind = "unknown_action"
	KindDuplicateSchema  ErrorKind = "duplicate_schema"
	KindMissingParameter ErrorKind = "missing_required_parameter"
	KindTypeMismatch     ErrorKind = "type_mismatch"
)

// Sentinels for errors.Is matching against a *Error of the same kind.
var (
	ErrUnknownAction    = &Error{Kind: KindUnknownAction}
	ErrDuplicateSchema  = &Error{Kind: KindDuplicateSchema}
	ErrMissingParameter = &Error{Kind: KindMissingParameter}
	ErrTypeMismatch     = &Error{Kind: KindTypeMismatch}
)

// Error is returned by the registry and the validator.
type Error struct {
	Kind     ErrorKind
	Action   string
	Field    string
	Expected ParamType
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnknownAction:
		return fmt.Sprintf("unknown action %q", e.Action)
	case KindDuplicateSchema:
		return fmt.Sprintf("schema %q already registered", e.Action)
	case KindMissingParameter:
		return fmt.Sprintf("action %q: missing required parameter %q", e.Action, e.Field)
	case KindTypeMismatch:
		return fmt.Sprintf("action %q: parameter %q must be %s", e.Action, e.Field, e.Expected)
	default:
		return fmt.Sprintf("schema error: %s", e.Kind)
	}
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// IsSchemaError reports whether err is (or wraps) a schema error.
func IsSchemaError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func unknownAction(name string) error {
	return &Error{Kind: KindUnknownAction, Action: name}
}

func missingParameter(action, field string) error {
	return &Error{Kind: KindMissingParameter, Action: action, Field: field}
}

func typeMismatch(action, field string, expected ParamType) error {
	return &Error{Kind: KindTypeMismatch, Action: action, Field: field, Expected: expected}
}
