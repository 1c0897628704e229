package shared

import "errors"

// Error classes. Domain packages derive their own sentinels from these with NewError so
// transport code can map any domain failure without importing the domain package.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or referential conflict.
	ErrConflict = errors.New("conflict")
	// ErrBusinessRule indicates a well-formed request that the ledger rules forbid.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrUnauthorized indicates missing or failed credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated actor lacking the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = NewError(ErrUnauthorized, "invalid credentials")
)

type classifiedError struct {
	msg   string
	class error
}

func (e *classifiedError) Error() string { return e.msg }

func (e *classifiedError) Unwrap() error { return e.class }

// NewError returns a distinct sentinel whose message is msg and which matches class
// under errors.Is.
func NewError(class error, msg string) error {
	return &classifiedError{msg: msg, class: class}
}

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			return "validation failed: " + field + " " + msg
		}
	}
	return "validation failed"
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FieldError builds a single-field ValidationError.
func FieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
