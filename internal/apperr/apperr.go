// Package apperr holds the error kinds shared by the scheduling and booking
// packages. Domain sentinels wrap one of the kinds so callers can match either
// the precise error or the broad category with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrOwnership    = errors.New("ownership violation")
	ErrValidation   = errors.New("validation failed")
)

// Error is a domain error tagged with a kind.
type Error struct {
	Kind error
	Msg  string
}

func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// KindOf returns the kind carried by err, or nil when err is unclassified.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrInvalidState, ErrOwnership, ErrValidation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
