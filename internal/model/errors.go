package model

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindInvalid is a rejected input value.
	KindInvalid ErrorKind = iota + 1
	// KindForbidden is a permission or membership denial.
	KindForbidden
	// KindConflict is a request that clashes with current state.
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// DomainError is a business rule violation. Its message is safe to show to
// the caller.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func Invalid(format string, args ...any) error {
	return &DomainError{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &DomainError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &DomainError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// AsDomainError unwraps err into a *DomainError if it is one.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	de, ok := AsDomainError(err)
	return ok && de.Kind == kind
}
