package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies application failures the way the HTTP boundary needs
// them. Transient I/O failures are retried by the adapters and never carry a
// kind; whatever survives the retry budgets surfaces wrapped in one of these.
type ErrorKind string

const (
	ErrorKindNotFound     ErrorKind = "not_found"
	ErrorKindConflict     ErrorKind = "conflict"
	ErrorKindUnauthorized ErrorKind = "unauthorized"
	ErrorKindForbidden    ErrorKind = "forbidden"
)

type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewNotFound(format string, args ...any) *AppError {
	return &AppError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConflict(format string, args ...any) *AppError {
	return &AppError{Kind: ErrorKindConflict, Message: fmt.Sprintf(format, args...)}
}

func NewUnauthorized(format string, args ...any) *AppError {
	return &AppError{Kind: ErrorKindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func NewForbidden(format string, args ...any) *AppError {
	return &AppError{Kind: ErrorKindForbidden, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, or "" for plain errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
