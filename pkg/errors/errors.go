package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrInternal
	ErrTemplateNotFound
	ErrTemplateInactive
	ErrMissingContext
	ErrInvalidDestination
)

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// NewTemplateNotFound covers both unknown and inactive-template lookups from
// the caller's point of view: neither produces a notification.
func NewTemplateNotFound(name string) *AppError {
	return &AppError{
		Code:    ErrTemplateNotFound,
		Message: fmt.Sprintf("notification template %q not found", name),
	}
}

func NewTemplateInactive(name string) *AppError {
	return &AppError{
		Code:    ErrTemplateInactive,
		Message: fmt.Sprintf("notification template %q is inactive", name),
	}
}

func NewMissingContext(template string, keys []string) *AppError {
	return &AppError{
		Code:    ErrMissingContext,
		Message: fmt.Sprintf("template %q missing required context keys %v", template, keys),
	}
}

func NewInvalidDestination(channel, destination string) *AppError {
	return &AppError{
		Code:    ErrInvalidDestination,
		Message: fmt.Sprintf("invalid %s destination %q", channel, destination),
	}
}

// Code extracts the AppError code from an error chain, or 0.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 0
}
