package service

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers that map errors to transport responses.
type Code string

const (
	CodeValidation          Code = "Validation"
	CodeUnauthorized        Code = "Unauthorized"
	CodeNotFound            Code = "NotFound"
	CodeInsufficientCredits Code = "InsufficientCredits"
	CodeInvalidTransition   Code = "InvalidTransition"
	CodeServerError         Code = "ServerError"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

const serverErrorMessage = "Something went wrong. Please try again."

// Error is a classified failure whose Message is safe to show to the user.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCode() Code { return e.Code }

func validationf(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(what string) error {
	return &Error{Code: CodeNotFound, Message: what + " not found."}
}

func invalidTransition(msg string) error {
	return &Error{Code: CodeInvalidTransition, Message: msg}
}

// InsufficientCreditsError reports how many credits an action needed and how
// many the user had when it was refused.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("This action needs %d credits but only %d are available.", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Is(target error) bool { return target == ErrInsufficientCredits }

func (e *InsufficientCreditsError) ErrorCode() Code { return CodeInsufficientCredits }

// CodeOf returns the classification of err. Unclassified errors are server errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded interface{ ErrorCode() Code }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeServerError
}

// PublicMessage returns the text a client may see for err.
func PublicMessage(err error) string {
	var insufficient *InsufficientCreditsError
	if errors.As(err, &insufficient) {
		return insufficient.Error()
	}
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Code != CodeServerError {
		return svcErr.Message
	}
	return serverErrorMessage
}
