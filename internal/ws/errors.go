package ws

import (
	"errors"
	"fmt"

	"palaver/internal/models"
)

type ErrorKind string

const (
	KindNotAuthenticated ErrorKind = "NotAuthenticated"
	KindNotFound         ErrorKind = "NotFound"
	KindAccessDenied     ErrorKind = "AccessDenied"
	KindValidation       ErrorKind = "ValidationFailed"
	KindRateLimited      ErrorKind = "RateLimited"
	KindInternal         ErrorKind = "InternalFailure"
)

// ClientError is an error whose message is safe to show to the caller.
type ClientError struct {
	Kind    ErrorKind
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

var errNotAuthenticated = &ClientError{Kind: KindNotAuthenticated, Message: "Not authenticated"}

func notFound(what string) *ClientError {
	return &ClientError{Kind: KindNotFound, Message: what + " not found"}
}

func accessDenied(msg string) *ClientError {
	return &ClientError{Kind: KindAccessDenied, Message: msg}
}

func invalid(msg string) *ClientError {
	return &ClientError{Kind: KindValidation, Message: msg}
}

// classify turns storage and validation errors into client errors.
// Anything it does not recognise is returned unchanged and treated as internal.
func classify(err error, what string) error {
	var ce *ClientError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, models.ErrNotFound):
		return notFound(what)
	case errors.Is(err, models.ErrAccessDenied):
		return accessDenied("Access denied")
	case errors.Is(err, models.ErrValidation):
		return invalid(err.Error())
	default:
		return err
	}
}
