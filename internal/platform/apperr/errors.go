// Package apperr defines the error kinds returned by the compliance engine so
// callers can map failures to distinct responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrState         = errors.New("illegal state transition")
	ErrAuthorization = errors.New("authorization denied")
	ErrNotFound      = errors.New("resource not found")
)

// ValidationError reports bad input shape: an empty signature, an unknown
// consent ID, a malformed DNI.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation creates a ValidationError for the given field.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StateError reports a transition that the current state does not allow.
type StateError struct {
	Entity string
	From   string
	To     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *StateError) Unwrap() error { return ErrState }

// State creates a StateError.
func State(entity, from, to string) *StateError {
	return &StateError{Entity: entity, From: from, To: to}
}

// AuthorizationError is raised by the compliance gate when an access check
// denies the acting user.
type AuthorizationError struct {
	UserID    string
	PatientID string
	DataKind  string
	Reason    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s denied %s access to patient %s: %s", e.UserID, e.DataKind, e.PatientID, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrAuthorization }

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound creates a NotFoundError.
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// HTTPStatus maps an error kind to the HTTP status handlers respond with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrState):
		return http.StatusConflict
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
