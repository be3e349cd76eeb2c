package auth

import (
	"errors"
	"net/http"

	"github.com/franciscosanchezn/authzilla/internal/models"
	oautherrors "github.com/go-oauth2/oauth2/v4/errors"
)

// Error codes that go-oauth2 does not define
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not_found")
	ErrInvalidTarget = errors.New("invalid_target")
)

var descriptions = map[error]string{
	ErrUnauthorized:  "The user is not authenticated",
	ErrNotFound:      "The client has no registered configuration",
	ErrInvalidTarget: "The requested resource is invalid, unknown, or malformed",
}

// Error is an RFC 6749 protocol error. Kind is one of the go-oauth2 error
// values or one of the values above; its text is the wire error code.
type Error struct {
	Kind        error
	Description string
	Status      int
	// Redirect is set when the error may be delivered to a validated redirect_uri
	Redirect bool
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.Error() + ": " + e.cause.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

// Code returns the RFC 6749 error code
func (e *Error) Code() string { return e.Kind.Error() }

// Body returns the JSON error body
func (e *Error) Body() models.OAuth2Error {
	return models.NewOAuth2Error(e.Code(), e.Description)
}

func newError(kind error, status int, description string) *Error {
	if description == "" {
		description = describe(kind)
	}
	return &Error{Kind: kind, Description: description, Status: status}
}

// withCause keeps the internal cause for logs. It never reaches the response.
func (e *Error) withCause(err error) *Error {
	e.cause = err
	return e
}

func (e *Error) redirectable() *Error {
	e.Redirect = true
	return e
}

func describe(kind error) string {
	if d, ok := descriptions[kind]; ok {
		return d
	}
	return oautherrors.Descriptions[kind]
}

func errInvalidRequest(description string) *Error {
	return newError(oautherrors.ErrInvalidRequest, http.StatusBadRequest, description)
}

func errInvalidClient(description string) *Error {
	return newError(oautherrors.ErrInvalidClient, http.StatusUnauthorized, description)
}

func errInvalidGrant(description string) *Error {
	return newError(oautherrors.ErrInvalidGrant, http.StatusBadRequest, description)
}

func errServer(cause error) *Error {
	return newError(oautherrors.ErrServerError, http.StatusInternalServerError, "").withCause(cause)
}
