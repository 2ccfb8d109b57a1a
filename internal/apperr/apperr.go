// Package apperr provides the domain error kinds returned by the organization
// services. Every domain failure is an *Error carrying a Kind, so callers can
// switch on the kind instead of matching messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindInternal is any failure that isn't a domain error.
	KindInternal Kind = iota
	// KindDocumentNotFound indicates a referenced id does not resolve in the store.
	KindDocumentNotFound
	// KindForbidden indicates the caller lacks the role required for the action.
	KindForbidden
	// KindActionNotAllowed indicates a business rule rejected the mutation.
	KindActionNotAllowed
	// KindUnableToCreate indicates the store or input validation rejected a create.
	KindUnableToCreate
	// KindUnableToUpdate indicates the store or input validation rejected an update.
	KindUnableToUpdate
	// KindValidation indicates a malformed request.
	KindValidation
	// KindUnauthenticated indicates no caller identity was supplied.
	KindUnauthenticated
)

var kindCodes = map[Kind]string{
	KindInternal:         "Internal",
	KindDocumentNotFound: "DocumentNotFound",
	KindForbidden:        "Forbidden",
	KindActionNotAllowed: "ActionNotAllowed",
	KindUnableToCreate:   "UnableToCreate",
	KindUnableToUpdate:   "UnableToUpdate",
	KindValidation:       "Validation",
	KindUnauthenticated:  "Unauthenticated",
}

// String returns the stable code used on the wire.
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindInternal]
}

// ParseKind maps a wire code back to its kind. Unknown codes are
// KindInternal.
func ParseKind(code string) Kind {
	for k, c := range kindCodes {
		if c == code {
			return k
		}
	}
	return KindInternal
}

// HTTPStatus returns the HTTP status code for this error kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindDocumentNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindActionNotAllowed:
		return http.StatusConflict
	case KindUnableToCreate, KindUnableToUpdate, KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Op      string // Operation that failed, e.g. "organization.remove"
	Message string
	Err     error // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the wire code of the error kind.
func (e *Error) Code() string {
	return e.Kind.String()
}

// HTTPStatus returns the HTTP status code for the error kind.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// New creates a new domain error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// DocumentNotFound creates a not found error.
func DocumentNotFound(op, message string) *Error {
	return New(KindDocumentNotFound, op, message)
}

// Forbidden creates a forbidden error.
func Forbidden(op, message string) *Error {
	return New(KindForbidden, op, message)
}

// ActionNotAllowed creates a business rule rejection.
func ActionNotAllowed(op, message string) *Error {
	return New(KindActionNotAllowed, op, message)
}

// UnableToCreate creates a rejected create error.
func UnableToCreate(op, message string, err error) *Error {
	return Wrap(KindUnableToCreate, op, message, err)
}

// UnableToUpdate creates a rejected update error.
func UnableToUpdate(op, message string, err error) *Error {
	return Wrap(KindUnableToUpdate, op, message, err)
}

// KindOf extracts the error kind from anywhere in err's chain.
// Returns KindInternal if there is no *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
