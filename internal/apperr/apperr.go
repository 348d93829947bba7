package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure so callers can decide whether to retry, fix input or give up.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindPrecondition
	KindConflict
	KindExternal
	KindIntegrity
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPrecondition:
		return "precondition"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	case KindIntegrity:
		return "integrity"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is a tagged failure carrying a stable machine code. Packages declare their
// variants as package-level values and callers match them with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// New declares an error variant.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of the first tagged error in the chain.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// Code returns the stable code of the first tagged error in the chain, or INTERNAL.
func Code(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	return "INTERNAL"
}

// Status maps an error to the HTTP status the API responds with.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPrecondition:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindExternal:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the failure came from an unavailable dependency.
func Retryable(err error) bool {
	return KindOf(err) == KindExternal
}
