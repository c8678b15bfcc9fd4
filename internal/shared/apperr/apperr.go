package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	Invalid      Kind = "invalid"
	NotFound     Kind = "not_found"
	Unauthorized Kind = "unauthorized"
	Forbidden    Kind = "forbidden"
	Conflict     Kind = "conflict"
	Upstream     Kind = "upstream" // retryable dependency failure
	Internal     Kind = "internal"
)

var statusByKind = map[Kind]int{
	Invalid:      http.StatusBadRequest,
	NotFound:     http.StatusNotFound,
	Unauthorized: http.StatusUnauthorized,
	Forbidden:    http.StatusForbidden,
	Conflict:     http.StatusConflict,
	Upstream:     http.StatusBadGateway,
	Internal:     http.StatusInternalServerError,
}

const defaultPublicMsg = "An unexpected error occurred."

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *AppError) Unwrap() error { return e.Err }

func newErr(kind Kind, publicMsg string, err error) *AppError {
	return &AppError{Kind: kind, PublicMsg: publicMsg, Err: err}
}

// Constructors. PublicMsg must stay short and free of internals.
func InvalidErr(publicMsg string, fields map[string]string) *AppError {
	e := newErr(Invalid, publicMsg, nil)
	e.Fields = fields
	return e
}
func NotFoundErr(publicMsg string) *AppError     { return newErr(NotFound, publicMsg, nil) }
func UnauthorizedErr(publicMsg string) *AppError { return newErr(Unauthorized, publicMsg, nil) }
func ForbiddenErr(publicMsg string) *AppError    { return newErr(Forbidden, publicMsg, nil) }
func ConflictErr(publicMsg string) *AppError     { return newErr(Conflict, publicMsg, nil) }

func UpstreamErr(publicMsg string, err error) *AppError {
	return newErr(Upstream, publicMsg, err)
}

// Wrap hides an internal error behind the generic public message (500).
func Wrap(err error) *AppError {
	return WrapMsg(err, defaultPublicMsg)
}

// WrapMsg is Wrap with a caller-chosen public message.
func WrapMsg(err error, publicMsg string) *AppError {
	if err == nil {
		return nil
	}
	return newErr(Internal, publicMsg, err)
}

func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HTTPStatus maps err to a response code; anything that is not an
// *AppError is a 500.
func HTTPStatus(err error) int {
	ae, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if s, ok := statusByKind[ae.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.PublicMsg != "" {
		return ae.PublicMsg
	}
	return defaultPublicMsg
}
