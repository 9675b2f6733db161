// Package gsaerr defines the typed failures returned by every layer of the GSA client.
package gsaerr

import (
	"errors"
	"fmt"
	"strings"

	"gitee.com/kxapp/kxapp-common/errorz"
)

var (
	ErrTransport           = errors.New("transport error")
	ErrProtocol            = errors.New("protocol error")
	ErrAuthentication      = errors.New("authentication failure")
	ErrIntegrity           = errors.New("integrity failure")
	ErrTokenFormat         = errors.New("token format error")
	ErrSessionMissing      = errors.New("session missing")
	ErrAnisetteUnavailable = errors.New("anisette server is unavailable")
)

// Error is one failure of the taxonomy. Kind is one of the Err* sentinels and matches
// through errors.Is; Err is the innermost cause.
type Error struct {
	Kind    error
	Status  int    //server status code when the server reported one
	Message string //server provided text or local description
	Err     error
}

func (e *Error) Error() string {
	parts := []string{e.Kind.Error()}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil && !e.causeIsMessage() {
		parts = append(parts, e.Err.Error())
	}
	s := strings.Join(parts, ": ")
	if e.Status != 0 {
		s = fmt.Sprintf("%s (status %d)", s, e.Status)
	}
	return s
}

func (e *Error) causeIsMessage() bool {
	var se *errorz.StatusError
	if errors.As(e.Err, &se) {
		return se.Body == e.Message
	}
	return e.Err.Error() == e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, cause error, format string, args ...any) *Error {
	e := &Error{Kind: kind, Err: cause}
	if format != "" {
		e.Message = fmt.Sprintf(format, args...)
	}
	return e
}

// Transport wraps a connection or timeout failure.
func Transport(cause error) *Error {
	return newError(ErrTransport, errorz.NewNetworkError(cause), "")
}

func Protocol(cause error, format string, args ...any) *Error {
	if cause != nil {
		cause = errorz.NewParseDataError(cause)
	}
	return newError(ErrProtocol, cause, format, args...)
}

// Server builds an authentication failure from a status reported by the server.
func Server(status int, message string) *Error {
	e := newError(ErrAuthentication, &errorz.StatusError{Status: status, Body: message}, "")
	e.Status = status
	e.Message = message
	return e
}

func Authentication(format string, args ...any) *Error {
	return newError(ErrAuthentication, nil, format, args...)
}

func Integrity(cause error, format string, args ...any) *Error {
	return newError(ErrIntegrity, cause, format, args...)
}

func TokenFormat(format string, args ...any) *Error {
	return newError(ErrTokenFormat, nil, format, args...)
}

func SessionMissing(format string, args ...any) *Error {
	return newError(ErrSessionMissing, nil, format, args...)
}

func AnisetteUnavailable(cause error) *Error {
	return newError(ErrAnisetteUnavailable, cause, "")
}
