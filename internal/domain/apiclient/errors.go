package apiclient

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies request failures.
type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindCanceled     Kind = "canceled"
	KindNetwork      Kind = "network"
	KindAuthExpired  Kind = "auth_expired"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindHTTP         Kind = "http"
	KindEncode       Kind = "encode"
	KindDecode       Kind = "decode"
)

// Error codes the web client keys its handling on.
const (
	CodeTimeout      = "TIMEOUT"
	CodeAuthExpired  = "AUTH_EXPIRED"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNetwork      = "NETWORK_ERROR"
)

// Error is returned for every failed request.
type Error struct {
	Kind     Kind
	Status   int
	Code     string
	Message  string
	Endpoint string
	Body     any
	Cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("api %s %s", e.Kind, e.Endpoint)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode exposes the HTTP status without importing this package.
func (e *Error) StatusCode() int { return e.Status }

// IsKind reports whether err is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return stderrors.As(err, &apiErr) && apiErr.Kind == kind
}

// silentKinds never produce the generic error toast. Timeouts get their own
// notification; the others belong to redirect flows the client handles.
var silentKinds = map[Kind]bool{
	KindTimeout:      true,
	KindAuthExpired:  true,
	KindUnauthorized: true,
	KindCanceled:     true,
}
