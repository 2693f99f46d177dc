// Package apperror defines the gateway's error taxonomy and its mapping to
// HTTP status codes and the client-facing JSON envelope. Grounded on
// original_source/error.rs's AppError enum and IntoResponse impl.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the discriminant of the gateway's internal error taxonomy.
type Kind string

const (
	KindBadRequest        Kind = "bad_request"
	KindUnauthorized      Kind = "unauthorized"
	KindNoChannel         Kind = "no_channel"
	KindAllChannelsFailed Kind = "all_channels_failed"
	KindUpstream          Kind = "upstream"
	KindCodec             Kind = "codec"
	KindDatabase          Kind = "database"
	KindHTTPClient        Kind = "http_client"
	KindInternal          Kind = "internal"
)

// Error is the gateway's structured error type. It always carries a Kind so
// the HTTP boundary can map it to a status code without string-sniffing.
type Error struct {
	Kind   Kind
	Msg    string
	Status int   // only set for KindUpstream, where the status is forwarded verbatim
	Cause  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func BadRequest(msg string) *Error   { return newErr(KindBadRequest, msg) }
func Unauthorized(msg string) *Error { return newErr(KindUnauthorized, msg) }
func NoChannel(model string) *Error {
	return newErr(KindNoChannel, fmt.Sprintf("no channel maps to model %q", model))
}
func AllChannelsFailed(model string) *Error {
	return newErr(KindAllChannelsFailed, fmt.Sprintf("all channels failed for model %q", model))
}
func Upstream(status int, body string) *Error {
	return &Error{Kind: KindUpstream, Msg: body, Status: status}
}
func Codec(msg string, cause error) *Error {
	return &Error{Kind: KindCodec, Msg: msg, Cause: cause}
}
func Database(cause error) *Error {
	return &Error{Kind: KindDatabase, Msg: "database error", Cause: cause}
}
func HTTPClient(cause error) *Error {
	return &Error{Kind: KindHTTPClient, Msg: cause.Error(), Cause: cause}
}
func Internal(msg string) *Error { return newErr(KindInternal, msg) }

// StatusCode maps an error's Kind to the HTTP status spec.md §6 requires.
// Non-*Error values (unrecognized errors) map to 500, matching the
// catch-all Internal behavior.
func StatusCode(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindBadRequest, KindCodec:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNoChannel:
		return http.StatusNotFound
	case KindAllChannelsFailed, KindHTTPClient:
		return http.StatusBadGateway
	case KindUpstream:
		if e.Status >= 100 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindDatabase, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage returns the message safe to surface to the client — for
// database errors the underlying detail is never leaked, per spec.md §7.
func ClientMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindDatabase {
		return "Database error"
	}
	return e.Error()
}

// TypeTag returns the debug-tag string used in the {"error":{"type":...}}
// envelope field.
func TypeTag(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Internal"
	}
	return string(e.Kind)
}
