// Package errors defines the gateway error taxonomy and the JSON error
// responder. Every client-visible failure is a GatewayError with a Kind that
// maps to exactly one HTTP status; the wire shape is the gateway's public
// contract and deliberately generic, internal causes are logged but never
// rendered.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/observability"
	servermw "github.com/keygate/keygate/internal/server/middleware"
)

// Kind identifies a class of gateway failure.
type Kind string

const (
	KindMissingCredential    Kind = "MissingCredential"
	KindInvalidCredential    Kind = "InvalidCredential"
	KindRateLimitExceeded    Kind = "RateLimitExceeded"
	KindServiceNotConfigured Kind = "ServiceNotConfigured"
	KindServiceUnavailable   Kind = "ServiceUnavailable"
	KindRequestTimeout       Kind = "RequestTimeout"
	KindProxyError           Kind = "ProxyError"
	KindInternalError        Kind = "InternalError"

	// Management surface kinds.
	KindInvalidRequest   Kind = "InvalidRequest"
	KindNotFound         Kind = "NotFound"
	KindConflict         Kind = "Conflict"
	KindMethodNotAllowed Kind = "MethodNotAllowed"

	// KindRecordingFailure is never rendered to clients; it exists for
	// logging and metrics when an audit entry cannot be persisted.
	KindRecordingFailure Kind = "RecordingFailure"
)

// GatewayError is a terminal pipeline outcome rendered to the client.
type GatewayError struct {
	Kind    Kind
	Message string

	// RetryAfter is the suggested wait in seconds. Only set for
	// KindRateLimitExceeded.
	RetryAfter int

	// Err is the internal cause. It is logged, never rendered.
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// HTTPStatus resolves the HTTP status code for the error's kind.
func (e *GatewayError) HTTPStatus() int {
	return HTTPStatusFromKind(e.Kind)
}

// New creates a GatewayError with the given kind and client-visible message.
func New(kind Kind, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message}
}

// Wrap creates a GatewayError carrying an internal cause.
func Wrap(kind Kind, err error, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, Err: err}
}

// HTTPStatusFromKind resolves the HTTP status code corresponding to a kind.
func HTTPStatusFromKind(kind Kind) int {
	switch kind {
	case KindMissingCredential, KindInvalidCredential:
		return http.StatusUnauthorized
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case KindServiceNotConfigured, KindNotFound:
		return http.StatusNotFound
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindRequestTimeout:
		return http.StatusGatewayTimeout
	case KindProxyError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body returned for every gateway failure.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// AsGatewayError normalizes any error into a GatewayError. Unknown errors
// become InternalError with a generic message so internal detail never leaks.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return New(KindInternalError, "An unexpected error occurred")
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}

	return Wrap(KindInternalError, err, "An unexpected error occurred")
}

// RespondWithError normalizes the supplied error and writes the JSON response,
// logging and emitting metrics along the way.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	WriteGatewayError(w, r, AsGatewayError(err))
}

// WriteGatewayError renders a GatewayError to the client.
func WriteGatewayError(w http.ResponseWriter, r *http.Request, gwErr *GatewayError) {
	if w == nil || gwErr == nil {
		return
	}

	status := gwErr.HTTPStatus()
	logGatewayError(r, gwErr, status)
	emitErrorMetrics(r, gwErr, status)

	w.Header().Set("Content-Type", "application/json")
	if gwErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(gwErr.RetryAfter))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:      string(gwErr.Kind),
		Message:    gwErr.Message,
		RetryAfter: gwErr.RetryAfter,
	})
}

func logGatewayError(r *http.Request, gwErr *GatewayError, status int) {
	if observability.ServerLogger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_kind", string(gwErr.Kind)),
		zap.Int("http_status", status),
	}
	if r != nil {
		fields = append(fields,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		if requestID := servermw.GetRequestID(r.Context()); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}
	}
	if gwErr.Err != nil {
		fields = append(fields, zap.Error(gwErr.Err))
	}

	if status >= http.StatusInternalServerError {
		observability.ServerLogger.Error(gwErr.Message, fields...)
		return
	}
	observability.ServerLogger.Warn(gwErr.Message, fields...)
}

func emitErrorMetrics(r *http.Request, gwErr *GatewayError, status int) {
	metrics.RecordError(string(gwErr.Kind), status)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, string(gwErr.Kind))
	}
}
