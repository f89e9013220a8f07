package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/observability"
)

// Recovery turns panics into a generic 500 response. The stack trace goes to
// the structured log only; the client body never carries internal detail.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec)).
					WithCorrelationID(GetRequestID(r.Context()))
				panicErr, _ = panicErr.WithContext(map[string]interface{}{
					"stack_trace": string(debug.Stack()),
				})
				panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

				if observability.ServerLogger != nil {
					observability.ServerLogger.Error("panic recovered",
						zap.String("correlation_id", panicErr.CorrelationID),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Any("context", panicErr.Context))
				}

				metrics.RecordPanic()

				writePanicResponse(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// writePanicResponse writes the gateway error shape directly; the errors
// package imports this one, so it cannot be used here.
func writePanicResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "InternalError",
		"message": "An unexpected error occurred",
	})
}
