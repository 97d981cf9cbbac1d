package httpapi

import (
	"net/http"
	"time"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withCorrelation attaches a correlation id to the request context, echoes it
// in the response and logs one line per request.
func withCorrelation(logger ports.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = ports.GenerateCorrelationID()
		}
		ctx := ports.WithCorrelationID(r.Context(), id)
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		defer func() {
			if p := recover(); p != nil {
				logger.Error(ctx, "handler panic", "method", r.Method, "path", r.URL.Path, "panic", p)
				writeJSON(rec, http.StatusInternalServerError, errorResponse("INTERNAL_ERROR", "internal error"))
			}
			logger.Info(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(started).Milliseconds(),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}
