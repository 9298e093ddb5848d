package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

// MetricsMiddleware records request counts, latency and error classes for
// one route.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		status := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)

		if wrapped.statusCode < http.StatusBadRequest {
			return
		}
		errorType, severity := classifyStatus(wrapped.statusCode)
		metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
		metrics.RecordErrorByType(errorType, severity)
		metrics.RecordErrorLatency("http", errorType, durationMs)
	}
}

// classifyStatus maps an error status to a metric error type and severity.
// Conflicts and rule violations are ordinary protocol outcomes; ledger and
// signer failures are not.
func classifyStatus(statusCode int) (errorType, severity string) {
	switch statusCode {
	case http.StatusConflict:
		return "conflict", "low"
	case http.StatusUnprocessableEntity:
		return "unprocessable", "low"
	case http.StatusNotFound:
		return "not_found", "low"
	case http.StatusBadRequest:
		return "bad_request", "medium"
	case http.StatusBadGateway:
		return "ledger", "high"
	}
	if statusCode >= http.StatusInternalServerError {
		return "server_error", "high"
	}
	return "client_error", "medium"
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
