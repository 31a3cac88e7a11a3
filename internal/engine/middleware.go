package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Middleware contains the cross-cutting HTTP middleware
type Middleware struct {
	engine *Engine
}

// NewMiddleware creates a new instance of Middleware
func NewMiddleware(engine *Engine) *Middleware {
	return &Middleware{
		engine: engine,
	}
}

// RequestIDMiddleware assigns a request id when the client did not send
// one, and echoes it back on the response.
func (m *Middleware) RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			r.Header.Set(requestIDHeader, requestID)
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs method, path, status and duration per request
func (m *Middleware) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if m.engine.logger != nil {
			m.engine.logger.Debugf("%s %s %d %s request_id=%s",
				r.Method, r.URL.Path, recorder.status, time.Since(start), r.Header.Get(requestIDHeader))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSONResponse(e *Engine, w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		if e != nil && e.logger != nil {
			e.logger.Errorf("Failed to encode JSON response: %v", err)
		}
	}
}

func writeErrorResponse(e *Engine, w http.ResponseWriter, statusCode int, message, errDetail string) {
	if e != nil {
		e.TrackError()
	}
	response := ErrorResponse{
		Error:   errDetail,
		Message: message,
		Status:  StatusError,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		if e != nil && e.logger != nil {
			e.logger.Errorf("Failed to encode error response: %v", err)
		}
	}
}
