package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// rejection matches the error envelope the API handlers write
type rejection struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Reject writes a JSON error envelope, with Retry-After when retryAfterSeconds > 0
func Reject(w http.ResponseWriter, status int, retryAfterSeconds int, message string) {
	if retryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejection{Success: false, Error: message})
}

// statusCodeWriter is a wrapper around http.ResponseWriter that captures the status code
type statusCodeWriter struct {
	http.ResponseWriter
	statusCode int
}

func newStatusCodeWriter(w http.ResponseWriter) *statusCodeWriter {
	return &statusCodeWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code and passes it to the wrapped ResponseWriter
func (scw *statusCodeWriter) WriteHeader(code int) {
	scw.statusCode = code
	scw.ResponseWriter.WriteHeader(code)
}
