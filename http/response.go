package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sagarc03/sigv4gate"
)

// failureBody is the only body ever sent for an authentication failure.
const failureBody = `{"Error":{"Code":"NotAuthorized","Message":"SigV4 validation failed"}}`

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes appropriate error response based on error type
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sigv4gate.ErrUnauthorized):
		WriteFailure(w)
	case errors.Is(err, ErrRateLimited):
		WriteError(w, http.StatusTooManyRequests, "too_many_requests", "Too many requests")
	case errors.Is(err, ErrNotReady):
		slog.Warn("service not ready", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "not_ready", "Service unavailable")
	case errors.Is(err, errBadGateway):
		slog.Error("downstream error", "error", err)
		WriteError(w, http.StatusBadGateway, "bad_gateway", "Bad gateway")
	default:
		slog.Error("request error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}

// FailureResponse builds the 401 returned for every authentication failure.
// The body never says why authentication failed.
func FailureResponse(req *http.Request) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(failureBody)))

	return &http.Response{
		Status:        "401 Unauthorized",
		StatusCode:    http.StatusUnauthorized,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(failureBody))),
		ContentLength: int64(len(failureBody)),
		Request:       req,
	}
}

// WriteFailure writes the FailureResponse bytes to w.
func WriteFailure(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(failureBody)))
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := io.WriteString(w, failureBody); err != nil {
		slog.Debug("failed to write failure response", "error", err)
	}
}
