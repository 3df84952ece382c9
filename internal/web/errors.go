package web

// errors.go provides unified error response handling for the web layer.
//
// Technical errors are logged with the request id; clients get the
// user-facing message, action and code from core.MapError. API routes get
// JSON, pages get the index page re-rendered with an alert.

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/JonMunkholm/csvjob/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// Upload acceptance errors. Their text matches core.MapError patterns.
var (
	errNoFile   = errors.New("no file provided")
	errNotCSV   = errors.New("not a csv file")
	errTooLarge = errors.New("file too large")
)

// statusFor picks the HTTP status for an error returned by the controller.
func statusFor(err error) int {
	var (
		stateErr    *core.InvalidStateError
		uploadErr   *core.UploadError
		retrieveErr *core.ResultRetrievalError
	)
	switch {
	case errors.Is(err, errTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errNoFile), errors.Is(err, errNotCSV):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoResult):
		return http.StatusNotFound
	case errors.As(err, &stateErr):
		return http.StatusConflict
	case errors.As(err, &uploadErr), errors.As(err, &retrieveErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped user message as JSON.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := logError(r, err, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// logError logs the technical error with request context and returns the
// message to show the user.
func logError(r *http.Request, err error, statusCode int) core.UserMessage {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}
	return userMsg
}

// writeError writes a JSON error response for failures that happen before a
// handler runs.
func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Message: message,
		Code:    code,
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warn("json encode error", "error", err)
	}
}

// clientIP returns the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
