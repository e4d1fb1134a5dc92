package handler

// Every response is JSON. Errors share one shape:
//
//	{"error": "conflict", "message": "Please use a different username."}
//
// Successful state changes answer with {"message": "..."} plus whatever
// resource they produced.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/sakif/microblog/internal/apperror"
)

// maxBodyBytes bounds request bodies; forms here are tiny.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, when known
}

// MessageResponse acknowledges a state change with the user-facing text.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageResponse{Message: msg})
}

// writeError maps a domain error to its HTTP status. Errors that are not
// *apperror.AppError become a generic 500 and are logged with the detail
// the client never sees.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	logger.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// fields is a flat view of a submitted form, from either
// application/x-www-form-urlencoded or a JSON object of strings.
type fields map[string]string

func (f fields) get(name string) string {
	return f[name]
}

// readFields parses the request body. A malformed body is a validation error.
func readFields(w http.ResponseWriter, r *http.Request) (fields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		out := fields{}
		if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
			return nil, apperror.ValidationFailed("", "Invalid JSON body")
		}
		return out, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, apperror.ValidationFailed("", "Invalid form body")
	}
	out := fields{}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}
