package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "job not found with id abc123"}
//
// Validation errors add the offending field, and auth errors may add the
// numeric flag older clients branch on:
//   {"error": "validation_error", "field": "email", "message": "Invalid Email Format"}
//   {"error": "conflict", "flag": 0, "message": "Your account has already been registered. Kindly login."}

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/company-ingest/internal/apperror"
)

// maxJSONBody caps JSON request bodies. Uploads have their own limit.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set on validation errors
	Flag    *int   `json:"flag,omitempty"`  // Set on flagged auth errors; 0 is a valid flag
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code must be set BEFORE the body is written.
// Once Encode writes, the headers are sent and later changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// The headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	ErrValidation      → 400 validation_error
//	ErrAuthentication  → 400 invalid_credentials (login/refresh keep the old 400 contract)
//	ErrConflict        → 400 conflict (with flag when set)
//	ErrUnauthorized    → 401 unauthorized
//	ErrNotFound        → 404 not_found
//	ErrUnavailable     → 503 unavailable
//	anything else      → 500 internal_error, details logged only
//
// errors.Is walks the chain, so a service may wrap an AppError with
// fmt.Errorf("...: %w", err) and it still maps correctly.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrAuthentication):
			status = http.StatusBadRequest // 400
			errorType = "invalid_credentials"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusBadRequest // 400
			errorType = "conflict"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
			w.Header().Set("WWW-Authenticate", "Bearer")
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable // 503
			errorType = "unavailable"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: appErr.Message,
				Field:   appErr.Field,
				Flag:    appErr.Flag,
			})
			return
		}
	}

	// Unknown error: the raw message may contain SQL or file paths, so the
	// client gets a generic 500 and the detail goes to the log.
	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are ignored; a malformed or oversized body is a
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("body", "Request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "Request body must not be empty")
		default:
			return apperror.ValidationFailed("body", "Invalid JSON body")
		}
	}
	return nil
}
