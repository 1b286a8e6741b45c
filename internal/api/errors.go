package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeRateLimited   = apperrors.CodeRateLimited
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondServiceError maps a service error onto a response. Messages of
// system errors are not exposed.
func respondServiceError(w http.ResponseWriter, err error) {
	status := apperrors.GetHTTPStatusCode(err)
	catErr := apperrors.Categorize(err)
	if catErr == nil || apperrors.IsSystemError(catErr) {
		code := ErrCodeInternalError
		if catErr != nil {
			code = catErr.Code
		}
		respondError(w, status, code, "An internal error occurred", nil)
		return
	}

	body := catErr.ToServiceError()
	respondError(w, status, body.Code, body.Message, body.Details)
}
