package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable machine-readable code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	sendError(w, ErrorResponse{Error: message, Code: CodeInvalidRequest}, statusCode, validationErr)
}

// SendMarketError maps a marketplace error to its status and code.
func SendMarketError(w http.ResponseWriter, err error) {
	status, code := ClassifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Causes of a failed unit stay in the server log.
		message = "transaction failed"
	}
	sendError(w, ErrorResponse{Error: message, Code: code}, status, nil)
}

// SendJSON writes v with the given status.
func SendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, resp ErrorResponse, statusCode int, validationErr error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		resp.Code = CodeValidationFailed
		resp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			resp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}
	SendJSON(w, statusCode, resp)
}
