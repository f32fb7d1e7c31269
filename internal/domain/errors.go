package domain

import (
	"errors"
	"fmt"
	"time"
)

// AppError represents a standardized error response
type AppError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeModelNotTrained = "MODEL_NOT_TRAINED"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeStorage         = "STORAGE_ERROR"
	ErrCodeExternalAPI     = "EXTERNAL_API_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer  = "INTERNAL_SERVER_ERROR"
)

// Sentinel errors surfaced by the predictor and storage layers.
var (
	// ErrConfiguration indicates a degenerate or missing training set.
	ErrConfiguration = errors.New("degenerate or missing training data")
	// ErrModelNotTrained indicates inference was requested before a model was built.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrInvalidInput indicates a feature vector whose shape does not match the model schema.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExternalAPI indicates a failure from an upstream service.
	ErrExternalAPI = errors.New("external API error")
)

// NewAppError creates a new AppError with timestamp
func NewAppError(code, message, details, requestID string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ErrorCode maps a predictor or storage error to its wire-level code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return ErrCodeConfiguration
	case errors.Is(err, ErrModelNotTrained):
		return ErrCodeModelNotTrained
	case errors.Is(err, ErrInvalidInput):
		return ErrCodeInvalidInput
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrExternalAPI):
		return ErrCodeExternalAPI
	default:
		return ErrCodeInternalServer
	}
}
