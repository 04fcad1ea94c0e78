// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every validation, business-rule and infrastructure failure of the ledger engine
// surfaces as an AppError so callers can branch on Code instead of message text.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal        = "INTERNAL_ERROR"
	CodeLotFetchFailure = "LOT_FETCH_FAILURE"

	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidMovement = "INVALID_MOVEMENT"

	// Business rule violations (422)
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeInvalidTransfer        = "INVALID_TRANSFER"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Non-fatal, reported alongside results
	CodeLedgerIntegrity = "LEDGER_INTEGRITY_WARNING"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type of the engine.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidMovement rejects a malformed movement. It is fatal to that single append only.
func NewInvalidMovement(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidMovement,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInsufficientStock creates a stock shortage error.
// Quantities are passed as decimal strings to keep fixed-point precision in the payload.
func NewInsufficientStock(storeID, productID, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"store_id":   storeID,
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewInvalidTransfer creates a transfer business-rule error (422)
func NewInvalidTransfer(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransfer,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewLotFetchFailure wraps a transient lot retrieval error for one product.
func NewLotFetchFailure(storeID, productID string, cause error) *AppError {
	return &AppError{
		Code:       CodeLotFetchFailure,
		Message:    "Failed to fetch cost lots",
		HTTPStatus: http.StatusServiceUnavailable,
		Details: map[string]any{
			"store_id":   storeID,
			"product_id": productID,
		},
		Err: cause,
	}
}

// NewLedgerIntegrityWarning reports exits that exceed recorded arrivals.
// It is never returned as a failure; it travels inside results.
func NewLedgerIntegrityWarning(storeID, productID, unconsumed string) *AppError {
	return &AppError{
		Code:       CodeLedgerIntegrity,
		Message:    "Recorded exits exceed recorded arrivals",
		HTTPStatus: http.StatusOK,
		Details: map[string]any{
			"store_id":   storeID,
			"product_id": productID,
			"unconsumed": unconsumed,
		},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConcurrentModification is returned when the state a caller acted on has moved.
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified concurrently. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
