package models

import (
	"errors"
	"fmt"
)

// Common service errors
var (
	// Account errors
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrInsufficientCredits  = errors.New("insufficient credits")

	// Transaction errors
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateSettlement = errors.New("payment already settled")
	ErrInvalidAmount       = errors.New("invalid amount")

	// Generation errors
	ErrJobNotFound     = errors.New("generation job not found")
	ErrUnknownModel    = errors.New("unknown model")
	ErrProviderFailure = errors.New("generation provider failure")
	ErrMissingInput    = errors.New("missing required input")

	// Payment errors
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrInvalidSignature    = errors.New("invalid payment signature")

	// Security errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")

	// Database errors
	ErrDatabaseQuery = errors.New("database query error")
)

// ServiceError represents a structured error with additional context
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a detail to the error
func (e *ServiceError) WithDetail(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error codes for structured error handling
const (
	ErrCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	ErrCodeAccountExists       = "ACCOUNT_ALREADY_EXISTS"
	ErrCodeInsufficientCredits = "INSUFFICIENT_CREDITS"

	ErrCodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	ErrCodeDuplicateSettlement = "ALREADY_SETTLED"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"

	ErrCodeUnknownModel    = "UNKNOWN_MODEL"
	ErrCodeProviderFailure = "PROVIDER_FAILURE"
	ErrCodeMissingInput    = "MISSING_INPUT"
	ErrCodeJobNotFound     = "JOB_NOT_FOUND"

	ErrCodePaymentNotCompleted = "PAYMENT_NOT_COMPLETED"
	ErrCodeInvalidSignature    = "INVALID_SIGNATURE"

	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeDatabaseError    = "DATABASE_ERROR"
)

// Common error constructors

func NewAccountNotFoundError(accountID string) *ServiceError {
	return NewServiceError(ErrCodeAccountNotFound, "Account not found", ErrAccountNotFound).
		WithDetail("account_id", accountID)
}

func NewInsufficientCreditsError(required, available int) *ServiceError {
	return NewServiceError(ErrCodeInsufficientCredits, "Insufficient coins", ErrInsufficientCredits).
		WithDetail("required", required).
		WithDetail("available", available)
}

func NewUnknownModelError(modelID string) *ServiceError {
	return NewServiceError(ErrCodeUnknownModel, "Invalid Model ID", ErrUnknownModel).
		WithDetail("model_id", modelID)
}

func NewProviderFailureError(modelID string, cause error) *ServiceError {
	return NewServiceError(ErrCodeProviderFailure, "Generation failed", cause).
		WithDetail("model_id", modelID)
}

func NewMissingInputError(field string) *ServiceError {
	return NewServiceError(ErrCodeMissingInput, "No "+field+" provided", ErrMissingInput).
		WithDetail("field", field)
}

func NewValidationError(field, message string) *ServiceError {
	return NewServiceError(ErrCodeValidationFailed, "Validation failed", ErrValidationFailed).
		WithDetail("field", field).
		WithDetail("message", message)
}

func NewPaymentNotCompletedError(orderID, status string) *ServiceError {
	return NewServiceError(ErrCodePaymentNotCompleted, "Payment not completed", ErrPaymentNotCompleted).
		WithDetail("order_id", orderID).
		WithDetail("status", status)
}

func NewInvalidSignatureError() *ServiceError {
	// Deliberately generic: verification internals must not leak to clients.
	return NewServiceError(ErrCodeInvalidSignature, "Invalid Signature", ErrInvalidSignature)
}

func NewDatabaseError(operation string, cause error) *ServiceError {
	return NewServiceError(ErrCodeDatabaseError, "Database operation failed", cause).
		WithDetail("operation", operation)
}
