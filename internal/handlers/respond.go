package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/models"
)

// writeJSONResponse writes a JSON response
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent, so just log it.
		zap.L().Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}

	var svcErr *models.ServiceError
	if errors.As(err, &svcErr) {
		errorResponse["code"] = svcErr.Code
		if len(svcErr.Details) > 0 {
			errorResponse["details"] = svcErr.Details
		}
	}

	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		zap.L().Error("Failed to encode error response", zap.Error(encodeErr))
	}
}

// writeServiceError maps a service error to its HTTP status and writes it.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var svcErr *models.ServiceError
	if errors.As(err, &svcErr) {
		writeErrorResponse(w, getHTTPStatusFromServiceError(svcErr), svcErr.Message, svcErr)
		return
	}
	writeErrorResponse(w, http.StatusInternalServerError, fallback, err)
}

// getHTTPStatusFromServiceError maps service errors to HTTP status codes
func getHTTPStatusFromServiceError(err *models.ServiceError) int {
	switch err.Code {
	case models.ErrCodeInsufficientCredits:
		return http.StatusPaymentRequired
	case models.ErrCodeAccountNotFound, models.ErrCodeTransactionNotFound, models.ErrCodeJobNotFound:
		return http.StatusNotFound
	case models.ErrCodeAccountExists:
		return http.StatusConflict
	case models.ErrCodeUnknownModel, models.ErrCodeMissingInput, models.ErrCodeInvalidAmount,
		models.ErrCodeValidationFailed, models.ErrCodePaymentNotCompleted, models.ErrCodeInvalidSignature:
		return http.StatusBadRequest
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case models.ErrCodeForbidden:
		return http.StatusForbidden
	case models.ErrCodeProviderFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
