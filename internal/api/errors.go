package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-voss/devcell/internal/lifecycle"
	"github.com/m-voss/devcell/internal/runtime"
	"github.com/m-voss/devcell/internal/store"
)

// Error codes returned in API responses
const (
	ErrCodeNoSession      = "NO_SESSION"
	ErrCodeNotReady       = "NOT_READY"
	ErrCodeCommandFailed  = "COMMAND_FAILED"
	ErrCodeStartupTimeout = "STARTUP_TIMEOUT"
	ErrCodeSingleInstance = "SINGLE_INSTANCE_CONFLICT"
	ErrCodeHandleReleased = "HANDLE_RELEASED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
)

// APIError is the structured error body every failing endpoint returns.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, err error) {
	var apiErr APIError
	statusCode := http.StatusInternalServerError

	switch {
	case errors.Is(err, lifecycle.ErrNoSession):
		apiErr = APIError{Code: ErrCodeNoSession, Message: err.Error()}
		statusCode = http.StatusNotFound

	case errors.Is(err, store.ErrNotFound):
		apiErr = APIError{Code: ErrCodeNotFound, Message: err.Error()}
		statusCode = http.StatusNotFound

	case errors.Is(err, lifecycle.ErrNotReady):
		apiErr = APIError{Code: ErrCodeNotReady, Message: err.Error()}
		statusCode = http.StatusConflict

	case errors.Is(err, lifecycle.ErrCommandFailed):
		apiErr = APIError{Code: ErrCodeCommandFailed, Message: err.Error()}
		statusCode = http.StatusUnprocessableEntity

	case errors.Is(err, lifecycle.ErrStartupTimeout):
		apiErr = APIError{Code: ErrCodeStartupTimeout, Message: err.Error()}
		statusCode = http.StatusGatewayTimeout

	case runtime.IsSingleInstanceConflict(err):
		apiErr = APIError{Code: ErrCodeSingleInstance, Message: err.Error()}
		statusCode = http.StatusConflict

	case runtime.IsHandleReleased(err):
		apiErr = APIError{Code: ErrCodeHandleReleased, Message: err.Error()}
		statusCode = http.StatusConflict

	default:
		apiErr = APIError{Code: ErrCodeInternalError, Message: err.Error()}
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErr)
}

func writeValidationError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(APIError{
		Code:    ErrCodeInvalidRequest,
		Message: message,
	})
}

func writeUnauthorizedError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(APIError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	})
}
