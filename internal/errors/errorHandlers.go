package errors

import (
	"errors"
	"net/http"

	"github.com/Leonel-Flores1704/Atlas/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypePaymentRequired     ErrorType = "INSUFFICIENT_BUDGET"
	ErrorTypeForbidden           ErrorType = "FORBIDDEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeConflict            ErrorType = "CONFLICT"
	ErrorTypeBadGateway          ErrorType = "ANSWER_SERVICE_UNAVAILABLE"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error creates a new unauthorized error
func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

// New402Error reports a query the token budget cannot cover.
func New402Error(internal error) *CustomError {
	return newError(ErrorTypePaymentRequired, "Not enough tokens left for this query", http.StatusPaymentRequired, internal)
}

// New403Error creates a new forbidden error
func New403Error() *CustomError {
	return newError(ErrorTypeForbidden, "Access forbidden", http.StatusForbidden, nil)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

func New409Error(message string) *CustomError {
	return newError(ErrorTypeConflict, message, http.StatusConflict, nil)
}

func New502Error(internal error) *CustomError {
	return newError(ErrorTypeBadGateway, services.FallbackAnswerText, http.StatusBadGateway, internal)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromServiceError maps the sentinel errors of the services package onto
// HTTP errors. Anything unrecognized becomes a 500.
func FromServiceError(err error) *CustomError {
	var customErr *CustomError
	switch {
	case errors.As(err, &customErr):
		return customErr
	case errors.Is(err, services.ErrInsufficientBudget):
		return New402Error(err)
	case errors.Is(err, services.ErrRequestInFlight):
		return New409Error("A query is already pending for this session")
	case errors.Is(err, services.ErrSessionNotFound):
		return New404Error("Session not found")
	case errors.Is(err, services.ErrUserNotFound):
		return New404Error("User not found")
	case errors.Is(err, services.ErrEmptyQuery):
		return New400Error("Query must not be empty")
	case errors.Is(err, services.ErrUnknownTier):
		return New400Error("Unknown tier")
	case errors.Is(err, services.ErrInvalidAmount):
		return New400Error("Invalid token amount")
	case errors.Is(err, services.ErrAnswerServiceUnavailable):
		return New502Error(err)
	default:
		return New500Error(err)
	}
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := FromServiceError(err)

	// Log internal server errors
	switch customErr.Type {
	case ErrorTypeInternalServerError:
		log.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	case ErrorTypeBadGateway:
		log.Warn().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Answer service unavailable")
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}

// LogAndReturn500 logs an internal error and returns a 500 error
func LogAndReturn500(internal error) *CustomError {
	log.Error().Err(internal).Msg("Internal Server Error")
	return New500Error(internal)
}
