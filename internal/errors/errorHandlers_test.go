package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Leonel-Flores1704/Atlas/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    ErrorType
	}{
		{"insufficient budget", fmt.Errorf("debit 12: %w", services.ErrInsufficientBudget), http.StatusPaymentRequired, ErrorTypePaymentRequired},
		{"in flight", services.ErrRequestInFlight, http.StatusConflict, ErrorTypeConflict},
		{"session not found", fmt.Errorf("append agent message: %w", services.ErrSessionNotFound), http.StatusNotFound, ErrorTypeNotFound},
		{"empty query", services.ErrEmptyQuery, http.StatusBadRequest, ErrorTypeBadRequest},
		{"unknown tier", services.ErrUnknownTier, http.StatusBadRequest, ErrorTypeBadRequest},
		{"answer service", services.ErrAnswerServiceUnavailable, http.StatusBadGateway, ErrorTypeBadGateway},
		{"custom error passes through", New403Error(), http.StatusForbidden, ErrorTypeForbidden},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, ErrorTypeInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customErr := FromServiceError(tt.err)
			assert.Equal(t, tt.status, customErr.StatusCode)
			assert.Equal(t, tt.typ, customErr.Type)
		})
	}
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Setup
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/chat/message", nil)

	// Execute
	HandleError(c, fmt.Errorf("submit: %w", services.ErrRequestInFlight))

	// Assert
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, c.IsAborted())

	var body struct {
		Error struct {
			Type    ErrorType `json:"type"`
			Message string    `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ErrorTypeConflict, body.Error.Type)
	assert.NotEmpty(t, body.Error.Message)
}
