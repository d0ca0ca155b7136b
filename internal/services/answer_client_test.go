package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnswerServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req askRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Query)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAnswerServiceClient_Ask(t *testing.T) {
	t.Run("Successful answer", func(t *testing.T) {
		server := newTestAnswerServer(t, http.StatusOK, `{
			"answer": "CRISPR sigue avanzando.",
			"confidence": "high",
			"sources": [
				{"title": "Paper A", "url": "https://example.org/a", "content": "...", "score": 0.91, "area": "Biotech", "category": "article"},
				{"title": "Patent B", "url": null, "content": "...", "score": 0.5, "area": null, "category": "Patent"}
			]
		}`)
		client := NewAnswerServiceClient(server.URL, time.Second, zerolog.Nop())

		result := client.Ask(context.Background(), "¿Qué avances hay en CRISPR?")

		require.True(t, result.Answered())
		assert.Equal(t, "CRISPR sigue avanzando.", result.Answer)
		assert.Equal(t, ConfidenceHigh, result.Confidence)
		require.Len(t, result.Sources, 2)
		assert.Equal(t, "https://example.org/a", *result.Sources[0].URL)
		assert.Nil(t, result.Sources[1].URL)
		assert.Nil(t, result.Sources[1].Area)
		assert.InDelta(t, 0.91, result.Sources[0].Score, 1e-9)
	})

	t.Run("Missing confidence and sources are defaulted", func(t *testing.T) {
		server := newTestAnswerServer(t, http.StatusOK, `{"answer": "ok"}`)
		client := NewAnswerServiceClient(server.URL, time.Second, zerolog.Nop())

		result := client.Ask(context.Background(), "query")

		require.True(t, result.Answered())
		assert.Equal(t, ConfidenceNone, result.Confidence)
		assert.NotNil(t, result.Sources)
		assert.Empty(t, result.Sources)
	})

	t.Run("Unrecognized confidence becomes none", func(t *testing.T) {
		server := newTestAnswerServer(t, http.StatusOK, `{"answer": "ok", "confidence": "very-high"}`)
		client := NewAnswerServiceClient(server.URL, time.Second, zerolog.Nop())

		result := client.Ask(context.Background(), "query")

		require.True(t, result.Answered())
		assert.Equal(t, ConfidenceNone, result.Confidence)
	})

	t.Run("Non-success status fails", func(t *testing.T) {
		server := newTestAnswerServer(t, http.StatusInternalServerError, `{"error": "boom"}`)
		client := NewAnswerServiceClient(server.URL, time.Second, zerolog.Nop())

		result := client.Ask(context.Background(), "query")

		assert.False(t, result.Answered())
		assert.ErrorIs(t, result.Err, ErrAnswerServiceUnavailable)
		assert.Contains(t, result.Err.Error(), "500")
	})

	t.Run("Unparseable body fails", func(t *testing.T) {
		server := newTestAnswerServer(t, http.StatusOK, `not json`)
		client := NewAnswerServiceClient(server.URL, time.Second, zerolog.Nop())

		result := client.Ask(context.Background(), "query")

		assert.False(t, result.Answered())
		assert.ErrorIs(t, result.Err, ErrAnswerServiceUnavailable)
	})

	t.Run("Transport error fails", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()
		client := NewAnswerServiceClient(url, time.Second, zerolog.Nop())

		result := client.Ask(context.Background(), "query")

		assert.False(t, result.Answered())
		assert.ErrorIs(t, result.Err, ErrAnswerServiceUnavailable)
	})
}

func TestParseConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ParseConfidence("high"))
	assert.Equal(t, ConfidenceMedium, ParseConfidence("medium"))
	assert.Equal(t, ConfidenceLow, ParseConfidence("low"))
	assert.Equal(t, ConfidenceNone, ParseConfidence("none"))
	assert.Equal(t, ConfidenceNone, ParseConfidence(""))
	assert.Equal(t, ConfidenceNone, ParseConfidence("HIGH"))
}
