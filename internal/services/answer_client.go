package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// FallbackAnswerText is shown as the agent turn whenever the answering
// service fails, so every user turn still gets exactly one reply.
const FallbackAnswerText = "No pude procesar tu consulta. Verifica que el servicio esté disponible e inténtalo de nuevo."

var ErrAnswerServiceUnavailable = errors.New("answer service unavailable")

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// ParseConfidence maps a raw label to one of the four known levels.
// Anything else, including an empty value, becomes ConfidenceNone.
func ParseConfidence(raw string) Confidence {
	switch c := Confidence(raw); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone:
		return c
	default:
		return ConfidenceNone
	}
}

type Source struct {
	Title    string  `json:"title"`
	URL      *string `json:"url"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Area     *string `json:"area"`
	Category *string `json:"category"`
}

// AnswerResult is either an answer (Err == nil) or a failure carrying the
// reason in Err.
type AnswerResult struct {
	Answer     string
	Confidence Confidence
	Sources    []Source
	Err        error
}

func (r AnswerResult) Answered() bool {
	return r.Err == nil
}

func failedAnswer(reason error) AnswerResult {
	return AnswerResult{
		Sources: []Source{},
		Err:     fmt.Errorf("%w: %v", ErrAnswerServiceUnavailable, reason),
	}
}

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	Answer     string   `json:"answer"`
	Confidence *string  `json:"confidence"`
	Sources    []Source `json:"sources"`
}

// AnswerServiceClient talks to the external retrieval-augmented answering
// endpoint.
type AnswerServiceClient struct {
	endpoint   string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ Answerer = (*AnswerServiceClient)(nil)

func NewAnswerServiceClient(endpoint string, timeout time.Duration, logger zerolog.Logger) *AnswerServiceClient {
	return &AnswerServiceClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}
}

func (c *AnswerServiceClient) Ask(ctx context.Context, query string) AnswerResult {
	body, err := json.Marshal(askRequest{Query: query})
	if err != nil {
		return failedAnswer(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return failedAnswer(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("endpoint", c.endpoint).Msg("answer service request failed")
		return failedAnswer(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		c.log.Warn().Int("status", resp.StatusCode).Str("endpoint", c.endpoint).Msg("answer service returned non-success status")
		return failedAnswer(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	var payload askResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Warn().Err(err).Msg("failed to decode answer service response")
		return failedAnswer(fmt.Errorf("decode response: %w", err))
	}

	confidence := ConfidenceNone
	if payload.Confidence != nil {
		confidence = ParseConfidence(*payload.Confidence)
	}
	sources := payload.Sources
	if sources == nil {
		sources = []Source{}
	}

	return AnswerResult{
		Answer:     payload.Answer,
		Confidence: confidence,
		Sources:    sources,
	}
}
