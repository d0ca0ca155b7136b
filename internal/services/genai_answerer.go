package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GenAIAnswerer answers straight from a Gemini model when no retrieval
// endpoint is configured. It has no evidence to cite, so answers carry no
// sources and confidence "none".
type GenAIAnswerer struct {
	model ContentGenerator
}

var _ Answerer = (*GenAIAnswerer)(nil)

func NewGenAIAnswerer(client *genai.Client, modelName string) *GenAIAnswerer {
	return &GenAIAnswerer{model: client.GenerativeModel(modelName)}
}

func NewGenAIAnswererWithModel(model ContentGenerator) *GenAIAnswerer {
	return &GenAIAnswerer{model: model}
}

func (a *GenAIAnswerer) Ask(ctx context.Context, query string) AnswerResult {
	resp, err := a.model.GenerateContent(ctx, genai.Text(query))
	if err != nil {
		return failedAnswer(err)
	}

	var answer strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				answer.WriteString(string(p))
			case *genai.Text:
				answer.WriteString(string(*p))
			}
		}
	}
	if answer.Len() == 0 {
		return failedAnswer(errors.New("model returned no text"))
	}

	return AnswerResult{
		Answer:     answer.String(),
		Confidence: ConfidenceNone,
		Sources:    []Source{},
	}
}
