package services

import (
	"context"
	"sync"

	"github.com/Leonel-Flores1704/Atlas/internal/models"
	"github.com/Leonel-Flores1704/Atlas/internal/utils/broker"
	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Ask(ctx context.Context, query string) AnswerResult {
	args := m.Called(ctx, query)
	return args.Get(0).(AnswerResult)
}

type MockChatServiceDB struct {
	mock.Mock
}

func (m *MockChatServiceDB) SaveChatToDB(userID uuid.UUID, sessionID, title string) error {
	args := m.Called(userID, sessionID, title)
	return args.Error(0)
}

func (m *MockChatServiceDB) SaveMessageToDB(sessionID string, msg Message) error {
	args := m.Called(sessionID, msg)
	return args.Error(0)
}

func (m *MockChatServiceDB) GetChatBySessionIDFromDB(sessionID string) (*models.Chat, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockChatServiceDB) GetChatsByUserIDFromDB(userID uuid.UUID) ([]models.Chat, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockChatServiceDB) DeleteChatBySessionIDFromDB(sessionID string) error {
	args := m.Called(sessionID)
	return args.Error(0)
}

func (m *MockChatServiceDB) MaxMessageID() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

type MockBudgetStore struct {
	mock.Mock
}

func (m *MockBudgetStore) SaveTokenBudget(userID uuid.UUID, tier Tier, remaining int) error {
	args := m.Called(userID, tier, remaining)
	return args.Error(0)
}

type MockContentGenerator struct {
	mock.Mock
}

func (m *MockContentGenerator) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, parts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.GenerateContentResponse), args.Error(1)
}

// recordingPublisher collects published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []broker.Event
}

func (p *recordingPublisher) Publish(topic string, event broker.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return 1
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func strPtr(s string) *string {
	return &s
}
