package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Leonel-Flores1704/Atlas/internal/utils/broker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyQuery      = errors.New("query must not be empty")
	ErrRequestInFlight = errors.New("a query is already pending for this session")
)

const (
	EventUserMessage   = "user"
	EventAgentMessage  = "agent"
	EventTokenUpdate   = "token_update"
	EventMetricsUpdate = "metrics_update"
	EventSessionList   = "sessions"
)

// WorkspaceTopic is the broker topic carrying a user's workspace events.
func WorkspaceTopic(userID uuid.UUID) string {
	return "workspace_" + userID.String()
}

// Exchange is one resolved question: the user turn, the agent turn and the
// budget left afterwards.
type Exchange struct {
	SessionID    string         `json:"session_id"`
	SessionTitle string         `json:"session_title"`
	UserMessage  Message        `json:"user_message"`
	AgentMessage Message        `json:"agent_message"`
	Answered     bool           `json:"answered"`
	Budget       BudgetSnapshot `json:"budget"`
}

// QuerySessionManager is the single authority over one workspace: its token
// budget, sessions and pending requests. Dashboard metrics and the message
// id counter are shared across workspaces and injected.
type QuerySessionManager struct {
	mu       sync.Mutex
	userID   uuid.UUID
	tokens   *TokenAccountant
	metrics  *MetricsAggregator
	sessions *SessionStore
	answerer Answerer
	chatDB   ChatServiceDB
	budgets  BudgetStore
	events   EventPublisher
	sending  map[string]bool
	log      zerolog.Logger
}

// NewQuerySessionManager wires a workspace. chatDB, budgets and events are
// optional and may be nil.
func NewQuerySessionManager(
	userID uuid.UUID,
	tokens *TokenAccountant,
	metrics *MetricsAggregator,
	ids *IDCounter,
	answerer Answerer,
	chatDB ChatServiceDB,
	budgets BudgetStore,
	events EventPublisher,
	logger zerolog.Logger,
) *QuerySessionManager {
	return &QuerySessionManager{
		userID:   userID,
		tokens:   tokens,
		metrics:  metrics,
		sessions: NewSessionStore(ids),
		answerer: answerer,
		chatDB:   chatDB,
		budgets:  budgets,
		events:   events,
		sending:  make(map[string]bool),
		log:      logger.With().Str("userID", userID.String()).Logger(),
	}
}

// Submit runs one query through the workspace: budget gate, user turn,
// answering call, agent turn, metrics. The agent turn is appended to the
// session the query was issued from even if another session became active
// in the meantime.
func (m *QuerySessionManager) Submit(ctx context.Context, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	cost := EstimateCost(text)

	m.mu.Lock()
	sessionID := m.sessions.ActiveID()
	if m.sending[sessionID] {
		m.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	if err := m.tokens.TryDebit(cost); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	userMsg, err := m.sessions.AppendMessage(sessionID, Message{
		Sender:     SenderUser,
		Text:       text,
		TokensUsed: cost,
	})
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("append user message: %w", err)
	}
	m.sending[sessionID] = true
	title := m.sessions.Get(sessionID).Title
	budget := m.tokens.Snapshot()
	m.mu.Unlock()

	m.persistChat(sessionID, title)
	m.persistMessage(sessionID, userMsg)
	m.persistBudget(budget)
	m.publish(EventUserMessage, userMsg)
	m.publish(EventTokenUpdate, budget)

	result := m.answerer.Ask(ctx, text)

	agent := Message{Sender: SenderAgent, Sources: []Source{}}
	if result.Answered() {
		agent.Text = result.Answer
		agent.Confidence = result.Confidence
		agent.Sources = result.Sources
	} else {
		m.log.Warn().Err(result.Err).Str("sessionID", sessionID).Msg("Answer service failed, using fallback reply")
		agent.Text = FallbackAnswerText
	}

	m.mu.Lock()
	delete(m.sending, sessionID)
	agentMsg, err := m.sessions.AppendMessage(sessionID, agent)
	m.mu.Unlock()
	if err != nil {
		m.log.Warn().Err(err).Str("sessionID", sessionID).Msg("Session disappeared before the answer arrived")
		return nil, fmt.Errorf("append agent message: %w", err)
	}

	m.metrics.Record(result)
	m.persistMessage(sessionID, agentMsg)
	m.publish(EventAgentMessage, agentMsg)
	if result.Answered() {
		m.publish(EventMetricsUpdate, m.metrics.Snapshot())
	}

	return &Exchange{
		SessionID:    sessionID,
		SessionTitle: title,
		UserMessage:  userMsg,
		AgentMessage: agentMsg,
		Answered:     result.Answered(),
		Budget:       budget,
	}, nil
}

// Pending reports whether sessionID has a query waiting for its answer.
func (m *QuerySessionManager) Pending(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending[sessionID]
}

func (m *QuerySessionManager) CreateSession() Session {
	m.mu.Lock()
	session := m.sessions.CreateSession()
	m.mu.Unlock()

	m.persistChat(session.ID, session.Title)
	m.publish(EventSessionList, m.Sessions())
	return session
}

func (m *QuerySessionManager) SwitchSession(sessionID string) error {
	m.mu.Lock()
	ok := m.sessions.SwitchSession(sessionID)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.publish(EventSessionList, m.Sessions())
	return nil
}

func (m *QuerySessionManager) DeleteSession(sessionID string) error {
	m.mu.Lock()
	ok := m.sessions.DeleteSession(sessionID)
	active := m.sessions.Active()
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if m.chatDB != nil {
		if err := m.chatDB.DeleteChatBySessionIDFromDB(sessionID); err != nil {
			m.log.Warn().Err(err).Str("sessionID", sessionID).Msg("Failed to delete persisted chat")
		}
	}
	if len(active.Messages) == 0 {
		m.persistChat(active.ID, active.Title)
	}
	m.publish(EventSessionList, m.Sessions())
	return nil
}

func (m *QuerySessionManager) Sessions() []SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.List()
}

func (m *QuerySessionManager) Session(sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.sessions.Get(sessionID)
	if session.ID == "" {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (m *QuerySessionManager) ActiveSession() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Active()
}

func (m *QuerySessionManager) Budget() BudgetSnapshot {
	return m.tokens.Snapshot()
}

func (m *QuerySessionManager) Metrics() DashboardMetrics {
	return m.metrics.Snapshot()
}

// ChangeTier moves the workspace to another account tier, e.g. after a
// subscription upgrade.
func (m *QuerySessionManager) ChangeTier(tier Tier) (BudgetSnapshot, error) {
	if err := m.tokens.SetTier(tier); err != nil {
		return BudgetSnapshot{}, err
	}
	budget := m.tokens.Snapshot()
	m.persistBudget(budget)
	m.publish(EventTokenUpdate, budget)
	return budget, nil
}

// GrantTokens credits the budget, capped at the tier limit.
func (m *QuerySessionManager) GrantTokens(amount int) (BudgetSnapshot, error) {
	if _, err := m.tokens.Credit(amount); err != nil {
		return BudgetSnapshot{}, err
	}
	budget := m.tokens.Snapshot()
	m.persistBudget(budget)
	m.publish(EventTokenUpdate, budget)
	return budget, nil
}

// ResetBudget replaces tier and balance at once, as done on sign-in.
func (m *QuerySessionManager) ResetBudget(tier Tier, remaining int) (BudgetSnapshot, error) {
	if err := m.tokens.Reset(tier, remaining); err != nil {
		return BudgetSnapshot{}, err
	}
	budget := m.tokens.Snapshot()
	m.persistBudget(budget)
	m.publish(EventTokenUpdate, budget)
	return budget, nil
}

// ClearBudget empties the remaining tokens, as done on logout.
func (m *QuerySessionManager) ClearBudget() BudgetSnapshot {
	m.tokens.SetRemaining(0)
	budget := m.tokens.Snapshot()
	m.persistBudget(budget)
	return budget
}

// Hydrate loads previously persisted chats into the session store.
func (m *QuerySessionManager) Hydrate() error {
	if m.chatDB == nil {
		return nil
	}

	chats, err := m.chatDB.GetChatsByUserIDFromDB(m.userID)
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	sessions := make([]Session, 0, len(chats))
	for _, chat := range chats {
		session, err := ChatToSession(chat)
		if err != nil {
			m.log.Warn().Err(err).Str("sessionID", chat.SessionID).Msg("Skipping unreadable chat")
			continue
		}
		sessions = append(sessions, session)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Restore(sessions)
	return nil
}

// Reset drops every session and pending flag. Budget and metrics are left to
// their owners.
func (m *QuerySessionManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions.Reset()
	m.sending = make(map[string]bool)
}

func (m *QuerySessionManager) persistChat(sessionID, title string) {
	if m.chatDB == nil {
		return
	}
	if err := m.chatDB.SaveChatToDB(m.userID, sessionID, title); err != nil {
		m.log.Warn().Err(err).Str("sessionID", sessionID).Msg("Failed to persist chat")
	}
}

func (m *QuerySessionManager) persistMessage(sessionID string, msg Message) {
	if m.chatDB == nil {
		return
	}
	if err := m.chatDB.SaveMessageToDB(sessionID, msg); err != nil {
		m.log.Warn().Err(err).Str("sessionID", sessionID).Int64("messageID", msg.ID).Msg("Failed to persist message")
	}
}

func (m *QuerySessionManager) persistBudget(budget BudgetSnapshot) {
	if m.budgets == nil {
		return
	}
	if err := m.budgets.SaveTokenBudget(m.userID, budget.Tier, budget.Remaining); err != nil {
		m.log.Warn().Err(err).Msg("Failed to persist token budget")
	}
}

func (m *QuerySessionManager) publish(eventType string, payload interface{}) {
	if m.events == nil {
		return
	}
	m.events.Publish(WorkspaceTopic(m.userID), broker.Event{Type: eventType, Payload: payload})
}
