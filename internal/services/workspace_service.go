package services

import (
	"fmt"
	"sync"

	"github.com/Leonel-Flores1704/Atlas/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WorkspaceService keeps one QuerySessionManager per signed-in user. The
// metrics aggregator and the message id counter are process-wide and shared
// by every workspace. lastMessageID is the highest id already persisted; new
// messages are numbered after it.
type WorkspaceService struct {
	mu         sync.Mutex
	workspaces map[uuid.UUID]*QuerySessionManager
	limits     TierLimits
	metrics    *MetricsAggregator
	ids        *IDCounter
	answerer   Answerer
	chatDB     ChatServiceDB
	budgets    BudgetStore
	events     EventPublisher
	log        zerolog.Logger
}

func NewWorkspaceService(
	limits TierLimits,
	metrics *MetricsAggregator,
	answerer Answerer,
	chatDB ChatServiceDB,
	budgets BudgetStore,
	events EventPublisher,
	lastMessageID int64,
	logger zerolog.Logger,
) *WorkspaceService {
	ids := &IDCounter{}
	ids.Observe(lastMessageID)
	return &WorkspaceService{
		workspaces: make(map[uuid.UUID]*QuerySessionManager),
		limits:     limits,
		metrics:    metrics,
		ids:        ids,
		answerer:   answerer,
		chatDB:     chatDB,
		budgets:    budgets,
		events:     events,
		log:        logger,
	}
}

// Open returns the user's workspace, building it from the stored user on
// first use.
func (ws *WorkspaceService) Open(user *models.User) (*QuerySessionManager, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if manager, ok := ws.workspaces[user.ID]; ok {
		return manager, nil
	}

	tier, err := ParseTier(user.Tier)
	if err != nil {
		return nil, err
	}
	tokens, err := NewTokenAccountant(ws.limits, tier, user.RemainingTokens)
	if err != nil {
		return nil, err
	}

	manager := NewQuerySessionManager(user.ID, tokens, ws.metrics, ws.ids, ws.answerer, ws.chatDB, ws.budgets, ws.events, ws.log)
	if err := manager.Hydrate(); err != nil {
		return nil, fmt.Errorf("hydrate workspace: %w", err)
	}

	ws.workspaces[user.ID] = manager
	ws.log.Info().Str("userID", user.ID.String()).Str("tier", string(tier)).Msg("Workspace opened")
	return manager, nil
}

func (ws *WorkspaceService) Get(userID uuid.UUID) (*QuerySessionManager, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	manager, ok := ws.workspaces[userID]
	return manager, ok
}

// Close drops the user's workspace after clearing its budget, as on logout.
func (ws *WorkspaceService) Close(userID uuid.UUID) {
	ws.mu.Lock()
	manager, ok := ws.workspaces[userID]
	delete(ws.workspaces, userID)
	ws.mu.Unlock()

	if ok {
		manager.ClearBudget()
		ws.log.Info().Str("userID", userID.String()).Msg("Workspace closed")
	}
}

func (ws *WorkspaceService) Metrics() DashboardMetrics {
	return ws.metrics.Snapshot()
}

func (ws *WorkspaceService) Answerer() Answerer {
	return ws.answerer
}
