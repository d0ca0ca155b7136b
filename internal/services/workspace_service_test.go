package services

import (
	"context"
	"testing"

	"github.com/Leonel-Flores1704/Atlas/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceService(t *testing.T) {
	users := NewMemoryUserService()
	answerer := new(MockAnswerer)
	answerer.On("Ask", mock.Anything, mock.Anything).Return(AnswerResult{Answer: "ok", Confidence: ConfidenceHigh, Sources: []Source{}})
	metrics := NewMetricsAggregator()
	ws := NewWorkspaceService(DefaultTierLimits(), metrics, answerer, nil, users, nil, 0, zerolog.Nop())

	ana, err := users.CreateOrUpdateUser("ana@example.com", "Ana", TierStandard, 2500)
	require.NoError(t, err)
	luis, err := users.CreateOrUpdateUser("luis@example.com", "Luis", TierElevated, 100000)
	require.NoError(t, err)

	t.Run("Open builds the workspace from the stored user", func(t *testing.T) {
		manager, err := ws.Open(ana)
		require.NoError(t, err)
		assert.Equal(t, 2500, manager.Budget().Remaining)
		assert.Equal(t, TierStandard, manager.Budget().Tier)

		again, err := ws.Open(ana)
		require.NoError(t, err)
		assert.Same(t, manager, again)

		got, ok := ws.Get(ana.ID)
		assert.True(t, ok)
		assert.Same(t, manager, got)
	})

	t.Run("Metrics and ids are shared between workspaces", func(t *testing.T) {
		a, err := ws.Open(ana)
		require.NoError(t, err)
		b, err := ws.Open(luis)
		require.NoError(t, err)

		first, err := a.Submit(context.Background(), "hola")
		require.NoError(t, err)
		second, err := b.Submit(context.Background(), "hola")
		require.NoError(t, err)

		assert.NotEqual(t, first.UserMessage.ID, second.UserMessage.ID)
		assert.Equal(t, 2, ws.Metrics().AnsweredQueries)
		assert.Equal(t, ws.Metrics(), b.Metrics())
	})

	t.Run("Close clears the budget", func(t *testing.T) {
		ws.Close(ana.ID)

		_, ok := ws.Get(ana.ID)
		assert.False(t, ok)
		stored, err := users.GetUserByID(ana.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.RemainingTokens)
	})

	t.Run("Unknown tier", func(t *testing.T) {
		_, err := ws.Open(&models.User{ID: uuid.New(), Tier: "gold"})
		assert.ErrorIs(t, err, ErrUnknownTier)
	})
}

func TestWorkspaceService_MessageIDsContinueAfterPersistedOnes(t *testing.T) {
	users := NewMemoryUserService()
	ana, err := users.CreateOrUpdateUser("ana@example.com", "Ana", TierStandard, 5000)
	require.NoError(t, err)
	luis, err := users.CreateOrUpdateUser("luis@example.com", "Luis", TierStandard, 5000)
	require.NoError(t, err)

	chatDB := new(MockChatServiceDB)
	chatDB.On("GetChatsByUserIDFromDB", ana.ID).Return([]models.Chat{}, nil)
	chatDB.On("GetChatsByUserIDFromDB", luis.ID).Return(chatsFixture(), nil)
	chatDB.On("SaveChatToDB", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	chatDB.On("SaveMessageToDB", mock.Anything, mock.Anything).Return(nil)

	answerer := new(MockAnswerer)
	answerer.On("Ask", mock.Anything, mock.Anything).Return(AnswerResult{Answer: "ok", Confidence: ConfidenceLow, Sources: []Source{}})

	// Luis's stored messages go up to id 12.
	ws := NewWorkspaceService(DefaultTierLimits(), NewMetricsAggregator(), answerer, chatDB, users, nil, 12, zerolog.Nop())

	a, err := ws.Open(ana)
	require.NoError(t, err)
	exchange, err := a.Submit(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, int64(13), exchange.UserMessage.ID)
	assert.Equal(t, int64(14), exchange.AgentMessage.ID)

	b, err := ws.Open(luis)
	require.NoError(t, err)

	seen := make(map[int64]string)
	for _, manager := range []*QuerySessionManager{a, b} {
		for _, summary := range manager.Sessions() {
			session, err := manager.Session(summary.ID)
			require.NoError(t, err)
			for _, msg := range session.Messages {
				other, dup := seen[msg.ID]
				assert.False(t, dup, "id %d used by %s and %s", msg.ID, other, session.ID)
				seen[msg.ID] = session.ID
			}
		}
	}
	assert.Len(t, seen, 4)
}
