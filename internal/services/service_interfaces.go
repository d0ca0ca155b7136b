package services

import (
	"context"

	"github.com/Leonel-Flores1704/Atlas/internal/models"
	"github.com/Leonel-Flores1704/Atlas/internal/utils/broker"
	"github.com/google/uuid"
)

// Answerer resolves a free-text query. Implementations never return a Go
// error; failures are reported through AnswerResult.Err.
type Answerer interface {
	Ask(ctx context.Context, query string) AnswerResult
}

type BudgetStore interface {
	SaveTokenBudget(userID uuid.UUID, tier Tier, remaining int) error
}

type UserStore interface {
	BudgetStore
	CreateOrUpdateUser(email, name string, tier Tier, remaining int) (*models.User, error)
	GetUserByID(userID uuid.UUID) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
}

type EventPublisher interface {
	Publish(topic string, event broker.Event) int
}
