package services

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Leonel-Flores1704/Atlas/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserService struct {
	db *gorm.DB
}

var _ UserStore = (*UserService)(nil)

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// CreateOrUpdateUser looks the user up by email and resets its tier and
// remaining tokens, creating the row when needed.
func (s *UserService) CreateOrUpdateUser(email, name string, tier Tier, remaining int) (*models.User, error) {
	email = normalizeEmail(email)
	assign := models.User{Tier: string(tier), RemainingTokens: remaining}
	if name != "" {
		assign.Name = name
	}

	// Attrs only apply when the row is created, so existing users keep their id.
	var user models.User
	result := s.db.Where(models.User{Email: email}).
		Attrs(models.User{ID: uuid.New()}).
		Assign(assign).
		FirstOrCreate(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	// Assign skips zero values, so a zero balance needs an explicit update.
	if remaining == 0 && user.RemainingTokens != 0 {
		if err := s.db.Model(&user).Update("remaining_tokens", 0).Error; err != nil {
			return nil, err
		}
		user.RemainingTokens = 0
	}
	return &user, nil
}

func (s *UserService) GetUserByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserService) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserService) SaveTokenBudget(userID uuid.UUID, tier Tier, remaining int) error {
	return s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"tier":             string(tier),
			"remaining_tokens": remaining,
		}).Error
}

// MemoryUserService keeps users in memory for runs without a database.
type MemoryUserService struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
}

var _ UserStore = (*MemoryUserService)(nil)

func NewMemoryUserService() *MemoryUserService {
	return &MemoryUserService{
		byID:    make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *MemoryUserService) CreateOrUpdateUser(email, name string, tier Tier, remaining int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	now := time.Now()
	if id, ok := s.byEmail[email]; ok {
		user := s.byID[id]
		if name != "" {
			user.Name = name
		}
		user.Tier = string(tier)
		user.RemainingTokens = remaining
		user.UpdatedAt = now
		out := *user
		return &out, nil
	}

	user := &models.User{
		ID:              uuid.New(),
		Email:           email,
		Name:            name,
		Tier:            string(tier),
		RemainingTokens: remaining,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.byID[user.ID] = user
	s.byEmail[email] = user.ID
	out := *user
	return &out, nil
}

func (s *MemoryUserService) GetUserByID(userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (s *MemoryUserService) GetUserByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *MemoryUserService) SaveTokenBudget(userID uuid.UUID, tier Tier, remaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Tier = string(tier)
	user.RemainingTokens = remaining
	user.UpdatedAt = time.Now()
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
