package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Leonel-Flores1704/Atlas/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ChatServiceDB persists conversation threads and their messages.
type ChatServiceDB interface {
	SaveChatToDB(userID uuid.UUID, sessionID, title string) error
	SaveMessageToDB(sessionID string, msg Message) error
	GetChatBySessionIDFromDB(sessionID string) (*models.Chat, error)
	GetChatsByUserIDFromDB(userID uuid.UUID) ([]models.Chat, error)
	DeleteChatBySessionIDFromDB(sessionID string) error
	MaxMessageID() (int64, error)
}

type DefaultChatService struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewChatServiceDB(db *gorm.DB, logger zerolog.Logger) ChatServiceDB {
	return &DefaultChatService{db: db, log: logger}
}

// SaveChatToDB creates the chat row or updates its title.
func (s *DefaultChatService) SaveChatToDB(userID uuid.UUID, sessionID, title string) error {
	chat := &models.Chat{
		UserID:    userID,
		SessionID: sessionID,
		Title:     title,
	}
	return s.db.Where(models.Chat{SessionID: sessionID}).Assign(models.Chat{Title: title}).FirstOrCreate(chat).Error
}

func (s *DefaultChatService) SaveMessageToDB(sessionID string, msg Message) error {
	var chat models.Chat
	if err := s.db.Where("session_id = ?", sessionID).First(&chat).Error; err != nil {
		return err
	}

	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	message := &models.Message{
		ChatID:     chat.ID,
		MessageID:  msg.ID,
		Sender:     string(msg.Sender),
		Content:    msg.Text,
		TokensUsed: msg.TokensUsed,
		Confidence: string(msg.Confidence),
		Sources:    sources,
		Timestamp:  msg.Timestamp,
	}
	return s.db.Create(message).Error
}

func (s *DefaultChatService) GetChatBySessionIDFromDB(sessionID string) (*models.Chat, error) {
	var chat models.Chat
	result := s.db.Preload("Messages", orderByMessageID).Where("session_id = ?", sessionID).First(&chat)
	if result.Error != nil {
		return nil, result.Error
	}
	return &chat, nil
}

// GetChatsByUserIDFromDB returns the user's chats, most recent first.
func (s *DefaultChatService) GetChatsByUserIDFromDB(userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	result := s.db.Preload("Messages", orderByMessageID).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&chats)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return []models.Chat{}, nil
		}
		s.log.Error().Err(result.Error).Str("userID", userID.String()).Msg("Failed to retrieve chats")
		return nil, result.Error
	}
	return chats, nil
}

// DeleteChatBySessionIDFromDB deletes a chat and its messages.
func (s *DefaultChatService) DeleteChatBySessionIDFromDB(sessionID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		if err := tx.Where("session_id = ?", sessionID).First(&chat).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chat.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&chat).Error
	})
}

// MaxMessageID returns the highest message id stored for any user, or 0 when
// there are no messages yet.
func (s *DefaultChatService) MaxMessageID() (int64, error) {
	var maxID int64
	if err := s.db.Model(&models.Message{}).Select("COALESCE(MAX(message_id), 0)").Scan(&maxID).Error; err != nil {
		return 0, err
	}
	return maxID, nil
}

func orderByMessageID(db *gorm.DB) *gorm.DB {
	return db.Order("message_id asc")
}

// ChatToSession converts a persisted chat back into a Session.
func ChatToSession(chat models.Chat) (Session, error) {
	session := Session{
		ID:        chat.SessionID,
		Title:     chat.Title,
		Messages:  make([]Message, 0, len(chat.Messages)),
		CreatedAt: chat.CreatedAt,
	}
	if session.Title == "" {
		session.Title = DefaultSessionTitle
	}

	for _, m := range chat.Messages {
		msg := Message{
			ID:         m.MessageID,
			Sender:     Sender(m.Sender),
			Text:       m.Content,
			TokensUsed: m.TokensUsed,
			Timestamp:  m.Timestamp,
		}
		if m.Confidence != "" {
			msg.Confidence = ParseConfidence(m.Confidence)
		}
		if len(m.Sources) > 0 {
			if err := json.Unmarshal(m.Sources, &msg.Sources); err != nil {
				return Session{}, fmt.Errorf("decode sources of message %d: %w", m.MessageID, err)
			}
		}
		session.Messages = append(session.Messages, msg)
	}
	return session, nil
}
