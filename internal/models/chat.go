package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Chat struct {
	gorm.Model
	UserID    uuid.UUID `gorm:"type:uuid;index"`
	SessionID string    `gorm:"index;unique"`
	Title     string
	Messages  []Message `gorm:"foreignKey:ChatID"`
}

type Message struct {
	gorm.Model
	ChatID     uint  `gorm:"index"`
	MessageID  int64 `gorm:"index"`
	Sender     string
	Content    string
	TokensUsed int
	Confidence string
	Sources    []byte // JSON-encoded sources
	Timestamp  time.Time
}
