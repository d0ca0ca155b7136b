package database

import (
	"fmt"

	"github.com/Leonel-Flores1704/Atlas/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Settings struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
	LogLevel logger.LogLevel
}

func (s Settings) DSN() string {
	sslMode := s.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		s.Host, s.User, s.Password, s.Name, s.Port, sslMode)
}

// InitDB opens Postgres and migrates the user, chat and message tables.
func InitDB(s Settings) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(s.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(s.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Auto Migrate the schema
	if err := db.AutoMigrate(&models.User{}, &models.Chat{}, &models.Message{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}
