package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Leonel-Flores1704/Atlas/internal/database"
	"github.com/Leonel-Flores1704/Atlas/internal/services"

	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port           string
	Environment    string
	LogLevel       zerolog.Level
	AllowedOrigins []string

	AnswerEndpoint string
	AnswerTimeout  time.Duration
	GenAIAPIKey    string
	GenAIModel     string

	JWTSecret string
	TokenTTL  time.Duration

	TierLimits   services.TierLimits
	BrokerBuffer int

	Database database.Settings

	errs []error
}

// NewConfig reads the environment, falling back to defaults for anything
// unset. Values that fail to parse are reported by Validate.
func NewConfig() *Config {
	c := &Config{
		Port:           getEnv("PORT", "3000"),
		Environment:    getEnv("APP_ENV", "development"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		AnswerEndpoint: os.Getenv("ANSWER_SERVICE_URL"),
		GenAIAPIKey:    os.Getenv("GOOGLE_AI_STUDIO_API_KEY"),
		GenAIModel:     getEnv("GENAI_MODEL", "gemini-1.5-flash"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		Database: database.Settings{
			Host:     os.Getenv("DB_HOST"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			Port:     getEnv("DB_PORT", "5432"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			LogLevel: logger.Warn,
		},
	}

	defaults := services.DefaultTierLimits()
	c.AnswerTimeout = c.duration("ANSWER_TIMEOUT", 30*time.Second)
	c.TokenTTL = c.duration("TOKEN_TTL", 24*time.Hour)
	c.TierLimits = services.TierLimits{
		Standard: c.integer("STANDARD_TOKEN_LIMIT", defaults.Standard),
		Elevated: c.integer("ELEVATED_TOKEN_LIMIT", defaults.Elevated),
	}
	c.BrokerBuffer = c.integer("BROKER_BUFFER", 32)

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("LOG_LEVEL: %w", err))
		level = zerolog.InfoLevel
	}
	c.LogLevel = level

	return c
}

// Validate reports every parse error and missing or inconsistent setting.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.errs...)

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.AnswerEndpoint == "" && c.GenAIAPIKey == "" {
		errs = append(errs, errors.New("either ANSWER_SERVICE_URL or GOOGLE_AI_STUDIO_API_KEY must be set"))
	}
	if c.AnswerTimeout <= 0 {
		errs = append(errs, errors.New("ANSWER_TIMEOUT must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.TierLimits.Standard <= 0 || c.TierLimits.Elevated < c.TierLimits.Standard {
		errs = append(errs, fmt.Errorf("tier limits must satisfy 0 < standard <= elevated, got %d/%d", c.TierLimits.Standard, c.TierLimits.Elevated))
	}
	if c.BrokerBuffer < 1 {
		errs = append(errs, errors.New("BROKER_BUFFER must be at least 1"))
	}
	if c.UseDatabase() && (c.Database.User == "" || c.Database.Name == "") {
		errs = append(errs, errors.New("DB_USER and DB_NAME are required when DB_HOST is set"))
	}

	return errors.Join(errs...)
}

// UseDatabase reports whether Postgres persistence is configured. Without it
// users and chats live in memory.
func (c *Config) UseDatabase() bool {
	return c.Database.Host != ""
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (c *Config) integer(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
