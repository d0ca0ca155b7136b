package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/Leonel-Flores1704/Atlas/cmd/api/config"
	"github.com/Leonel-Flores1704/Atlas/internal/api"
	"github.com/Leonel-Flores1704/Atlas/internal/auth"
	"github.com/Leonel-Flores1704/Atlas/internal/database"
	"github.com/Leonel-Flores1704/Atlas/internal/services"
	"github.com/Leonel-Flores1704/Atlas/internal/utils/broker"
	"github.com/Leonel-Flores1704/Atlas/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	cfg := config.NewConfig()
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger := log.Logger

	ctx := context.Background()

	// Persistence: Postgres when configured, memory otherwise.
	var (
		users         services.UserStore
		chatDB        services.ChatServiceDB
		lastMessageID int64
	)
	if cfg.UseDatabase() {
		db, err := database.InitDB(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		users = services.NewUserService(db)
		chatDB = services.NewChatServiceDB(db, logger)
		lastMessageID, err = chatDB.MaxMessageID()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read the last message id")
		}
	} else {
		log.Warn().Msg("DB_HOST is not set, users and chats are kept in memory")
		users = services.NewMemoryUserService()
	}

	var answerer services.Answerer
	if cfg.AnswerEndpoint != "" {
		answerer = services.NewAnswerServiceClient(cfg.AnswerEndpoint, cfg.AnswerTimeout, logger)
		log.Info().Str("endpoint", cfg.AnswerEndpoint).Msg("Using retrieval answer service")
	} else {
		genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GenAIAPIKey))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GenAI client")
		}
		defer genaiClient.Close()
		answerer = services.NewGenAIAnswerer(genaiClient, cfg.GenAIModel)
		log.Info().Str("model", cfg.GenAIModel).Msg("Using GenAI answerer")
	}

	messageBroker := broker.NewBroker(cfg.BrokerBuffer)
	workspaces := services.NewWorkspaceService(
		cfg.TierLimits,
		services.NewMetricsAggregator(),
		answerer,
		chatDB,
		users,
		messageBroker,
		lastMessageID,
		logger,
	)
	authenticator := auth.NewAuthenticator(users, workspaces, cfg.TierLimits, cfg.JWTSecret, cfg.TokenTTL)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Page-Count"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	wsHandler := wsocket.NewHandler(upgrader, messageBroker, logger)

	auth.SetupRoutes(r, authenticator)
	api.SetupRoutes(r, authenticator, workspaces, services.NewTranscriptExporter())

	r.GET("/ws", authenticator.AuthMiddleware(), func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		workspace, _ := auth.CurrentWorkspace(c)
		wsHandler.HandleWebSocket(c.Writer, c.Request, workspace, user.ID)
	})

	log.Info().Str("port", cfg.Port).Msg("Server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
