package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/bog-assistant/backend/internal/api/handlers"
	"github.com/bog-assistant/backend/internal/assembler"
	cacheredis "github.com/bog-assistant/backend/internal/cache/redis"
	"github.com/bog-assistant/backend/internal/kg/neo4j"
	"github.com/bog-assistant/backend/internal/llm"
	"github.com/bog-assistant/backend/internal/metrics"
	"github.com/bog-assistant/backend/internal/middleware/ratelimit"
	"github.com/bog-assistant/backend/internal/middleware/security"
	"github.com/bog-assistant/backend/internal/middleware/validation"
	"github.com/bog-assistant/backend/internal/query"
	"github.com/bog-assistant/backend/internal/storage/sqlite"
	"github.com/bog-assistant/backend/pkg/config"
	appLogger "github.com/bog-assistant/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting BoG Minutes Assistant API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	neo4jClient, err := neo4j.NewClient(
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
		cfg.Retrieval.IndexName,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
	}
	defer neo4jClient.Close(context.Background())

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	contextAssembler := assembler.New(
		cfg.Context.MaxTokens,
		cfg.Context.OverheadTokens,
		cfg.Context.MaxChunkChars,
	)

	engineOpts := []query.Option{
		query.WithHistory(sqliteClient),
	}

	if cfg.Redis.Enabled {
		redisClient, err := cacheredis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		engineOpts = append(engineOpts, query.WithCache(
			redisClient,
			time.Duration(cfg.Redis.ResponseTTL)*time.Second,
			time.Duration(cfg.Redis.EmbeddingTTL)*time.Second,
		))
	}

	queryEngine := query.NewEngine(
		llmClient,
		neo4jClient,
		llmClient,
		contextAssembler,
		cfg.Retrieval,
		engineOpts...,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	queryHandler := handlers.NewQueryHandler(queryEngine, sqliteClient, sqliteClient)
	healthHandler := handlers.NewHealthHandler(neo4jClient)
	chatHandler := handlers.NewChatHandler(queryEngine)

	api := app.Group("/api/v1")

	api.Post("/query",
		rateLimiter.Middleware(),
		validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}),
		queryHandler.HandleQuery,
	)
	api.Get("/query/history", queryHandler.GetQueryHistory)
	api.Post("/feedback", queryHandler.SubmitFeedback)
	api.Get("/health", healthHandler.HandleHealth)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(chatHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
