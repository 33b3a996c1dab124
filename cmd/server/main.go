package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aria/internal/calendar"
	"aria/internal/config"
	"aria/internal/crypto"
	"aria/internal/database"
	"aria/internal/handlers"
	"aria/internal/logging"
	"aria/internal/middleware"
	"aria/internal/services"
	"aria/internal/tools"
	"aria/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("❌ Failed to load policy: %v", err)
	}

	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI is required")
	}
	db, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ MongoDB connection failed: %v", err)
	}
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Initialize(initCtx); err != nil {
		log.Fatalf("❌ MongoDB initialization failed: %v", err)
	}
	cancelInit()

	redis := services.GetRedisService(cfg.RedisURL)

	masterKey := cfg.EncryptionMasterKey
	if masterKey == "" {
		if cfg.Environment == "production" {
			log.Fatal("❌ ENCRYPTION_MASTER_KEY is required in production")
		}
		masterKey, err = crypto.GenerateMasterKey()
		if err != nil {
			log.Fatalf("❌ Failed to generate dev encryption key: %v", err)
		}
		log.Println("⚠️ Using an ephemeral encryption key; stored memory will not survive a restart")
	}
	encryption, err := crypto.NewEncryptionService(masterKey)
	if err != nil {
		log.Fatalf("❌ Encryption setup failed: %v", err)
	}

	providers, err := services.NewProviderService(cfg.ProvidersPath)
	if err != nil {
		log.Fatalf("❌ Provider setup failed: %v", err)
	}
	defer providers.Close()

	var jwtAuth *auth.LocalJWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.JWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ JWT setup failed: %v", err)
		}
	}

	calendarProvider := calendar.NewHTTPProvider(
		cfg.CalendarBaseURL, cfg.CalendarAPIKey, cfg.CalendarEntityID,
		calendar.AllPermissions())

	llm := services.NewLLMService()
	audit := services.NewAuditService(db)
	conversations := services.NewConversationService(db)
	memory := services.NewMemoryService(db, encryption)
	resolver := services.NewCalendarResolver(calendarProvider, policy)
	suggestions := services.NewSuggestionService(conversations, llm)
	intents := services.NewIntentService(llm, memory)
	autopilot := services.NewAutopilotService(db)
	enricher := services.NewEnrichmentService()
	composer := services.NewPromptComposer()

	registry := tools.NewRegistry()
	tools.RegisterCalendarTools(registry, calendarProvider)
	tools.RegisterTimeTool(registry, "")

	toolLoop := services.NewToolLoopService(llm, registry, calendarProvider, resolver, policy, audit)
	orchestrator := services.NewOrchestratorService(
		providers, llm, intents, conversations, memory, suggestions,
		toolLoop, composer, enricher, autopilot, redis, policy, audit,
		cfg.HistoryLimit)

	scheduler, err := services.NewSchedulerService(memory)
	if err != nil {
		log.Fatalf("❌ Scheduler setup failed: %v", err)
	}
	if err := scheduler.Start(policy.Jobs.MemoryFlushSchedule); err != nil {
		log.Fatalf("❌ Scheduler start failed: %v", err)
	}
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "aria",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.Environment != "production" {
		app.Use(fiberlogger.New())
	}

	rateLimits := middleware.LoadRateLimitConfig()
	app.Use(middleware.GlobalRateLimiter(rateLimits))

	prometheus := fiberprometheus.New("aria")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	chatHandler := handlers.NewChatHandler(orchestrator, conversations, redis)
	memoryHandler := handlers.NewMemoryHandler(memory)
	healthHandler := handlers.NewHealthHandler(db, redis)

	app.Get("/health", healthHandler.Health)

	api := app.Group("/api", middleware.LocalAuthMiddleware(jwtAuth), middleware.APIRateLimiter(rateLimits))
	api.Post("/chat/messages", chatHandler.SendMessage)
	api.Get("/chat/threads/:id/messages", chatHandler.GetThreadMessages)
	api.Get("/memory", memoryHandler.GetProfile)
	api.Get("/memory/profile", memoryHandler.GetProfile)
	api.Delete("/memory/:bucket/:key", memoryHandler.ForgetFact)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()
	log.Printf("🚀 aria listening on :%s", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}

	closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelClose()
	if err := redis.Close(); err != nil {
		log.Printf("⚠️ Redis close error: %v", err)
	}
	if err := db.Close(closeCtx); err != nil {
		log.Printf("⚠️ MongoDB close error: %v", err)
	}
	log.Println("👋 Goodbye")
}
