package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/rapidex-app/whatsapp-gateway/database"
	"github.com/rapidex-app/whatsapp-gateway/internal/guard"
	"github.com/rapidex-app/whatsapp-gateway/internal/jobs"
	"github.com/rapidex-app/whatsapp-gateway/internal/models"
	"github.com/rapidex-app/whatsapp-gateway/internal/routes"
	"github.com/rapidex-app/whatsapp-gateway/internal/services"
	"github.com/rapidex-app/whatsapp-gateway/internal/storage"
	"github.com/rapidex-app/whatsapp-gateway/internal/transport"
)

func main() {
	// Load .env file for local development
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found - checking environment variables")
	}

	// Initialize storage
	var store storage.Store

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.Store{},
			&models.Customer{},
			&models.Product{},
			&models.WelcomeTemplate{},
			&models.MessageLog{},
			&models.SessionState{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		log.Println("✅ Using PostgreSQL database storage")
	}
	storage.SetStore(store)

	// Transport driver: one Chrome profile per store under SESSION_DIR
	sessionDir := os.Getenv("SESSION_DIR")
	if sessionDir == "" {
		sessionDir = "./sessions"
	}
	factory := transport.NewWebClientFactory(transport.WebClientConfig{
		SessionDir: sessionDir,
		Headless:   os.Getenv("BROWSER_HEADLESS") != "false",
	})

	// Pipeline guards and services
	throttle := guard.NewWindow(services.ThrottleWindow)
	recoveryGuard := guard.NewWindow(services.RecoveryWindow)
	bot := services.NewBotService(store, throttle, recoveryGuard, services.NewProductLookup(store, nil))
	sessionManager := services.NewSessionManager(store, factory, bot)

	cleanupJob := jobs.NewCleanupJob(time.Hour, throttle, recoveryGuard)
	cleanupJob.Start()

	log.Println("✅ All services initialized")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "Rapidex WhatsApp Gateway v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "https://rapidex.app.br, https://painel.rapidex.app.br",
		AllowHeaders: "Content-Type",
		AllowMethods: "GET, POST",
	}))

	routes.SetupRoutes(app, store, sessionManager)

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		cleanupJob.Stop()
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 Servidor WhatsApp rodando na porta %s", port)
	log.Printf("📂 Sessões em %s", sessionDir)
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}
