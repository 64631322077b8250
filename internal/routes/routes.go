package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rapidex-app/whatsapp-gateway/internal/handlers"
	"github.com/rapidex-app/whatsapp-gateway/internal/services"
	"github.com/rapidex-app/whatsapp-gateway/internal/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, store storage.Store, manager *services.SessionManager) {
	sessionHandler := handlers.NewSessionHandler(store, manager)
	healthHandler := handlers.NewHealthHandler(manager)

	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)

	app.Get("/qr", sessionHandler.GetQR)
	app.Get("/status", sessionHandler.GetStatus)
	app.Post("/send", sessionHandler.PostSend)
}
