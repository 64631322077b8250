package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rapidex-app/whatsapp-gateway/internal/services"
)

// HealthHandler serves the service banner and the monitoring endpoint.
type HealthHandler struct {
	manager *services.SessionManager
}

func NewHealthHandler(manager *services.SessionManager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Root serves the human-facing landing page.
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString(`
    <h1>🚀 Rapidex WhatsApp Server</h1>
    <p>Servidor rodando com sucesso!</p>
    <p>Status: <a href="/status?eid=1">/status?eid=1</a></p>
    <p>QR Code: <a href="/qr?eid=1">/qr?eid=1</a></p>
  `)
}

// Health reports service health for monitoring.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"sessions": len(h.manager.ActiveSessions()),
	})
}
