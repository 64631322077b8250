package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/rapidex-app/whatsapp-gateway/internal/models"
	"github.com/rapidex-app/whatsapp-gateway/internal/services"
	"github.com/rapidex-app/whatsapp-gateway/internal/storage"
)

// SessionHandler serves the panel endpoints: QR pairing, session
// status and the operator send path.
type SessionHandler struct {
	store   storage.Store
	manager *services.SessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store storage.Store, manager *services.SessionManager) *SessionHandler {
	return &SessionHandler{store: store, manager: manager}
}

// GetQR returns the persisted pairing QR for a store. When no QR is
// pending it lazily kicks off session creation and returns null so the
// panel keeps polling.
func (h *SessionHandler) GetQR(c *fiber.Ctx) error {
	eid := c.Query("eid")
	if eid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "eid obrigatório",
		})
	}

	state, err := h.store.GetSessionState(eid)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if state != nil && state.QRCode != "" {
		return c.JSON(fiber.Map{"qr": state.QRCode})
	}

	if _, err := h.manager.GetOrCreateSession(eid); err != nil {
		log.Printf("⚠️  /qr: sessão da loja %s não pôde ser criada: %v", eid, err)
	}
	return c.JSON(fiber.Map{"qr": nil})
}

// GetStatus reports the persisted connection status for a store.
func (h *SessionHandler) GetStatus(c *fiber.Ctx) error {
	eid := c.Query("eid")
	if eid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "eid obrigatório",
		})
	}

	status := models.SessionStatusUnknown
	state, err := h.store.GetSessionState(eid)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if state != nil {
		status = state.Status
	}

	return c.JSON(fiber.Map{
		"eid":       eid,
		"conectado": status == models.SessionStatusConnected,
		"status":    status,
	})
}

// SendPayload is the POST /send request body.
type SendPayload struct {
	EID     string `json:"eid"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// PostSend sends a message through the store's session transport. This
// is the operator/API path and bypasses the automation pipeline.
func (h *SessionHandler) PostSend(c *fiber.Ctx) error {
	var payload SendPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Parâmetros faltando.",
		})
	}
	if payload.EID == "" || payload.To == "" || payload.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Parâmetros faltando.",
		})
	}

	if err := h.manager.SendDirect(c.Context(), payload.EID, payload.To, payload.Message); err != nil {
		log.Printf("❌ Erro ao enviar mensagem (loja %s): %v", payload.EID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{"success": true})
}
