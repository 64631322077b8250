package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidex-app/whatsapp-gateway/internal/models"
	"github.com/rapidex-app/whatsapp-gateway/internal/storage"
	"github.com/rapidex-app/whatsapp-gateway/internal/transport"
)

// SessionState names the lifecycle states of one store's connection.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateAwaitingScan
	StateConnected
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// SessionEvent is a typed transport event driving the state machine.
type SessionEvent int

const (
	EventQR SessionEvent = iota
	EventReady
	EventDisconnected
)

func (e SessionEvent) String() string {
	switch e {
	case EventQR:
		return "qr"
	case EventReady:
		return "ready"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Session is the live connection handle for one store. It is owned by
// the SessionManager registry; at most one exists per EID at a time.
type Session struct {
	ID    string
	Store *models.Store

	client transport.Client

	mu       sync.Mutex
	state    SessionState
	statusAt time.Time

	sendMu sync.Mutex // serializes sends through the shared transport
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition applies event to the state machine. It returns the new
// state and false when the event is illegal in the current state, in
// which case callers must not re-execute side effects.
func (s *Session) transition(event SessionEvent) (SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next SessionState
	switch event {
	case EventQR:
		// A fresh QR may arrive repeatedly while pairing is pending.
		if s.state != StateUninitialized && s.state != StateAwaitingScan {
			return s.state, false
		}
		next = StateAwaitingScan
	case EventReady:
		// Uninitialized→Connected happens when a restored browser
		// profile authenticates without a new scan.
		if s.state != StateUninitialized && s.state != StateAwaitingScan {
			return s.state, false
		}
		next = StateConnected
	case EventDisconnected:
		if s.state == StateDisconnected {
			return s.state, false
		}
		next = StateDisconnected
	default:
		return s.state, false
	}

	s.state = next
	s.statusAt = time.Now()
	return next, true
}

// SendText sends through the session's transport. Sends are serialized
// per session; the transport resource is never written concurrently.
func (s *Session) SendText(ctx context.Context, to, body string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.client.SendText(ctx, to, body)
}

// SendImage sends an inline image with caption, serialized like SendText.
func (s *Session) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.client.SendImage(ctx, to, image, caption)
}

// SessionManager owns the per-store session registry and the lifecycle
// side effects (persisting status, rendering QR images, tearing down).
type SessionManager struct {
	store     storage.Store
	newClient transport.Factory
	bot       *BotService

	sessions map[string]*Session
	mu       sync.Mutex
}

// NewSessionManager creates the manager. The bot may be nil (sessions
// then only serve the operator /send path), which tests use.
func NewSessionManager(store storage.Store, factory transport.Factory, bot *BotService) *SessionManager {
	return &SessionManager{
		store:     store,
		newClient: factory,
		bot:       bot,
		sessions:  make(map[string]*Session),
	}
}

// GetOrCreateSession returns the live session for eid, creating and
// connecting one when none exists. The create path runs under the
// registry lock, so two concurrent calls can never build two sessions
// for the same store.
func (sm *SessionManager) GetOrCreateSession(eid string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[eid]; exists {
		return session, nil
	}

	storeRec, err := sm.store.GetStoreByEID(eid)
	if err != nil {
		return nil, fmt.Errorf("unknown store %s: %w", eid, err)
	}

	session := &Session{
		ID:     uuid.NewString(),
		Store:  storeRec,
		client: sm.newClient(eid),
		state:  StateUninitialized,
	}
	sm.registerHandlers(session)
	sm.sessions[eid] = session

	log.Printf("🟡 Iniciando sessão da loja %s...", eid)

	go func() {
		if err := session.client.Connect(context.Background()); err != nil {
			log.Printf("❌ Falha ao conectar loja %s: %v", eid, err)
			// Not retried here: the session leaves the registry and the
			// next GetOrCreateSession call rebuilds it from scratch.
			sm.remove(eid, session)
		}
	}()

	return session, nil
}

// GetSession returns the live session for eid without creating one.
func (sm *SessionManager) GetSession(eid string) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	session, exists := sm.sessions[eid]
	return session, exists
}

// ActiveSessions returns the EIDs with a live session (for monitoring).
func (sm *SessionManager) ActiveSessions() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	eids := make([]string, 0, len(sm.sessions))
	for eid := range sm.sessions {
		eids = append(eids, eid)
	}
	return eids
}

// SendDirect is the operator/API send path: it sends through the
// store's session transport, bypassing the automation pipeline.
func (sm *SessionManager) SendDirect(ctx context.Context, eid, to, message string) error {
	session, err := sm.GetOrCreateSession(eid)
	if err != nil {
		return err
	}
	if !strings.Contains(to, "@") {
		to += "@c.us"
	}
	return session.SendText(ctx, to, message)
}

func (sm *SessionManager) registerHandlers(session *Session) {
	eid := session.Store.EID

	session.client.OnQR(func(payload string) {
		if _, ok := session.transition(EventQR); !ok {
			log.Printf("⚠️  Loja %s: evento qr ignorado no estado %s", eid, session.State())
			return
		}
		log.Printf("📸 Novo QR para loja %s", eid)

		dataURL, err := renderQRDataURL(payload)
		if err != nil {
			log.Printf("❌ Falha ao renderizar QR da loja %s: %v", eid, err)
			return
		}
		if err := sm.store.SetSessionQR(eid, dataURL); err != nil {
			log.Printf("❌ Falha ao persistir QR da loja %s: %v", eid, err)
		}
		// A pending scan is not a connected state.
		if err := sm.store.SetSessionStatus(eid, models.SessionStatusDisconnected); err != nil {
			log.Printf("❌ Falha ao persistir status da loja %s: %v", eid, err)
		}
	})

	session.client.OnReady(func() {
		if _, ok := session.transition(EventReady); !ok {
			log.Printf("⚠️  Loja %s: evento ready ignorado no estado %s", eid, session.State())
			return
		}
		log.Printf("✅ Loja %s conectada ao WhatsApp!", eid)

		if err := sm.store.SetSessionStatus(eid, models.SessionStatusConnected); err != nil {
			log.Printf("❌ Falha ao persistir status da loja %s: %v", eid, err)
		}
		// The persisted QR is stale once the session authenticates.
		if err := sm.store.ClearSessionQR(eid); err != nil {
			log.Printf("❌ Falha ao limpar QR da loja %s: %v", eid, err)
		}
	})

	session.client.OnDisconnected(func(reason string) {
		if _, ok := session.transition(EventDisconnected); !ok {
			log.Printf("⚠️  Loja %s: evento disconnected ignorado no estado %s", eid, session.State())
			return
		}
		log.Printf("❌ Loja %s desconectada! (%s)", eid, reason)

		if err := sm.store.SetSessionStatus(eid, models.SessionStatusDisconnected); err != nil {
			log.Printf("❌ Falha ao persistir status da loja %s: %v", eid, err)
		}
		if err := session.client.Close(); err != nil {
			log.Printf("⚠️  Loja %s: erro ao liberar transporte: %v", eid, err)
		}
		// Terminal for this instance: the next GetOrCreateSession call
		// builds a brand-new session and authentication cycle.
		sm.remove(eid, session)
	})

	session.client.OnMessage(func(msg transport.Message) {
		if sm.bot == nil {
			return
		}
		sm.bot.HandleMessage(context.Background(), session.Store, session, msg)
	})
}

// remove drops the session from the registry, but only if it is still
// the registered instance — a replacement created meanwhile stays.
func (sm *SessionManager) remove(eid string, session *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if current, exists := sm.sessions[eid]; exists && current == session {
		delete(sm.sessions, eid)
	}
}
