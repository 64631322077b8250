package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidex-app/whatsapp-gateway/internal/models"
)

// MemoryStore holds all data in memory. Used for tests and for running
// the gateway without a database (USE_MEMORY_STORE=true).
type MemoryStore struct {
	stores    map[string]*models.Store    // keyed by EID
	customers map[string]*models.Customer // keyed by phone
	products  []*models.Product
	templates map[string]*models.WelcomeTemplate // keyed by EID
	logs      []*models.MessageLog
	sessions  map[string]*models.SessionState // keyed by EID

	mu sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stores:    make(map[string]*models.Store),
		customers: make(map[string]*models.Customer),
		templates: make(map[string]*models.WelcomeTemplate),
		sessions:  make(map[string]*models.SessionState),
	}
}

// Seed helpers (tests and local development)

func (m *MemoryStore) AddStore(s *models.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Domain = strings.ToLower(s.Domain)
	m.stores[s.EID] = s
}

func (m *MemoryStore) AddCustomer(c *models.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.Phone] = c
}

func (m *MemoryStore) AddProduct(p *models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, p)
}

func (m *MemoryStore) SetWelcomeTemplate(t *models.WelcomeTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.StoreEID] = t
}

// Store operations

func (m *MemoryStore) GetStoreByEID(eid string) (*models.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	store, exists := m.stores[eid]
	if !exists {
		return nil, fmt.Errorf("store not found")
	}
	return store, nil
}

func (m *MemoryStore) GetCustomerByPhone(phone string) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.customers[phone], nil
}

func (m *MemoryStore) FindProductByName(storeEID, term string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(term)
	for _, p := range m.products {
		if p.StoreEID == storeEID && strings.Contains(strings.ToLower(p.Name), needle) {
			return p, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetWelcomeTemplate(storeEID string) (*models.WelcomeTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.templates[storeEID], nil
}

// Message log operations

func (m *MemoryStore) CreateMessageLog(entry *models.MessageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *MemoryStore) HasMessageLogOn(storeEID, phone, status string, day time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	y, mo, d := day.Date()
	for _, l := range m.logs {
		ly, lmo, ld := l.CreatedAt.Date()
		if l.StoreEID == storeEID && l.Phone == phone && l.Status == status &&
			ly == y && lmo == mo && ld == d {
			return true, nil
		}
	}
	return false, nil
}

// MessageLogs returns a snapshot of the log (tests only).
func (m *MemoryStore) MessageLogs() []*models.MessageLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.MessageLog, len(m.logs))
	copy(out, m.logs)
	return out
}

// Session state operations

func (m *MemoryStore) GetSessionState(storeEID string) (*models.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sessions[storeEID], nil
}

func (m *MemoryStore) SetSessionStatus(storeEID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session(storeEID).Status = status
	return nil
}

func (m *MemoryStore) SetSessionQR(storeEID, qrCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session(storeEID).QRCode = qrCode
	return nil
}

// session returns the state row for a store, creating it on first use.
// Callers must hold the write lock.
func (m *MemoryStore) session(storeEID string) *models.SessionState {
	state, exists := m.sessions[storeEID]
	if !exists {
		state = &models.SessionState{StoreEID: storeEID}
		m.sessions[storeEID] = state
	}
	return state
}

func (m *MemoryStore) ClearSessionQR(storeEID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.sessions[storeEID]; exists {
		state.QRCode = ""
	}
	return nil
}
