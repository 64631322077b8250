package storage

import (
	"time"

	"github.com/rapidex-app/whatsapp-gateway/internal/models"
)

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations.
//
// Lookup methods that model optional data (customer, product, welcome
// template, session state) return (nil, nil) when no row exists; only
// GetStoreByEID treats absence as an error, because every message must
// belong to a known store.
type Store interface {
	// Store (tenant) operations
	GetStoreByEID(eid string) (*models.Store, error)

	// Customer operations
	GetCustomerByPhone(phone string) (*models.Customer, error)

	// Product operations
	FindProductByName(storeEID, term string) (*models.Product, error)

	// Welcome template operations
	GetWelcomeTemplate(storeEID string) (*models.WelcomeTemplate, error)

	// Message log operations (append-only)
	CreateMessageLog(entry *models.MessageLog) error
	HasMessageLogOn(storeEID, phone, status string, day time.Time) (bool, error)

	// Session state operations. Status and QR are written separately,
	// mirroring the lifecycle: a QR write never touches the status of a
	// connected session and going connected drops the stale QR.
	GetSessionState(storeEID string) (*models.SessionState, error)
	SetSessionStatus(storeEID, status string) error
	SetSessionQR(storeEID, qrCode string) error
	ClearSessionQR(storeEID string) error
}
