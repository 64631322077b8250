package models

import "gorm.io/gorm"

// Persisted session status values. These mirror what the panel polls
// through /status; a pending QR scan is persisted as disconnected.
const (
	SessionStatusConnected    = "connected"
	SessionStatusDisconnected = "disconnected"
	SessionStatusUnknown      = "desconhecido"
)

// SessionState is the durable half of a store's session: its last
// persisted status and, while pairing is pending, the QR image the
// panel renders for the operator. One row per store, survives restarts.
type SessionState struct {
	gorm.Model

	StoreEID string `json:"store_eid" gorm:"uniqueIndex;not null"`
	Status   string `json:"status" gorm:"not null"`
	QRCode   string `json:"qr_code" gorm:"type:text"` // PNG data URL, empty when no scan is pending
}
