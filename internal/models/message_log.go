package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message status tags recorded in the durable log.
const (
	MessageStatusWelcome  = "welcome"
	MessageStatusRecovery = "recovery"
	MessageStatusHandoff  = "handoff"
)

// MessageLog is the append-only record of automated outbound messages.
// A row with status "welcome" for (store, phone) on a given calendar
// day is itself the once-a-day welcome guard: there is no separate
// in-memory state, which is what makes the guard survive restarts.
type MessageLog struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	StoreEID  string    `json:"store_eid" gorm:"index:idx_log_store_phone,priority:1;not null"`
	Phone     string    `json:"phone" gorm:"index:idx_log_store_phone,priority:2;not null"`
	Body      string    `json:"body" gorm:"type:text"`
	Status    string    `json:"status" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *MessageLog) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
