package storage

import (
	"testing"
	"time"

	"github.com/rapidex-app/whatsapp-gateway/internal/models"
)

func TestHasMessageLogOn_CalendarDayBoundary(t *testing.T) {
	m := NewMemoryStore()

	lateNight := time.Date(2026, 8, 27, 23, 59, 0, 0, time.Local)
	if err := m.CreateMessageLog(&models.MessageLog{
		StoreEID:  "1",
		Phone:     "5511999998888@c.us",
		Status:    models.MessageStatusWelcome,
		CreatedAt: lateNight,
	}); err != nil {
		t.Fatal(err)
	}

	found, err := m.HasMessageLogOn("1", "5511999998888@c.us", models.MessageStatusWelcome, lateNight)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("log written the same day must be found")
	}

	// Two minutes later it is a new calendar day, not a new 24h window.
	nextDay := lateNight.Add(2 * time.Minute)
	found, err = m.HasMessageLogOn("1", "5511999998888@c.us", models.MessageStatusWelcome, nextDay)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("midnight resets eligibility even minutes after the last send")
	}
}

func TestHasMessageLogOn_ScopedByStoreAndStatus(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()

	_ = m.CreateMessageLog(&models.MessageLog{
		StoreEID: "1", Phone: "p", Status: models.MessageStatusWelcome, CreatedAt: now,
	})

	if found, _ := m.HasMessageLogOn("2", "p", models.MessageStatusWelcome, now); found {
		t.Error("another store's log must not satisfy the guard")
	}
	if found, _ := m.HasMessageLogOn("1", "p", models.MessageStatusRecovery, now); found {
		t.Error("a different status must not satisfy the guard")
	}
}

func TestCreateMessageLog_AssignsIDAndTimestamp(t *testing.T) {
	m := NewMemoryStore()

	entry := &models.MessageLog{StoreEID: "1", Phone: "p", Status: models.MessageStatusHandoff}
	if err := m.CreateMessageLog(entry); err != nil {
		t.Fatal(err)
	}
	if entry.ID == "" {
		t.Error("log entry should receive an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("log entry should receive a timestamp")
	}
}

func TestSessionState_UpsertAndClear(t *testing.T) {
	m := NewMemoryStore()

	state, err := m.GetSessionState("1")
	if err != nil {
		t.Fatal(err)
	}
	if state != nil {
		t.Fatal("no state should exist before the first write")
	}

	if err := m.SetSessionQR("1", "data:image/png;base64,abc"); err != nil {
		t.Fatal(err)
	}
	if err := m.SetSessionStatus("1", models.SessionStatusDisconnected); err != nil {
		t.Fatal(err)
	}

	state, _ = m.GetSessionState("1")
	if state == nil || state.QRCode == "" || state.Status != models.SessionStatusDisconnected {
		t.Fatalf("unexpected state after writes: %+v", state)
	}

	if err := m.ClearSessionQR("1"); err != nil {
		t.Fatal(err)
	}
	state, _ = m.GetSessionState("1")
	if state.QRCode != "" {
		t.Error("ClearSessionQR must drop the pending QR")
	}
	if state.Status != models.SessionStatusDisconnected {
		t.Error("clearing the QR must not touch the status")
	}
}

func TestFindProductByName_CaseInsensitiveSubstring(t *testing.T) {
	m := NewMemoryStore()
	m.AddProduct(&models.Product{StoreEID: "1", Name: "Pizza Calabresa", Price: 49.90})

	p, err := m.FindProductByName("1", "calabresa")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Name != "Pizza Calabresa" {
		t.Fatalf("expected Pizza Calabresa, got %+v", p)
	}

	if p, _ := m.FindProductByName("2", "calabresa"); p != nil {
		t.Error("products must be scoped to their store")
	}
	if p, _ := m.FindProductByName("1", "sushi"); p != nil {
		t.Error("a miss must return nil, not an error")
	}
}
