// Package transport defines the boundary to the WhatsApp Web client.
// The gateway only depends on this interface; the chromedp driver in
// webclient.go is the production implementation and tests plug in
// fakes through Factory.
package transport

import (
	"context"
	"time"
)

// Message is one inbound chat event as delivered by the client.
type Message struct {
	From       string // sender address, e.g. "5511999998888@c.us"
	Body       string
	IsGroup    bool
	FromMe     bool
	ReceivedAt time.Time
}

// Client is one store's connection to WhatsApp Web. Callback
// registration must happen before Connect; the driver delivers events
// for a given client sequentially.
type Client interface {
	// Connect starts the client and blocks until the underlying page
	// is up or fails. Pairing progress is reported via OnQR/OnReady.
	Connect(ctx context.Context) error

	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to string, image []byte, caption string) error

	// OnQR fires with the raw pairing payload every time WhatsApp
	// issues a new QR code.
	OnQR(fn func(payload string))
	// OnReady fires once the session is authenticated and usable.
	OnReady(fn func())
	// OnDisconnected fires when the session drops for any reason.
	OnDisconnected(fn func(reason string))
	// OnMessage fires for every inbound message.
	OnMessage(fn func(msg Message))

	// Close releases the underlying resources. Safe to call twice.
	Close() error
}

// Factory builds a client for one store. The eid selects the
// credential directory so each store keeps its own authenticated
// browser profile.
type Factory func(eid string) Client
