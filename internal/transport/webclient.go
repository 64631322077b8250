package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const (
	whatsappWebURL = "https://web.whatsapp.com"
	pollInterval   = 2 * time.Second
)

// WebClient drives WhatsApp Web through a headless Chrome instance.
// One Chrome profile directory per store keeps the authenticated
// session between restarts, so a store only scans the QR code once.
type WebClient struct {
	eid        string
	profileDir string
	headless   bool

	ctx    context.Context
	cancel context.CancelFunc

	onQR           func(payload string)
	onReady        func()
	onDisconnected func(reason string)
	onMessage      func(msg Message)

	mu     sync.Mutex
	closed bool
}

// WebClientConfig holds driver configuration shared by all stores.
type WebClientConfig struct {
	SessionDir string // root directory for per-store Chrome profiles
	Headless   bool
}

// NewWebClientFactory returns a Factory producing chromedp-backed
// clients with one profile directory per store under cfg.SessionDir.
func NewWebClientFactory(cfg WebClientConfig) Factory {
	return func(eid string) Client {
		return &WebClient{
			eid:        eid,
			profileDir: filepath.Join(cfg.SessionDir, eid),
			headless:   cfg.Headless,
		}
	}
}

func (w *WebClient) OnQR(fn func(payload string))         { w.onQR = fn }
func (w *WebClient) OnReady(fn func())                    { w.onReady = fn }
func (w *WebClient) OnDisconnected(fn func(reason string)) { w.onDisconnected = fn }
func (w *WebClient) OnMessage(fn func(msg Message))       { w.onMessage = fn }

// Connect launches Chrome, opens WhatsApp Web and starts the watch
// loop that surfaces qr/ready/disconnected/message events.
func (w *WebClient) Connect(ctx context.Context) error {
	if err := os.MkdirAll(w.profileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(w.profileDir),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
	)
	if !w.headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	w.mu.Lock()
	w.ctx = taskCtx
	w.cancel = func() {
		taskCancel()
		allocCancel()
	}
	w.mu.Unlock()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(whatsappWebURL),
		chromedp.WaitReady("body"),
	); err != nil {
		w.Close()
		return fmt.Errorf("open whatsapp web: %w", err)
	}

	go w.watch(taskCtx)
	return nil
}

// watch polls the page for pairing and inbound-message state until the
// browser context dies. Events for one client are delivered from this
// single goroutine, so handlers see them in order.
func (w *WebClient) watch(ctx context.Context) {
	var lastQR string
	ready := false

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.fireDisconnected("browser context closed")
			return
		case <-ticker.C:
		}

		if !ready {
			var qr string
			if err := chromedp.Run(ctx, chromedp.Evaluate(qrPayloadJS, &qr)); err != nil {
				w.fireDisconnected(fmt.Sprintf("page evaluate failed: %v", err))
				return
			}
			if qr != "" && qr != lastQR {
				lastQR = qr
				if w.onQR != nil {
					w.onQR(qr)
				}
				continue
			}

			var chatListUp bool
			if err := chromedp.Run(ctx, chromedp.Evaluate(readyJS, &chatListUp)); err != nil {
				w.fireDisconnected(fmt.Sprintf("page evaluate failed: %v", err))
				return
			}
			if chatListUp {
				ready = true
				lastQR = ""
				if w.onReady != nil {
					w.onReady()
				}
			}
			continue
		}

		// Connected: a vanished chat list means the phone unlinked us.
		var stillUp bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(readyJS, &stillUp)); err != nil {
			w.fireDisconnected(fmt.Sprintf("page evaluate failed: %v", err))
			return
		}
		if !stillUp {
			w.fireDisconnected("session logged out")
			return
		}

		w.drainInbox(ctx)
	}
}

// drainInbox collects messages queued by the injected observer.
func (w *WebClient) drainInbox(ctx context.Context) {
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(drainInboxJS, &raw)); err != nil {
		log.Printf("[%s] inbox drain failed: %v", w.eid, err)
		return
	}
	if raw == "" || raw == "[]" {
		return
	}

	var items []struct {
		From    string `json:"from"`
		Body    string `json:"body"`
		IsGroup bool   `json:"isGroup"`
		FromMe  bool   `json:"fromMe"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		log.Printf("[%s] inbox payload malformed: %v", w.eid, err)
		return
	}

	for _, it := range items {
		if w.onMessage != nil {
			w.onMessage(Message{
				From:       it.From,
				Body:       it.Body,
				IsGroup:    it.IsGroup,
				FromMe:     it.FromMe,
				ReceivedAt: time.Now(),
			})
		}
	}
}

// SendText opens the direct-send URL for the recipient and submits the
// message through the composer.
func (w *WebClient) SendText(ctx context.Context, to, body string) error {
	taskCtx, err := w.taskContext()
	if err != nil {
		return err
	}

	sendURL := fmt.Sprintf("%s/send?phone=%s&text=%s",
		whatsappWebURL, phoneFromAddress(to), url.QueryEscape(body))

	sendCtx, cancel := context.WithTimeout(taskCtx, 45*time.Second)
	defer cancel()

	return chromedp.Run(sendCtx,
		chromedp.Navigate(sendURL),
		chromedp.WaitVisible(`footer div[contenteditable="true"]`, chromedp.ByQuery),
		chromedp.Click(`footer div[contenteditable="true"]`, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	)
}

// SendImage uploads the image through the attachment input and sends
// it with the given caption.
func (w *WebClient) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	taskCtx, err := w.taskContext()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "rapidex-media-*.jpg")
	if err != nil {
		return fmt.Errorf("stage media: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return fmt.Errorf("stage media: %w", err)
	}
	tmp.Close()

	chatURL := fmt.Sprintf("%s/send?phone=%s", whatsappWebURL, phoneFromAddress(to))

	sendCtx, cancel := context.WithTimeout(taskCtx, 60*time.Second)
	defer cancel()

	return chromedp.Run(sendCtx,
		chromedp.Navigate(chatURL),
		chromedp.WaitVisible(`footer div[contenteditable="true"]`, chromedp.ByQuery),
		chromedp.SetUploadFiles(`input[type="file"]`, []string{tmp.Name()}, chromedp.ByQuery),
		chromedp.WaitVisible(`div[contenteditable="true"][data-testid="media-caption-input"]`, chromedp.ByQuery),
		chromedp.SendKeys(`div[contenteditable="true"][data-testid="media-caption-input"]`, caption, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter),
	)
}

func (w *WebClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

func (w *WebClient) taskContext() (context.Context, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.ctx == nil {
		return nil, fmt.Errorf("client for %s is not connected", w.eid)
	}
	return w.ctx, nil
}

func (w *WebClient) fireDisconnected(reason string) {
	w.mu.Lock()
	already := w.closed
	w.mu.Unlock()

	if already {
		return
	}
	log.Printf("[%s] transport disconnected: %s", w.eid, reason)
	if w.onDisconnected != nil {
		w.onDisconnected(reason)
	}
}

// phoneFromAddress strips the chat-network suffix ("@c.us") so the
// number fits the web client's send URL.
func phoneFromAddress(addr string) string {
	for i := 0; i < len(addr); i++ {
		if addr[i] == '@' {
			return addr[:i]
		}
	}
	return addr
}

// Page-side scripts. The observer queues inbound messages on a global
// the watch loop drains; re-injecting it is a no-op.
const (
	qrPayloadJS = `(() => {
		const el = document.querySelector('div[data-ref]');
		return el ? el.getAttribute('data-ref') : '';
	})()`

	readyJS = `!!document.querySelector('#pane-side')`

	drainInboxJS = `(() => {
		if (!window.__rapidexObserver) {
			window.__rapidexInbox = [];
			window.__rapidexSeen = {};
			window.__rapidexObserver = setInterval(() => {
				document.querySelectorAll('#pane-side [role="listitem"]').forEach(item => {
					const badge = item.querySelector('span[aria-label*="não lida"], span[aria-label*="unread"]');
					if (!badge) return;
					const title = item.querySelector('span[title]');
					const preview = item.querySelector('div[class*="message"] span[title], span[dir="ltr"]');
					if (!title || !preview) return;
					const key = title.getAttribute('title') + '|' + preview.textContent;
					if (window.__rapidexSeen[key]) return;
					window.__rapidexSeen[key] = Date.now();
					window.__rapidexInbox.push({
						from: title.getAttribute('title'),
						body: preview.textContent,
						isGroup: !!item.querySelector('svg[data-testid="default-group"]'),
						fromMe: false
					});
				});
			}, 1000);
		}
		return JSON.stringify(window.__rapidexInbox.splice(0));
	})()`
)
