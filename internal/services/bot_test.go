package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidex-app/whatsapp-gateway/internal/guard"
	"github.com/rapidex-app/whatsapp-gateway/internal/models"
	"github.com/rapidex-app/whatsapp-gateway/internal/storage"
	"github.com/rapidex-app/whatsapp-gateway/internal/transport"
)

type sentText struct {
	to, body string
}

type sentImage struct {
	to, caption string
	bytes       int
}

type fakeSender struct {
	mu       sync.Mutex
	texts    []sentText
	images   []sentImage
	textErr  error
	imageErr error
}

func (f *fakeSender) SendText(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		return f.textErr
	}
	f.texts = append(f.texts, sentText{to: to, body: body})
	return nil
}

func (f *fakeSender) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.imageErr != nil {
		return f.imageErr
	}
	f.images = append(f.images, sentImage{to: to, caption: caption, bytes: len(image)})
	return nil
}

const customerAddr = "5511999998888@c.us"

func inbound(body string) transport.Message {
	return transport.Message{From: customerAddr, Body: body, ReceivedAt: time.Now()}
}

func newTestBot(t *testing.T) (*BotService, *storage.MemoryStore, *models.Store) {
	t.Helper()

	mem := storage.NewMemoryStore()
	loja := &models.Store{EID: "1", Domain: "pizzaria.rapidex.app.br", Name: "Pizzaria do Olívio"}
	mem.AddStore(loja)
	mem.AddCustomer(&models.Customer{Phone: "5511999998888", Name: "Maria"})

	bot := NewBotService(mem,
		guard.NewWindow(ThrottleWindow),
		guard.NewWindow(RecoveryWindow),
		NewProductLookup(mem, nil))
	return bot, mem, loja
}

// unThrottle re-arms the throttle so a follow-up message in the same
// test is not suppressed by stage 2.
func unThrottle(bot *BotService) {
	bot.throttle.Forget("1:" + customerAddr)
}

func activateWelcome(mem *storage.MemoryStore) {
	mem.SetWelcomeTemplate(&models.WelcomeTemplate{
		StoreEID: "1",
		Pattern:  "Olá {cliente_nome}, bem-vindo à {nome_loja}! Cardápio: {link_catalogo}",
		Active:   true,
	})
}

func TestPipeline_DiscardsSelfAndGroupMessages(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	sender := &fakeSender{}

	self := inbound("menu")
	self.FromMe = true
	bot.HandleMessage(context.Background(), loja, sender, self)

	group := inbound("menu")
	group.IsGroup = true
	bot.HandleMessage(context.Background(), loja, sender, group)

	assert.Empty(t, sender.texts, "self and group messages must produce no reply")

	// Discarded messages must not have consumed the sender's throttle.
	bot.HandleMessage(context.Background(), loja, sender, inbound("menu"))
	assert.Len(t, sender.texts, 1)
}

func TestPipeline_ThrottleSuppressesSecondMessage(t *testing.T) {
	bot, _, loja := newTestBot(t)
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("menu"))
	bot.HandleMessage(context.Background(), loja, sender, inbound("menu"))

	assert.Len(t, sender.texts, 1, "second message inside 15s must be silently dropped")
}

func TestPipeline_HandoffNamesCustomerAndStops(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("Quero falar com um ATENDENTE"))

	require.Len(t, sender.texts, 1, "handoff must stop the pipeline before the welcome stage")
	assert.Contains(t, sender.texts[0].body, "Maria")

	logs := mem.MessageLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.MessageStatusHandoff, logs[0].Status)
}

func TestPipeline_FAQExactMatchOnly(t *testing.T) {
	bot, _, loja := newTestBot(t)

	sender := &fakeSender{}
	bot.HandleMessage(context.Background(), loja, sender, inbound("  MENU  "))
	require.Len(t, sender.texts, 1, "exact 'menu' (case-insensitive, trimmed) must answer")
	assert.Contains(t, sender.texts[0].body, loja.CatalogLink())

	unThrottle(bot)
	sender = &fakeSender{}
	bot.HandleMessage(context.Background(), loja, sender, inbound("menu please"))
	assert.Empty(t, sender.texts, "'menu please' is not an exact match")
}

func TestPipeline_FAQHoursAndPayment(t *testing.T) {
	bot, _, loja := newTestBot(t)
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("horário"))
	unThrottle(bot)
	bot.HandleMessage(context.Background(), loja, sender, inbound("pagamento"))

	require.Len(t, sender.texts, 2)
	assert.Equal(t, faqHours, sender.texts[0].body)
	assert.Equal(t, faqPayment, sender.texts[1].body)
}

func TestPipeline_ProductInquiryRepliesWithFirstMatch(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	mem.AddProduct(&models.Product{StoreEID: "1", Name: "Pizza Calabresa", Price: 49.9})
	mem.AddProduct(&models.Product{StoreEID: "1", Name: "Pizza Calabresa Grande", Price: 69.9})
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("quanto pizza calabresa"))

	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0].body, "Pizza Calabresa")
	assert.Contains(t, sender.texts[0].body, "R$ 49,90")
	assert.Contains(t, sender.texts[0].body, loja.CatalogLink())
}

func TestPipeline_ProductScopedToStore(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	mem.AddProduct(&models.Product{StoreEID: "2", Name: "Pizza Calabresa", Price: 49.9})
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("tem pizza calabresa"))

	// Another store's catalog must not answer; the miss falls through
	// to the welcome stage.
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0].body, "bem-vindo")
}

func TestPipeline_ProductNoMatchFallsThrough(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("tem sushi"))

	require.Len(t, sender.texts, 1, "a product miss must not stop the pipeline")
	assert.Contains(t, sender.texts[0].body, "Maria")
}

func TestPipeline_ProductShortResidualSkipsLookup(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	mem.AddProduct(&models.Product{StoreEID: "1", Name: "Açaí", Price: 15})
	sender := &fakeSender{}

	// Keywords strip to a residual of <= 2 chars: no lookup, welcome runs.
	bot.HandleMessage(context.Background(), loja, sender, inbound("tem aç"))

	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0].body, "bem-vindo")
}

func TestPipeline_ProductPhotoAttached(t *testing.T) {
	photo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-jpeg-bytes"))
	}))
	defer photo.Close()

	bot, mem, loja := newTestBot(t)
	mem.AddProduct(&models.Product{StoreEID: "1", Name: "Pizza Quatro Queijos", Price: 55, PhotoURL: photo.URL})
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("quanto quatro queijos"))

	require.Len(t, sender.images, 1)
	assert.Empty(t, sender.texts)
	assert.Contains(t, sender.images[0].caption, "Pizza Quatro Queijos")
	assert.Equal(t, len("fake-jpeg-bytes"), sender.images[0].bytes)
}

func TestPipeline_ProductPhotoFailureFallsBackToText(t *testing.T) {
	photo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer photo.Close()

	bot, mem, loja := newTestBot(t)
	mem.AddProduct(&models.Product{StoreEID: "1", Name: "Pizza Quatro Queijos", Price: 55, PhotoURL: photo.URL})
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("quanto quatro queijos"))

	assert.Empty(t, sender.images)
	require.Len(t, sender.texts, 1, "photo failure must downgrade to a text reply")
	assert.Contains(t, sender.texts[0].body, "Pizza Quatro Queijos")
}

func TestPipeline_RecoveryNudgeDoesNotStopPipeline(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender,
		inbound("esqueci meu carrinho em "+loja.CatalogLink()))

	// Stage 7 does not stop: both the nudge and the daily welcome go out.
	require.Len(t, sender.texts, 2)
	assert.Contains(t, sender.texts[0].body, "olhadinha")
	assert.Contains(t, sender.texts[1].body, "bem-vindo")
}

func TestPipeline_RecoveryNudgeOncePer48h(t *testing.T) {
	bot, _, loja := newTestBot(t)
	sender := &fakeSender{}

	link := loja.CatalogLink()
	bot.HandleMessage(context.Background(), loja, sender, inbound(link))
	unThrottle(bot)
	bot.HandleMessage(context.Background(), loja, sender, inbound(link))

	assert.Len(t, sender.texts, 1, "second nudge inside 48h must be suppressed")
}

func TestPipeline_WelcomeOncePerCalendarDay(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("oi"))
	unThrottle(bot)
	bot.HandleMessage(context.Background(), loja, sender, inbound("boa noite"))

	assert.Len(t, sender.texts, 1, "one welcome per day")
	require.Len(t, mem.MessageLogs(), 1, "one durable row per day")

	// Next calendar day: eligible again.
	bot.now = func() time.Time { return time.Now().AddDate(0, 0, 1) }
	unThrottle(bot)
	bot.HandleMessage(context.Background(), loja, sender, inbound("oi de novo"))

	assert.Len(t, sender.texts, 2)
	assert.Len(t, mem.MessageLogs(), 2)
}

func TestPipeline_WelcomeRendersBindings(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("oi"))

	require.Len(t, sender.texts, 1)
	body := sender.texts[0].body
	assert.Contains(t, body, "Maria")
	assert.Contains(t, body, "Pizzaria do Olívio")
	assert.Contains(t, body, loja.CatalogLink())
}

func TestPipeline_WelcomeSkippedWhenTemplateInactive(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	mem.SetWelcomeTemplate(&models.WelcomeTemplate{StoreEID: "1", Pattern: "Oi!", Active: false})
	sender := &fakeSender{}

	bot.HandleMessage(context.Background(), loja, sender, inbound("oi"))

	assert.Empty(t, sender.texts)
}

func TestPipeline_WelcomeSendFailureLeavesGuardUnset(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	sender := &fakeSender{textErr: errors.New("transport down")}

	bot.HandleMessage(context.Background(), loja, sender, inbound("oi"))

	// Send-then-log: a failed send must not mark the guard satisfied,
	// so a later retry can still deliver the welcome.
	assert.Empty(t, mem.MessageLogs())

	sender.textErr = nil
	unThrottle(bot)
	bot.HandleMessage(context.Background(), loja, sender, inbound("oi"))
	assert.Len(t, sender.texts, 1)
	assert.Len(t, mem.MessageLogs(), 1)
}

func TestPipeline_UnknownCustomerGetsNeutralName(t *testing.T) {
	bot, mem, loja := newTestBot(t)
	activateWelcome(mem)
	sender := &fakeSender{}

	msg := transport.Message{From: "5511000000000@c.us", Body: "oi", ReceivedAt: time.Now()}
	bot.HandleMessage(context.Background(), loja, sender, msg)

	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0].body, "Olá cliente")
}
