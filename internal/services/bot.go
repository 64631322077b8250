package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rapidex-app/whatsapp-gateway/internal/guard"
	"github.com/rapidex-app/whatsapp-gateway/internal/models"
	"github.com/rapidex-app/whatsapp-gateway/internal/storage"
	"github.com/rapidex-app/whatsapp-gateway/internal/transport"
)

// Guard windows: repeat inbound actions inside ThrottleWindow are
// dropped, cart-recovery nudges repeat at most once per RecoveryWindow.
const (
	ThrottleWindow = 15 * time.Second
	RecoveryWindow = 48 * time.Hour
)

// Keyword sets for the heuristic intent rules. Matching is substring
// on the normalized (trimmed, lowercased) body, except the FAQ which
// is exact-match.
var (
	handoffKeywords = []string{"atendente", "humano", "suporte", "ajuda", "falar com"}

	// "tem " keeps its trailing space on purpose: the same set is both
	// matched and stripped to produce the residual search term, and the
	// stripping behavior is preserved from the source heuristic even
	// when it yields an awkward residual.
	priceKeywords = []string{"quanto", "preço", "tem "}

	faqHours   = "🕐 Nosso horário de atendimento é de segunda a sábado, das 18h às 23h."
	faqPayment = "💳 Aceitamos Pix, cartão de crédito, cartão de débito e dinheiro."
)

// Sender is the outbound half the pipeline needs from a session.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to string, image []byte, caption string) error
}

// BotService is the inbound message pipeline: an ordered intent router
// where the first matching stage answers and stops. Stage order is the
// contract — throttle before everything that replies, product before
// FAQ, recovery and welcome last.
type BotService struct {
	store    storage.Store
	throttle *guard.Window
	recovery *guard.Window
	renderer *TemplateRenderer
	products *ProductLookup

	now func() time.Time
}

// NewBotService creates the pipeline with its guards. The guards are
// owned here and passed to the cleanup job by the caller.
func NewBotService(store storage.Store, throttle, recovery *guard.Window, products *ProductLookup) *BotService {
	return &BotService{
		store:    store,
		throttle: throttle,
		recovery: recovery,
		renderer: NewTemplateRenderer(),
		products: products,
		now:      time.Now,
	}
}

// Throttle exposes the throttle guard (for the cleanup job).
func (b *BotService) Throttle() *guard.Window { return b.throttle }

// Recovery exposes the recovery guard (for the cleanup job).
func (b *BotService) Recovery() *guard.Window { return b.recovery }

// HandleMessage runs one inbound message through the pipeline. It
// never lets a failure escape: a panic or error while handling one
// message is logged and swallowed so the session stays alive and later
// messages keep flowing.
func (b *BotService) HandleMessage(ctx context.Context, store *models.Store, sender Sender, msg transport.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Pânico ao processar mensagem de %s (loja %s): %v", msg.From, store.EID, r)
		}
	}()

	if err := b.process(ctx, store, sender, msg); err != nil {
		log.Printf("❌ Erro ao processar mensagem de %s (loja %s): %v", msg.From, store.EID, err)
	}
}

func (b *BotService) process(ctx context.Context, store *models.Store, sender Sender, msg transport.Message) error {
	// 1. Own messages and group chatter are never automated.
	if msg.FromMe || msg.IsGroup {
		return nil
	}

	// 2. Throttle before any other work. Allow is an atomic
	// check-and-set, so a burst from one sender passes exactly once.
	key := store.EID + ":" + msg.From
	if !b.throttle.Allow(key) {
		return nil
	}

	// 3. Normalize once; every rule below sees the same text.
	body := strings.ToLower(strings.TrimSpace(msg.Body))

	// 4. Human handoff.
	if containsAny(body, handoffKeywords) {
		return b.sendHandoff(ctx, store, sender, msg.From)
	}

	// 5. Product inquiry. Only a found product stops the pipeline; a
	// miss falls through to the FAQ and later stages.
	if containsAny(body, priceKeywords) {
		handled, err := b.answerProductInquiry(ctx, store, sender, msg.From, body)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}

	// 6. Canned FAQ, exact match only ("menu please" is not "menu").
	if reply, ok := b.faqReply(store, body); ok {
		return sender.SendText(ctx, msg.From, reply)
	}

	// 7. Abandoned-cart recovery. Does not stop the pipeline.
	if strings.Contains(body, strings.ToLower(store.CatalogLink())) {
		if err := b.sendRecoveryNudge(ctx, store, sender, msg.From); err != nil {
			return err
		}
	}

	// 8. Once-a-day welcome.
	return b.sendDailyWelcome(ctx, store, sender, msg.From)
}

func (b *BotService) sendHandoff(ctx context.Context, store *models.Store, sender Sender, to string) error {
	customer, err := b.store.GetCustomerByPhone(phoneOf(to))
	if err != nil {
		return fmt.Errorf("lookup customer: %w", err)
	}

	reply := fmt.Sprintf("Certo, %s! 👩‍💼 Já chamei um atendente da %s, em instantes alguém fala com você.",
		customer.DisplayName(), store.Name)
	if err := sender.SendText(ctx, to, reply); err != nil {
		return fmt.Errorf("send handoff: %w", err)
	}

	b.appendLog(store.EID, to, reply, models.MessageStatusHandoff)
	return nil
}

// answerProductInquiry strips the inquiry keywords off the body and
// searches the residual term. Reports whether a product reply was sent.
func (b *BotService) answerProductInquiry(ctx context.Context, store *models.Store, sender Sender, to, body string) (bool, error) {
	term := body
	for _, kw := range priceKeywords {
		term = strings.ReplaceAll(term, kw, "")
	}
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) <= 2 {
		return false, nil
	}

	product, err := b.products.Find(store.EID, term)
	if err != nil {
		return false, fmt.Errorf("search product %q: %w", term, err)
	}
	if product == nil {
		return false, nil
	}

	reply := fmt.Sprintf("*%s*\n💰 %s\n\n🛒 Peça pelo nosso cardápio: %s",
		product.Name, product.FormattedPrice(), store.CatalogLink())

	if product.PhotoURL != "" {
		photo, err := b.products.FetchPhoto(ctx, product.PhotoURL)
		if err == nil {
			if err := sender.SendImage(ctx, to, photo, reply); err != nil {
				return true, fmt.Errorf("send product photo: %w", err)
			}
			return true, nil
		}
		// Photo failures downgrade to text, never fail the inquiry.
		log.Printf("⚠️  Foto do produto %s indisponível, enviando só texto: %v", product.Name, err)
	}

	if err := sender.SendText(ctx, to, reply); err != nil {
		return true, fmt.Errorf("send product reply: %w", err)
	}
	return true, nil
}

func (b *BotService) faqReply(store *models.Store, body string) (string, bool) {
	switch body {
	case "menu", "cardapio":
		return "🍽️ Dá uma olhada no nosso cardápio completo: " + store.CatalogLink(), true
	case "horário":
		return faqHours, true
	case "pagamento":
		return faqPayment, true
	}
	return "", false
}

func (b *BotService) sendRecoveryNudge(ctx context.Context, store *models.Store, sender Sender, to string) error {
	if !b.recovery.Allow(store.EID + ":" + to) {
		return nil
	}

	nudge := fmt.Sprintf("Vi que você deu uma olhadinha no nosso cardápio! 😋 Ficou alguma dúvida? É só chamar: %s",
		store.CatalogLink())
	if err := sender.SendText(ctx, to, nudge); err != nil {
		return fmt.Errorf("send recovery nudge: %w", err)
	}

	b.appendLog(store.EID, to, nudge, models.MessageStatusRecovery)
	return nil
}

func (b *BotService) sendDailyWelcome(ctx context.Context, store *models.Store, sender Sender, to string) error {
	tpl, err := b.store.GetWelcomeTemplate(store.EID)
	if err != nil {
		return fmt.Errorf("load welcome template: %w", err)
	}
	if tpl == nil || !tpl.Active {
		return nil
	}

	sent, err := b.store.HasMessageLogOn(store.EID, to, models.MessageStatusWelcome, b.now())
	if err != nil {
		return fmt.Errorf("check welcome log: %w", err)
	}
	if sent {
		return nil
	}

	customer, err := b.store.GetCustomerByPhone(phoneOf(to))
	if err != nil {
		return fmt.Errorf("lookup customer: %w", err)
	}

	rendered := b.renderer.Render(tpl.Pattern, map[string]string{
		"cliente_nome":  customer.DisplayName(),
		"nome_loja":     store.Name,
		"link_catalogo": store.CatalogLink(),
	})

	// Send first, record second. A failed log write means "sent once,
	// logged incompletely" — the reverse order could mark the guard
	// satisfied with no message ever delivered.
	if err := sender.SendText(ctx, to, rendered); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	if err := b.store.CreateMessageLog(&models.MessageLog{
		StoreEID: store.EID,
		Phone:    to,
		Body:     rendered,
		Status:   models.MessageStatusWelcome,
	}); err != nil {
		log.Printf("⚠️  Boas-vindas enviadas mas não registradas para %s (loja %s): %v", to, store.EID, err)
	}
	return nil
}

// appendLog records an automated send in the durable log, best effort.
func (b *BotService) appendLog(storeEID, phone, body, status string) {
	err := b.store.CreateMessageLog(&models.MessageLog{
		StoreEID: storeEID,
		Phone:    phone,
		Body:     body,
		Status:   status,
	})
	if err != nil {
		log.Printf("⚠️  Falha ao registrar mensagem %s para %s (loja %s): %v", status, phone, storeEID, err)
	}
}

func containsAny(body string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

// phoneOf strips the chat-network suffix from a sender address so it
// matches the phone column of the customer base.
func phoneOf(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}
