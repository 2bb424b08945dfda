// Package bot serves the Telegram chat surface: /start and the inline-keyboard callbacks.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fastprodman/stargiver/internal/infra/ratelimit"
	"github.com/fastprodman/stargiver/internal/metrics"
	"github.com/fastprodman/stargiver/internal/services/admin"
	"github.com/fastprodman/stargiver/internal/services/game"
	"github.com/fastprodman/stargiver/internal/services/ledger"
	"github.com/fastprodman/stargiver/internal/services/payments"
)

// Sender is the part of *tgbotapi.BotAPI the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Ledger interface {
	RegisterUser(ctx context.Context, userID int64, username string, referrerID *int64) (ledger.User, ledger.Registration, error)
	Profile(ctx context.Context, userID int64) (ledger.Profile, error)
	ClaimDailyBonus(ctx context.Context, userID int64) (ledger.DailyClaim, error)
}

type Games interface {
	Tiers() []int64
	Grid() game.Grid
	Session(userID int64) (game.Session, bool)
	StartSession(ctx context.Context, userID int64, tier int64) (game.Session, error)
	PickCell(ctx context.Context, userID int64, row, col int) (game.PickResult, error)
	ExitSession(userID int64)
}

type Payments interface {
	Packages() []payments.Package
	RequestPurchase(ctx context.Context, userID int64, packageID string) (payments.Invoice, error)
	PollAndSettle(ctx context.Context, invoiceID string) (payments.SettlementResult, error)
}

type Admin interface {
	IsAdmin(userID int64) bool
	Stats(ctx context.Context) (admin.Stats, error)
}

type Guard interface {
	Require(ctx context.Context, userID int64) error
}

type Services struct {
	Ledger   Ledger
	Games    Games
	Payments Payments
	Admin    Admin
	Guard    Guard
}

type Config struct {
	// Channel is the channel users must join, e.g. "@MyBoog".
	Channel     string
	BotUsername string
}

// request is one incoming update reduced to what handlers need.
type request struct {
	userID   int64
	username string
	chatID   int64
	queryID  string
	answered bool
}

type handlerFunc func(ctx context.Context, req *request, arg string) error

type route struct {
	gated   bool
	handler handlerFunc
}

type Bot struct {
	api     Sender
	svc     Services
	cfg     Config
	checks  *ratelimit.Limiter
	metrics *metrics.Metrics

	exact    map[string]route
	prefixes []prefixRoute
}

type prefixRoute struct {
	prefix string
	route
}

type Option func(*Bot)

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

// WithCheckLimiter throttles "check payment" taps per user.
func WithCheckLimiter(l *ratelimit.Limiter) Option {
	return func(b *Bot) { b.checks = l }
}

func New(api Sender, svc Services, cfg Config, opts ...Option) *Bot {
	b := &Bot{
		api:    api,
		svc:    svc,
		cfg:    cfg,
		checks: ratelimit.PerMinute(0),
		exact:  map[string]route{},
	}

	for _, opt := range opts {
		opt(b)
	}

	b.routes()

	return b
}

func (b *Bot) routes() {
	b.onCallback("main_menu", false, b.mainMenu)
	b.onCallback("help", false, b.help)
	b.onCallback("check_subscription", false, b.checkSubscription)
	b.onCallback("cancel_payment", false, b.cancelPayment)
	b.onCallback("admin_panel", false, b.adminPanel)

	b.onCallback("choose_gift", true, b.chooseGift)
	b.onCallback("my_attempts", true, b.myAttempts)
	b.onCallback("get_daily", true, b.getDaily)
	b.onCallback("invite_friend", true, b.inviteFriend)
	b.onCallback("buy_attempts", true, b.buyAttempts)

	b.onPrefix("gift_", true, b.selectGift)
	b.onPrefix("sticker_", true, b.pickSticker)
	b.onPrefix("used_", false, b.usedSticker)
	b.onPrefix("buy_", true, b.buyPackage)
	b.onPrefix("check_pay_", true, b.checkPayment)
}

func (b *Bot) onCallback(data string, gated bool, h handlerFunc) {
	b.exact[data] = route{gated: gated, handler: h}
}

func (b *Bot) onPrefix(prefix string, gated bool, h handlerFunc) {
	b.prefixes = append(b.prefixes, prefixRoute{prefix: prefix, route: route{gated: gated, handler: h}})
}

func (b *Bot) lookup(data string) (route, string, bool) {
	if r, ok := b.exact[data]; ok {
		return r, "", true
	}

	for _, p := range b.prefixes {
		if arg, ok := strings.CutPrefix(data, p.prefix); ok {
			return p.route, arg, true
		}
	}

	return route{}, "", false
}

// Run handles updates until ctx is done or the channel is closed, then waits for
// handlers still in flight.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}

			wg.Add(1)

			go func() {
				defer wg.Done()

				b.HandleUpdate(ctx, u)
			}()
		}
	}
}

// HandleUpdate serves one update. It never panics.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	kind := "other"

	switch {
	case u.CallbackQuery != nil:
		kind = "callback"
	case u.Message != nil:
		kind = "message"
	}

	result := "ok"

	defer func() {
		r := recover()
		if r != nil {
			result = "panic"

			slog.ErrorContext(ctx, "panic in update handler",
				"update_id", u.UpdateID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}

		b.metrics.BotUpdate(kind, result)
	}()

	var err error

	switch kind {
	case "callback":
		err = b.handleCallback(ctx, u.CallbackQuery)
	case "message":
		err = b.handleMessage(ctx, u.Message)
	default:
		result = "ignored"

		return
	}

	if err != nil {
		result = "error"
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil || m.Chat == nil {
		return nil
	}

	req := &request{userID: m.From.ID, username: m.From.UserName, chatID: m.Chat.ID}

	var err error

	switch {
	case m.IsCommand() && m.Command() == "start":
		err = b.start(ctx, req, m.CommandArguments())
	case m.IsCommand() && m.Command() == "help":
		err = b.help(ctx, req, "")
	default:
		err = b.send(req, "Use the menu below.", b.mainKeyboard(req.userID))
	}

	return b.finish(ctx, req, "message", err)
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.From == nil {
		return nil
	}

	req := &request{userID: q.From.ID, username: q.From.UserName, chatID: q.From.ID, queryID: q.ID}
	if q.Message != nil && q.Message.Chat != nil {
		req.chatID = q.Message.Chat.ID
	}

	r, arg, ok := b.lookup(q.Data)
	if !ok {
		return b.finish(ctx, req, q.Data, b.toast(req, "Unknown action"))
	}

	var err error

	if r.gated {
		err = b.svc.Guard.Require(ctx, req.userID)
	}

	if err == nil {
		err = r.handler(ctx, req, arg)
	}

	return b.finish(ctx, req, q.Data, err)
}

// finish reports a failed handler to the user and acknowledges the callback.
func (b *Bot) finish(ctx context.Context, req *request, action string, err error) error {
	if err != nil {
		err = b.explain(ctx, req, action, err)
	}

	if req.queryID != "" && !req.answered {
		_, ackErr := b.api.Request(tgbotapi.NewCallback(req.queryID, ""))
		if ackErr != nil {
			slog.WarnContext(ctx, "callback not answered", "user_id", req.userID, "error", ackErr)
		}
	}

	return err
}
