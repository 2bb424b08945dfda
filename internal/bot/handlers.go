package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fastprodman/stargiver/internal/gate"
	"github.com/fastprodman/stargiver/internal/services/game"
	"github.com/fastprodman/stargiver/internal/services/ledger"
	"github.com/fastprodman/stargiver/internal/services/payments"
)

const timeLayout = "02.01 15:04 UTC"

func (b *Bot) send(req *request, text string, kb ...tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(req.chatID, text)
	if len(kb) > 0 {
		msg.ReplyMarkup = kb[0]
	}

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("send message to %d: %w", req.chatID, err)
	}

	return nil
}

// alert shows a modal answer to a callback, or a plain message for commands.
func (b *Bot) alert(req *request, text string) error {
	if req.queryID == "" {
		return b.send(req, text)
	}

	req.answered = true

	_, err := b.api.Request(tgbotapi.NewCallbackWithAlert(req.queryID, text))
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}

	return nil
}

func (b *Bot) toast(req *request, text string) error {
	if req.queryID == "" {
		return b.send(req, text)
	}

	req.answered = true

	_, err := b.api.Request(tgbotapi.NewCallback(req.queryID, text))
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}

	return nil
}

// explain turns a handler error into a reply. Expected domain outcomes are
// swallowed; anything else is logged and returned.
func (b *Bot) explain(ctx context.Context, req *request, action string, err error) error {
	var replyErr error

	switch {
	case errors.Is(err, gate.ErrNotSubscribed):
		if req.queryID != "" {
			replyErr = b.alert(req, "❌ Join the channel first!")
		}

		if replyErr == nil {
			replyErr = b.subscribePrompt(req)
		}
	case errors.Is(err, ledger.ErrUserNotFound):
		replyErr = b.send(req, "Send /start to begin.")
	case errors.Is(err, game.ErrNoAttempts):
		replyErr = b.send(req, "😔 You are out of attempts.\n\nInvite a friend or buy more to keep playing.", outOfAttemptsKeyboard())
	case errors.Is(err, game.ErrNoActiveSession):
		replyErr = b.alert(req, "Choose a gift first.")
	case errors.Is(err, game.ErrInvalidMove):
		replyErr = b.alert(req, "This sticker can't be opened.")
	case errors.Is(err, game.ErrUnknownTier), errors.Is(err, payments.ErrUnknownPackage):
		replyErr = b.alert(req, "This option is no longer available.")
	case errors.Is(err, payments.ErrUnknownInvoice):
		replyErr = b.alert(req, "Payment not found.")
	case errors.Is(err, payments.ErrPaymentProvider):
		slog.WarnContext(ctx, "payment provider failure", "user_id", req.userID, "action", action, "error", err)

		replyErr = b.alert(req, "The payment service is unavailable, please try again later.")
		if replyErr == nil {
			return err
		}
	default:
		slog.ErrorContext(ctx, "update handler failed", "user_id", req.userID, "action", action, "error", err)

		replyErr = b.send(req, "Something went wrong, please try again.")
		if replyErr == nil {
			return err
		}
	}

	if replyErr != nil {
		slog.WarnContext(ctx, "reply failed", "user_id", req.userID, "action", action, "error", replyErr)

		return errors.Join(err, replyErr)
	}

	return nil
}

func (b *Bot) subscribePrompt(req *request) error {
	text := "📢 To use the bot, join our channel first!\n\n" +
		"Channel: " + b.cfg.Channel + "\n\n" +
		"1. Tap the button below\n" +
		"2. Join the channel\n" +
		"3. Come back and tap \"I joined\""

	return b.send(req, text, b.subscribeKeyboard())
}

func (b *Bot) start(ctx context.Context, req *request, args string) error {
	_, reg, err := b.svc.Ledger.RegisterUser(ctx, req.userID, req.username, parseReferrer(args))
	if err != nil {
		return err
	}

	if reg.Created {
		slog.InfoContext(ctx, "user registered", "user_id", req.userID, "referral", reg.ReferralApplied)
	}

	err = b.svc.Guard.Require(ctx, req.userID)
	if errors.Is(err, gate.ErrNotSubscribed) {
		return b.subscribePrompt(req)
	}

	if err != nil {
		return err
	}

	return b.mainMenu(ctx, req, "")
}

func (b *Bot) mainMenu(ctx context.Context, req *request, _ string) error {
	b.svc.Games.ExitSession(req.userID)

	p, err := b.svc.Ledger.Profile(ctx, req.userID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🌟 StarGiver\n\nAttempts: %d\nStars: %d\n\nChoose a gift and find it under one of the stickers!",
		p.User.Attempts, p.User.StarBalance)

	return b.send(req, text, b.mainKeyboard(req.userID))
}

func (b *Bot) help(_ context.Context, req *request, _ string) error {
	text := "ℹ️ How it works\n\n" +
		"🎁 Choose a gift, then open stickers to find it. Every opened sticker costs one attempt.\n" +
		"🗓 Claim a free daily bonus in \"My attempts\".\n" +
		"👥 Invite friends: you both get an extra attempt.\n" +
		"💰 Buy attempt packages with crypto."

	return b.send(req, text, tgbotapi.NewInlineKeyboardMarkup(backRow()))
}

func (b *Bot) checkSubscription(ctx context.Context, req *request, _ string) error {
	err := b.svc.Guard.Require(ctx, req.userID)
	if errors.Is(err, gate.ErrNotSubscribed) {
		return b.alert(req, "❌ You have not joined the channel yet!")
	}

	if err != nil {
		return err
	}

	err = b.toast(req, "✅ Thanks for joining!")
	if err != nil {
		return err
	}

	return b.mainMenu(ctx, req, "")
}

func (b *Bot) cancelPayment(_ context.Context, req *request, _ string) error {
	return b.send(req, "Payment canceled.", b.mainKeyboard(req.userID))
}

func (b *Bot) adminPanel(ctx context.Context, req *request, _ string) error {
	if !b.svc.Admin.IsAdmin(req.userID) {
		return b.alert(req, "Admins only.")
	}

	st, err := b.svc.Admin.Stats(ctx)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🛠 Admin panel\n\nUsers: %d\nGames played: %d\nPaid total: %s USDT",
		st.Users, st.Games, st.PaidTotal.StringFixed(2))

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("🔄 Refresh", "admin_panel")),
		tgbotapi.NewInlineKeyboardRow(button("🏠 Main menu", "main_menu")),
	)

	return b.send(req, text, kb)
}

func (b *Bot) chooseGift(_ context.Context, req *request, _ string) error {
	return b.send(req, "🎁 Choose the gift you want to win:", b.tiersKeyboard())
}

func (b *Bot) selectGift(ctx context.Context, req *request, arg string) error {
	tier, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("tier %q: %w", arg, game.ErrUnknownTier)
	}

	s, err := b.svc.Games.StartSession(ctx, req.userID, tier)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("🎯 Find the %d ⭐ gift!\n\nPicks left in this round: %d", s.Tier, s.AttemptsLeft)

	return b.send(req, text, b.fieldKeyboard(s))
}

func (b *Bot) pickSticker(ctx context.Context, req *request, arg string) error {
	row, col, err := parseCell(arg)
	if err != nil {
		return fmt.Errorf("%w: %w", game.ErrInvalidMove, err)
	}

	res, err := b.svc.Games.PickCell(ctx, req.userID, row, col)
	if err != nil {
		return err
	}

	switch res.Session.State {
	case game.StateWon:
		text := fmt.Sprintf("🎉 You found the %d ⭐ gift!\n\nStars: %d\nAttempts: %d", res.Session.Tier, res.Stars, res.Balance)

		return b.send(req, text, b.mainKeyboard(req.userID))
	case game.StateExhausted:
		text := fmt.Sprintf("😔 No gift this time.\n\nAttempts: %d", res.Balance)
		if res.Balance <= 0 {
			return b.send(req, text, outOfAttemptsKeyboard())
		}

		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(button("🔁 Play again", "choose_gift")),
			tgbotapi.NewInlineKeyboardRow(button("🏠 Main menu", "main_menu")),
		)

		return b.send(req, text, kb)
	case game.StateSelecting:
	}

	text := fmt.Sprintf("Empty! Picks left in this round: %d\nAttempts: %d", res.Session.AttemptsLeft, res.Balance)

	return b.send(req, text, b.fieldKeyboard(res.Session))
}

func (b *Bot) usedSticker(_ context.Context, req *request, _ string) error {
	return b.toast(req, "This sticker is already opened.")
}

func (b *Bot) myAttempts(ctx context.Context, req *request, _ string) error {
	p, err := b.svc.Ledger.Profile(ctx, req.userID)
	if err != nil {
		return err
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "📊 Your stats\n\nAttempts: %d\nStars: %d\nGames played: %d\nFriends invited: %d\n\n",
		p.User.Attempts, p.User.StarBalance, p.GamesPlayed, p.Referrals)

	rows := [][]tgbotapi.InlineKeyboardButton{}

	if p.DailyAvailable {
		sb.WriteString("🎁 Your daily bonus is ready!")

		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🎁 Claim daily bonus", "get_daily")))
	} else {
		sb.WriteString("Next daily bonus: " + p.NextDailyAt.UTC().Format(timeLayout))
	}

	rows = append(rows, backRow())

	return b.send(req, sb.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) getDaily(ctx context.Context, req *request, _ string) error {
	claim, err := b.svc.Ledger.ClaimDailyBonus(ctx, req.userID)
	if err != nil {
		return err
	}

	if !claim.Granted {
		return b.alert(req, "❌ Bonus already claimed. Next one: "+claim.NextAt.UTC().Format(timeLayout))
	}

	return b.send(req, fmt.Sprintf("🎁 Daily bonus received!\n\nAttempts: %d", claim.Balance), b.mainKeyboard(req.userID))
}

func (b *Bot) inviteFriend(ctx context.Context, req *request, _ string) error {
	p, err := b.svc.Ledger.Profile(ctx, req.userID)
	if err != nil {
		return err
	}

	link := b.referralLink(req.userID)

	text := fmt.Sprintf("👥 Invite a friend and get an extra attempt!\n\n🔗 Your link:\n%s\n\n"+
		"1. Send the link to a friend\n2. Your friend starts the bot and joins the channel\n"+
		"3. You both get +1 attempt\n\nFriends invited: %d", link, p.Referrals)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📤 Share the link", shareURL(link))),
		backRow(),
	)

	return b.send(req, text, kb)
}

func (b *Bot) buyAttempts(_ context.Context, req *request, _ string) error {
	return b.send(req, "💰 Choose a package:", b.packagesKeyboard())
}

func (b *Bot) buyPackage(ctx context.Context, req *request, arg string) error {
	inv, err := b.svc.Payments.RequestPurchase(ctx, req.userID, arg)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("💳 Invoice for %d attempts: %s USDT\n\nPay before %s, then tap \"Check payment\".",
		inv.Package.Attempts, inv.Package.Price.StringFixed(2), inv.ExpiresAt.UTC().Format(timeLayout))

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Pay", inv.PayURL)),
		tgbotapi.NewInlineKeyboardRow(button("🔄 Check payment", "check_pay_"+inv.InvoiceID)),
		tgbotapi.NewInlineKeyboardRow(button("❌ Cancel", "cancel_payment")),
	)

	return b.send(req, text, kb)
}

func (b *Bot) checkPayment(ctx context.Context, req *request, invoiceID string) error {
	if !b.checks.Allow(req.userID) {
		return b.alert(req, "Too many checks, please wait a minute.")
	}

	res, err := b.svc.Payments.PollAndSettle(ctx, invoiceID)
	if err != nil {
		return err
	}

	switch res.Status {
	case payments.StatusSettled:
		text := fmt.Sprintf("✅ Payment received!\n\n+%d attempts\nAttempts: %d", res.Payment.Attempts, res.Balance)

		return b.send(req, text, b.mainKeyboard(req.userID))
	case payments.StatusAlreadySettled:
		return b.alert(req, "✅ This payment is already credited.")
	case payments.StatusExpired:
		return b.send(req, "⌛ The invoice has expired.", b.packagesKeyboard())
	case payments.StatusStillPending:
	}

	return b.alert(req, "⏳ Payment not received yet.")
}
