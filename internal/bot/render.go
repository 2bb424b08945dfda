package bot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fastprodman/stargiver/internal/services/game"
)

const tiersPerRow = 3

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func backRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(button("◀️ Back", "main_menu"))
}

func (b *Bot) mainKeyboard(userID int64) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(button("🎁 Choose a gift", "choose_gift")),
		tgbotapi.NewInlineKeyboardRow(button("📊 My attempts", "my_attempts"), button("👥 Invite a friend", "invite_friend")),
		tgbotapi.NewInlineKeyboardRow(button("💰 Buy attempts", "buy_attempts"), button("ℹ️ Help", "help")),
	}

	if b.svc.Admin.IsAdmin(userID) {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🛠 Admin panel", "admin_panel")))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) tiersKeyboard() tgbotapi.InlineKeyboardMarkup {
	var (
		rows [][]tgbotapi.InlineKeyboardButton
		row  []tgbotapi.InlineKeyboardButton
	)

	for _, tier := range b.svc.Games.Tiers() {
		row = append(row, button(fmt.Sprintf("%d ⭐", tier), "gift_"+strconv.FormatInt(tier, 10)))
		if len(row) == tiersPerRow {
			rows = append(rows, row)
			row = nil
		}
	}

	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, backRow())

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// fieldKeyboard draws the grid; opened cells carry a "used_" callback.
func (b *Bot) fieldKeyboard(s game.Session) tgbotapi.InlineKeyboardMarkup {
	g := b.svc.Games.Grid()
	opened := make(map[game.Cell]bool, len(s.Picked))

	for _, c := range s.Picked {
		opened[c] = true
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, g.Rows+1)

	for r := range g.Rows {
		row := make([]tgbotapi.InlineKeyboardButton, 0, g.Cols)

		for c := range g.Cols {
			suffix := fmt.Sprintf("%d_%d", r, c)
			if opened[game.Cell{Row: r, Col: c}] {
				row = append(row, button("❌", "used_"+suffix))
			} else {
				row = append(row, button("🎁", "sticker_"+suffix))
			}
		}

		rows = append(rows, row)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button("🚪 Leave the game", "main_menu")))

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func outOfAttemptsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("👥 Invite a friend (+1 attempt)", "invite_friend")),
		tgbotapi.NewInlineKeyboardRow(button("💰 Buy attempts", "buy_attempts")),
		tgbotapi.NewInlineKeyboardRow(button("🏠 Main menu", "main_menu")),
	)
}

func (b *Bot) packagesKeyboard() tgbotapi.InlineKeyboardMarkup {
	pkgs := b.svc.Payments.Packages()
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(pkgs)+1)

	for _, p := range pkgs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(fmt.Sprintf("%d attempts - %s$", p.Attempts, p.Price.String()), "buy_"+p.ID)))
	}

	rows = append(rows, backRow())

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) subscribeKeyboard() tgbotapi.InlineKeyboardMarkup {
	channel := strings.TrimPrefix(b.cfg.Channel, "@")

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📢 Join the channel", "https://t.me/"+channel)),
		tgbotapi.NewInlineKeyboardRow(button("✅ I joined", "check_subscription")),
	)
}

func (b *Bot) referralLink(userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%d", b.cfg.BotUsername, userID)
}

func shareURL(link string) string {
	return "https://t.me/share/url?url=" + url.QueryEscape(link) +
		"&text=" + url.QueryEscape("Win Telegram stars with this bot! 🎁")
}

// parseCell reads "<row>_<col>".
func parseCell(arg string) (int, int, error) {
	rs, cs, ok := strings.Cut(arg, "_")
	if !ok {
		return 0, 0, fmt.Errorf("cell %q: want <row>_<col>", arg)
	}

	row, err := strconv.Atoi(rs)
	if err != nil {
		return 0, 0, fmt.Errorf("cell %q: %w", arg, err)
	}

	col, err := strconv.Atoi(cs)
	if err != nil {
		return 0, 0, fmt.Errorf("cell %q: %w", arg, err)
	}

	return row, col, nil
}

// parseReferrer accepts "ref_<id>" and a bare id; anything else means no referrer.
func parseReferrer(arg string) *int64 {
	arg = strings.TrimSpace(arg)
	arg = strings.TrimPrefix(arg, "ref_")

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}

	return &id
}
