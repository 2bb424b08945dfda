// Package gate enforces the required channel subscription before rewarding actions.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fastprodman/stargiver/internal/services/ledger"
)

var ErrNotSubscribed = errors.New("channel subscription required")

// ChatMemberGetter is the part of *tgbotapi.BotAPI the checker needs.
type ChatMemberGetter interface {
	GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Checker asks Telegram whether a user is in the channel.
type Checker struct {
	api     ChatMemberGetter
	channel string
}

// NewChecker returns a checker for channel, either "@username" or a numeric chat id.
// An empty channel lets everyone through.
func NewChecker(api ChatMemberGetter, channel string) *Checker {
	return &Checker{api: api, channel: channel}
}

func (c *Checker) Channel() string {
	return c.channel
}

func (c *Checker) chat(userID int64) tgbotapi.ChatConfigWithUser {
	cfg := tgbotapi.ChatConfigWithUser{UserID: userID}

	id, err := strconv.ParseInt(c.channel, 10, 64)
	if err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = c.channel
	}

	return cfg
}

// IsSubscribed reports membership as member, administrator or creator. Lookup
// failures count as not subscribed.
func (c *Checker) IsSubscribed(ctx context.Context, userID int64) bool {
	if c.channel == "" {
		return true
	}

	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: c.chat(userID)})
	if err != nil {
		slog.WarnContext(ctx, "subscription check failed", "user_id", userID, "channel", c.channel, "error", err)

		return false
	}

	switch member.Status {
	case "member", "administrator", "creator":
		return true
	default:
		return false
	}
}

type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, userID int64) bool
}

// Subscriptions is where a positive answer is remembered.
type Subscriptions interface {
	User(ctx context.Context, userID int64) (ledger.User, error)
	SetSubscribed(ctx context.Context, userID int64, subscribed bool) error
}

type Guard struct {
	checker SubscriptionChecker
	users   Subscriptions
}

func NewGuard(checker SubscriptionChecker, users Subscriptions) *Guard {
	return &Guard{checker: checker, users: users}
}

// Require returns nil when the user is known to be subscribed, checking Telegram
// only until the first positive answer.
func (g *Guard) Require(ctx context.Context, userID int64) error {
	u, err := g.users.User(ctx, userID)
	if err != nil {
		return fmt.Errorf("subscription of %d: %w", userID, err)
	}

	if u.Subscribed {
		return nil
	}

	if !g.checker.IsSubscribed(ctx, userID) {
		return ErrNotSubscribed
	}

	err = g.users.SetSubscribed(ctx, userID, true)
	if err != nil {
		slog.WarnContext(ctx, "subscription not cached", "user_id", userID, "error", err)
	}

	return nil
}
