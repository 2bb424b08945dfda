package gate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/stargiver/internal/config"
	"github.com/fastprodman/stargiver/internal/services/ledger"
	"github.com/fastprodman/stargiver/internal/store/memory"
)

type fakeAPI struct {
	status string
	err    error
	calls  atomic.Int32
	last   tgbotapi.GetChatMemberConfig
}

func (f *fakeAPI) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	f.calls.Add(1)
	f.last = cfg

	if f.err != nil {
		return tgbotapi.ChatMember{}, f.err
	}

	return tgbotapi.ChatMember{Status: f.status}, nil
}

func TestChecker_IsSubscribed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status string
		err    error
		want   bool
	}{
		{status: "member", want: true},
		{status: "administrator", want: true},
		{status: "creator", want: true},
		{status: "left", want: false},
		{status: "kicked", want: false},
		{status: "restricted", want: false},
		{err: errors.New("Bad Request: user not found"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{status: tt.status, err: tt.err}
			c := NewChecker(api, "@MyBoog")

			assert.Equal(t, tt.want, c.IsSubscribed(t.Context(), 7))
			assert.Equal(t, "@MyBoog", api.last.SuperGroupUsername)
			assert.Equal(t, int64(7), api.last.UserID)
		})
	}
}

func TestChecker_NumericChannel(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{status: "member"}
	c := NewChecker(api, "-1001234567890")

	assert.True(t, c.IsSubscribed(t.Context(), 7))
	assert.Equal(t, int64(-1001234567890), api.last.ChatID)
	assert.Empty(t, api.last.SuperGroupUsername)
}

func TestChecker_NoChannel(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{err: errors.New("must not be called")}
	c := NewChecker(api, "")

	assert.True(t, c.IsSubscribed(t.Context(), 7))
	assert.Zero(t, api.calls.Load())
}

func newGuard(t *testing.T, api *fakeAPI) (*Guard, *ledger.Service) {
	t.Helper()

	l := ledger.New(memory.New(), config.LedgerConfig{StartingAttempts: 3, DailyBonus: 2, DailyCooldown: 24 * time.Hour})

	_, _, err := l.RegisterUser(t.Context(), 7, "bob", nil)
	require.NoError(t, err)

	return NewGuard(NewChecker(api, "@MyBoog"), l), l
}

func TestGuard_Require(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{status: "left"}
	g, l := newGuard(t, api)

	err := g.Require(t.Context(), 7)
	require.ErrorIs(t, err, ErrNotSubscribed)

	api.status = "member"

	require.NoError(t, g.Require(t.Context(), 7))

	u, err := l.User(t.Context(), 7)
	require.NoError(t, err)
	assert.True(t, u.Subscribed)

	// Once cached, Telegram is not asked again.
	api.err = errors.New("down")
	calls := api.calls.Load()

	require.NoError(t, g.Require(context.Background(), 7))
	assert.Equal(t, calls, api.calls.Load())
}

func TestGuard_UnknownUser(t *testing.T) {
	t.Parallel()

	g, _ := newGuard(t, &fakeAPI{status: "member"})

	err := g.Require(t.Context(), 8)
	require.ErrorIs(t, err, ledger.ErrUserNotFound)
}
