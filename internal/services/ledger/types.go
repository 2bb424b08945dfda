package ledger

import (
	"errors"
	"time"

	"github.com/fastprodman/stargiver/internal/repos/users"
)

type User = users.User

var (
	ErrInsufficientBalance = users.ErrInsufficientAttempts
	ErrUserNotFound        = users.ErrUserNotFound
	ErrInvalidAmount       = errors.New("amount must not be negative")
)

type Registration struct {
	Created         bool
	ReferralApplied bool
}

type DailyClaim struct {
	Granted bool
	Balance int64
	// NextAt is when the next claim becomes possible.
	NextAt time.Time
}

type Profile struct {
	User           User
	GamesPlayed    int64
	Referrals      int64
	NextDailyAt    time.Time
	DailyAvailable bool
}
