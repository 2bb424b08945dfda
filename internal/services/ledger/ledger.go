package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fastprodman/stargiver/internal/config"
	"github.com/fastprodman/stargiver/internal/infra/keylock"
	"github.com/fastprodman/stargiver/internal/metrics"
	"github.com/fastprodman/stargiver/internal/repos/referrals"
	"github.com/fastprodman/stargiver/internal/repos/users"
	"github.com/fastprodman/stargiver/internal/store"
)

// Service is the only writer of a user's attempts, stars and daily-claim stamp.
type Service struct {
	store   store.Store
	cfg     config.LedgerConfig
	locks   *keylock.Locker[int64]
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, cfg config.LedgerConfig, opts ...Option) *Service {
	s := &Service{
		store: st,
		cfg:   cfg,
		locks: keylock.New[int64](),
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// lockUsers takes the per-user locks in ascending id order.
func (s *Service) lockUsers(ids ...int64) func() {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	unlocks := make([]func(), 0, len(ids))
	for _, id := range ids {
		unlocks = append(unlocks, s.locks.Lock(id))
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (s *Service) record(op string, err error) {
	result := "ok"

	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientBalance):
		result = "insufficient"
	case errors.Is(err, ErrUserNotFound):
		result = "not_found"
	case errors.Is(err, ErrInvalidAmount):
		result = "invalid"
	default:
		result = "error"
	}

	s.metrics.LedgerOp(op, result)
}

// RegisterUser creates the user on first contact. A referral is applied only then,
// and only for an existing referrer other than the user: one Referral row is written
// and both sides get ReferralBonus attempts. Later calls change nothing.
func (s *Service) RegisterUser(ctx context.Context, userID int64, username string, referrerID *int64) (User, Registration, error) {
	lockIDs := []int64{userID}
	if referrerID != nil {
		lockIDs = append(lockIDs, *referrerID)
	}

	unlock := s.lockUsers(lockIDs...)
	defer unlock()

	var (
		u   User
		reg Registration
	)

	now := s.now().UTC()

	err := s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		created, err := r.Users.Create(ctx, users.User{
			ID:        userID,
			Username:  username,
			Attempts:  s.cfg.StartingAttempts,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		reg.Created = created

		if created && referrerID != nil && *referrerID != userID {
			applied, err := s.applyReferral(ctx, r, *referrerID, userID, now)
			if err != nil {
				return err
			}

			reg.ReferralApplied = applied
		}

		u, err = r.Users.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}

		return nil
	})

	s.record("register", err)

	if err != nil {
		return User{}, Registration{}, fmt.Errorf("register user %d: %w", userID, err)
	}

	return u, reg, nil
}

func (s *Service) applyReferral(ctx context.Context, r store.Repos, referrerID, referredID int64, now time.Time) (bool, error) {
	exists, err := r.Users.Exists(ctx, referrerID)
	if err != nil {
		return false, fmt.Errorf("check referrer: %w", err)
	}

	if !exists {
		return false, nil
	}

	err = r.Referrals.Insert(ctx, referrals.Referral{ReferrerID: referrerID, ReferredID: referredID, CreatedAt: now})
	if errors.Is(err, referrals.ErrDuplicateReferral) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("insert referral: %w", err)
	}

	err = r.Users.SetInvitedBy(ctx, referredID, referrerID)
	if err != nil {
		return false, fmt.Errorf("set invited_by: %w", err)
	}

	for _, id := range []int64{referrerID, referredID} {
		_, err = r.Users.AddAttempts(ctx, id, s.cfg.ReferralBonus)
		if err != nil {
			return false, fmt.Errorf("credit referral bonus to %d: %w", id, err)
		}
	}

	return true, nil
}

// AdjustAttempts adds delta to the balance and returns the new value. A result
// below zero is refused with ErrInsufficientBalance; the balance is never clamped.
func (s *Service) AdjustAttempts(ctx context.Context, userID int64, delta int64) (int64, error) {
	unlock := s.lockUsers(userID)
	defer unlock()

	var balance int64

	err := s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		balance, err = s.AdjustAttemptsIn(ctx, r, userID, delta)

		return err
	})

	s.record("adjust", err)

	if err != nil {
		return 0, err
	}

	return balance, nil
}

// AdjustAttemptsIn is AdjustAttempts inside a unit of work owned by the caller.
func (s *Service) AdjustAttemptsIn(ctx context.Context, r store.Repos, userID int64, delta int64) (int64, error) {
	balance, err := r.Users.AddAttempts(ctx, userID, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust attempts of %d by %d: %w", userID, delta, err)
	}

	return balance, nil
}

// ClaimDailyBonus grants DailyBonus once per DailyCooldown. When the cooldown has
// not elapsed nothing changes and Granted is false.
func (s *Service) ClaimDailyBonus(ctx context.Context, userID int64) (DailyClaim, error) {
	unlock := s.lockUsers(userID)
	defer unlock()

	var claim DailyClaim

	now := s.now().UTC()

	err := s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		balance, granted, err := r.Users.ClaimDaily(ctx, userID, s.cfg.DailyBonus, now, now.Add(-s.cfg.DailyCooldown))
		if err != nil {
			return fmt.Errorf("claim daily: %w", err)
		}

		claim.Granted = granted
		claim.Balance = balance

		if granted {
			claim.NextAt = now.Add(s.cfg.DailyCooldown)

			return nil
		}

		u, err := r.Users.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}

		if u.LastDailyClaim != nil {
			claim.NextAt = u.LastDailyClaim.Add(s.cfg.DailyCooldown)
		}

		return nil
	})

	switch {
	case err != nil:
		s.record("daily", err)
	case claim.Granted:
		s.metrics.LedgerOp("daily", "ok")
	default:
		s.metrics.LedgerOp("daily", "cooldown")
	}

	if err != nil {
		return DailyClaim{}, fmt.Errorf("claim daily bonus for %d: %w", userID, err)
	}

	return claim, nil
}

// CreditStars adds a non-negative star reward.
func (s *Service) CreditStars(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount < 0 {
		s.record("stars", ErrInvalidAmount)

		return 0, fmt.Errorf("credit %d stars: %w", amount, ErrInvalidAmount)
	}

	unlock := s.lockUsers(userID)
	defer unlock()

	var balance int64

	err := s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		balance, err = s.CreditStarsIn(ctx, r, userID, amount)

		return err
	})

	s.record("stars", err)

	if err != nil {
		return 0, err
	}

	return balance, nil
}

// CreditStarsIn is CreditStars inside a unit of work owned by the caller.
func (s *Service) CreditStarsIn(ctx context.Context, r store.Repos, userID int64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit %d stars: %w", amount, ErrInvalidAmount)
	}

	balance, err := r.Users.AddStars(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("credit stars to %d: %w", userID, err)
	}

	return balance, nil
}

// SetSubscribed stores the last known channel membership of the user.
func (s *Service) SetSubscribed(ctx context.Context, userID int64, subscribed bool) error {
	unlock := s.lockUsers(userID)
	defer unlock()

	err := s.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		return r.Users.SetSubscribed(ctx, userID, subscribed)
	})
	if err != nil {
		return fmt.Errorf("set subscribed for %d: %w", userID, err)
	}

	return nil
}

func (s *Service) User(ctx context.Context, userID int64) (User, error) {
	var u User

	err := s.store.View(ctx, func(ctx context.Context, r store.Repos) error {
		var err error
		u, err = r.Users.Get(ctx, userID)

		return err
	})
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", userID, err)
	}

	return u, nil
}

func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return 0, err
	}

	return u.Attempts, nil
}

// Profile gathers what the "my attempts" screen shows.
func (s *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	var p Profile

	err := s.store.View(ctx, func(ctx context.Context, r store.Repos) error {
		var err error

		p.User, err = r.Users.Get(ctx, userID)
		if err != nil {
			return err
		}

		p.GamesPlayed, err = r.Games.CountByUser(ctx, userID)
		if err != nil {
			return err
		}

		p.Referrals, err = r.Referrals.CountByReferrer(ctx, userID)

		return err
	})
	if err != nil {
		return Profile{}, fmt.Errorf("profile of %d: %w", userID, err)
	}

	p.DailyAvailable = true

	if last := p.User.LastDailyClaim; last != nil {
		p.NextDailyAt = last.Add(s.cfg.DailyCooldown)
		p.DailyAvailable = !s.now().Before(p.NextDailyAt)
	}

	return p, nil
}
