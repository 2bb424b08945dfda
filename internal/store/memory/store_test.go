package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/stargiver/internal/repos/games"
	"github.com/fastprodman/stargiver/internal/repos/payments"
	"github.com/fastprodman/stargiver/internal/repos/referrals"
	"github.com/fastprodman/stargiver/internal/repos/users"
	"github.com/fastprodman/stargiver/internal/store"
)

func seedUser(t *testing.T, s *Store, id, attempts int64) {
	t.Helper()

	err := s.Atomic(t.Context(), func(ctx context.Context, r store.Repos) error {
		_, err := r.Users.Create(ctx, users.User{ID: id, Attempts: attempts, CreatedAt: time.Now()})

		return err
	})
	require.NoError(t, err)
}

func attemptsOf(t *testing.T, s *Store, id int64) int64 {
	t.Helper()

	var u users.User

	err := s.View(t.Context(), func(ctx context.Context, r store.Repos) error {
		var err error
		u, err = r.Users.Get(ctx, id)

		return err
	})
	require.NoError(t, err)

	return u.Attempts
}

func TestAtomic_RollbackDiscardsEveryWrite(t *testing.T) {
	t.Parallel()

	s := New()
	seedUser(t, s, 1, 3)

	sentinel := errors.New("fail after writes")

	err := s.Atomic(t.Context(), func(ctx context.Context, r store.Repos) error {
		_, err := r.Users.AddAttempts(ctx, 1, -1)
		require.NoError(t, err)

		err = r.Games.Insert(ctx, games.Record{ID: uuid.New(), UserID: 1, Outcome: games.OutcomeLost})
		require.NoError(t, err)

		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	assert.EqualValues(t, 3, attemptsOf(t, s, 1))

	err = s.View(t.Context(), func(ctx context.Context, r store.Repos) error {
		n, err := r.Games.Count(ctx)
		assert.Zero(t, n)

		return err
	})
	require.NoError(t, err)
}

func TestView_RejectsWrites(t *testing.T) {
	t.Parallel()

	s := New()
	seedUser(t, s, 1, 3)

	err := s.View(t.Context(), func(ctx context.Context, r store.Repos) error {
		_, err := r.Users.AddAttempts(ctx, 1, 1)

		return err
	})
	require.ErrorIs(t, err, store.ErrReadOnly)
	assert.EqualValues(t, 3, attemptsOf(t, s, 1))
}

func TestAtomic_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := false
	err := New().Atomic(ctx, func(context.Context, store.Repos) error {
		called = true

		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestUsers_AddAttempts_ConcurrentNeverNegative(t *testing.T) {
	t.Parallel()

	s := New()
	seedUser(t, s, 1, 1)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for range 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := s.Atomic(t.Context(), func(ctx context.Context, r store.Repos) error {
				_, err := r.Users.AddAttempts(ctx, 1, -1)

				return err
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()

				return
			}

			assert.ErrorIs(t, err, users.ErrInsufficientAttempts)
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Zero(t, attemptsOf(t, s, 1))
}

func TestUsers_ClaimDaily(t *testing.T) {
	t.Parallel()

	s := New()
	seedUser(t, s, 1, 0)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	claim := func(at time.Time) (int64, bool) {
		var (
			bal     int64
			granted bool
		)

		err := s.Atomic(t.Context(), func(ctx context.Context, r store.Repos) error {
			var err error
			bal, granted, err = r.Users.ClaimDaily(ctx, 1, 2, at, at.Add(-24*time.Hour))

			return err
		})
		require.NoError(t, err)

		return bal, granted
	}

	bal, granted := claim(now)
	assert.True(t, granted)
	assert.EqualValues(t, 2, bal)

	bal, granted = claim(now.Add(23 * time.Hour))
	assert.False(t, granted)
	assert.EqualValues(t, 2, bal)

	bal, granted = claim(now.Add(24 * time.Hour))
	assert.True(t, granted)
	assert.EqualValues(t, 4, bal)
}

func TestReferrals_InsertOnce(t *testing.T) {
	t.Parallel()

	s := New()
	seedUser(t, s, 1, 3)
	seedUser(t, s, 2, 3)
	seedUser(t, s, 3, 3)

	insert := func(ref referrals.Referral) error {
		return s.Atomic(t.Context(), func(ctx context.Context, r store.Repos) error {
			return r.Referrals.Insert(ctx, ref)
		})
	}

	require.NoError(t, insert(referrals.Referral{ReferrerID: 1, ReferredID: 2}))
	require.ErrorIs(t, insert(referrals.Referral{ReferrerID: 3, ReferredID: 2}), referrals.ErrDuplicateReferral)
	require.ErrorIs(t, insert(referrals.Referral{ReferrerID: 9, ReferredID: 3}), users.ErrUserNotFound)
	require.Error(t, insert(referrals.Referral{ReferrerID: 3, ReferredID: 3}))

	err := s.View(t.Context(), func(ctx context.Context, r store.Repos) error {
		n, err := r.Referrals.CountByReferrer(ctx, 1)
		assert.EqualValues(t, 1, n)

		return err
	})
	require.NoError(t, err)
}

func TestPayments_TransitionsOnlyFromPending(t *testing.T) {
	t.Parallel()

	s := New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := s.Atomic(t.Context(), func(ctx context.Context, r store.Repos) error {
		for i, inv := range []string{"a", "b", "c"} {
			err := r.Payments.Insert(ctx, payments.Payment{
				ID:        uuid.New(),
				UserID:    1,
				Attempts:  5,
				Amount:    decimal.RequireFromString("0.30"),
				InvoiceID: inv,
				Status:    payments.StatusPending,
				CreatedAt: now.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	require.NoError(t, err)

	err = s.Atomic(t.Context(), func(ctx context.Context, r store.Repos) error {
		p, ok, err := r.Payments.MarkPaid(ctx, "a", now)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, payments.StatusPaid, p.Status)

		_, ok, err = r.Payments.MarkPaid(ctx, "a", now)
		require.NoError(t, err)
		assert.False(t, ok, "second transition must be refused")

		ok, err = r.Payments.MarkExpired(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok, "paid never reverts")

		ok, err = r.Payments.MarkExpired(ctx, "b")
		require.NoError(t, err)
		assert.True(t, ok)

		_, ok, err = r.Payments.MarkPaid(ctx, "b", now)
		require.NoError(t, err)
		assert.False(t, ok, "expired never becomes paid")

		return r.Payments.Insert(ctx, payments.Payment{InvoiceID: "c"})
	})
	require.ErrorIs(t, err, payments.ErrDuplicateInvoice)

	// The failed unit above rolled back, so "a" and "b" are still pending.
	err = s.View(t.Context(), func(ctx context.Context, r store.Repos) error {
		pending, err := r.Payments.ListPending(ctx, now.Add(time.Hour), 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "a", pending[0].InvoiceID)
		assert.Equal(t, "b", pending[1].InvoiceID)

		sum, err := r.Payments.SumPaid(ctx)
		assert.True(t, sum.IsZero())

		return err
	})
	require.NoError(t, err)
}
