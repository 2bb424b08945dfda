// Package memory is an in-process store engine. Each Atomic call works on a
// copy of the state that replaces the live state only when fn succeeds, so a
// failed unit of work leaves nothing behind. Nothing survives a restart.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/fastprodman/stargiver/internal/repos/games"
	"github.com/fastprodman/stargiver/internal/repos/payments"
	"github.com/fastprodman/stargiver/internal/repos/referrals"
	"github.com/fastprodman/stargiver/internal/repos/users"
	"github.com/fastprodman/stargiver/internal/store"
)

var _ store.Store = (*Store)(nil)

type state struct {
	users     map[int64]users.User
	referrals map[int64]referrals.Referral // by referred id
	payments  map[string]payments.Payment  // by invoice id
	games     []games.Record
}

func (s *state) clone() *state {
	return &state{
		users:     maps.Clone(s.users),
		referrals: maps.Clone(s.referrals),
		payments:  maps.Clone(s.payments),
		// Records are append-only; capping the slice makes the first append copy it.
		games: s.games[:len(s.games):len(s.games)],
	}
}

// Store serializes units of work. Atomic must not be called from inside another
// Atomic or View on the same Store.
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		users:     make(map[int64]users.User),
		referrals: make(map[int64]referrals.Referral),
		payments:  make(map[string]payments.Payment),
	}}
}

func reposFor(st *state, readOnly bool) store.Repos {
	return store.Repos{
		Users:     &usersRepo{st: st, ro: readOnly},
		Referrals: &referralsRepo{st: st, ro: readOnly},
		Payments:  &paymentsRepo{st: st, ro: readOnly},
		Games:     &gamesRepo{st: st, ro: readOnly},
	}
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()

	err = fn(ctx, reposFor(next, false))
	if err != nil {
		return err
	}

	s.st = next

	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, reposFor(s.st, true))
}

func (s *Store) Ping(context.Context) error {
	return nil
}
