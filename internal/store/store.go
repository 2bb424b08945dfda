// Package store defines the unit of work shared by the services. Everything done
// through the Repos handed to Atomic commits together or not at all.
package store

import (
	"context"
	"errors"

	"github.com/fastprodman/stargiver/internal/repos/games"
	"github.com/fastprodman/stargiver/internal/repos/payments"
	"github.com/fastprodman/stargiver/internal/repos/referrals"
	"github.com/fastprodman/stargiver/internal/repos/users"
)

// ErrReadOnly is returned by a write attempted inside View.
var ErrReadOnly = errors.New("read-only unit of work")

// Repos is the set of repositories bound to one unit of work.
type Repos struct {
	Users     users.Users
	Referrals referrals.Referrals
	Payments  payments.Payments
	Games     games.Games
}

type Store interface {
	// Atomic runs fn in a unit of work that commits when fn returns nil and
	// rolls back otherwise. fn's error is returned unwrapped.
	Atomic(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	Ping(ctx context.Context) error
}
