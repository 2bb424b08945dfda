package postgres

import (
	"context"
	"database/sql"

	"github.com/fastprodman/stargiver/internal/infra/pgutils"
	pggames "github.com/fastprodman/stargiver/internal/repos/games/postgres"
	pgpayments "github.com/fastprodman/stargiver/internal/repos/payments/postgres"
	pgreferrals "github.com/fastprodman/stargiver/internal/repos/referrals/postgres"
	pgusers "github.com/fastprodman/stargiver/internal/repos/users/postgres"
	"github.com/fastprodman/stargiver/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store runs every unit of work in one SQL transaction.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func reposFor(db pgutils.DBTX) store.Repos {
	return store.Repos{
		Users:     pgusers.New(db),
		Referrals: pgreferrals.New(db),
		Payments:  pgpayments.New(db),
		Games:     pggames.New(db),
	}
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	return pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, reposFor(tx))
	})
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	return pgutils.WithTxOptions(ctx, s.db, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		return fn(ctx, reposFor(tx))
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
