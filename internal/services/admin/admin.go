package admin

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/stargiver/internal/store"
)

type Stats struct {
	Users     int64
	Games     int64
	PaidTotal decimal.Decimal
}

type Service struct {
	store  store.Store
	admins []int64
}

func New(st store.Store, adminIDs []int64) *Service {
	return &Service{store: st, admins: slices.Clone(adminIDs)}
}

func (s *Service) IsAdmin(userID int64) bool {
	return slices.Contains(s.admins, userID)
}

// Stats reads all three totals from one snapshot.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	err := s.store.View(ctx, func(ctx context.Context, r store.Repos) error {
		var err error

		st.Users, err = r.Users.Count(ctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}

		st.Games, err = r.Games.Count(ctx)
		if err != nil {
			return fmt.Errorf("count games: %w", err)
		}

		st.PaidTotal, err = r.Payments.SumPaid(ctx)
		if err != nil {
			return fmt.Errorf("sum paid: %w", err)
		}

		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("admin stats: %w", err)
	}

	return st, nil
}
