package referrals

import (
	"context"
	"fmt"

	"github.com/fastprodman/stargiver/internal/infra/pgutils"
	"github.com/fastprodman/stargiver/internal/repos/referrals"
)

var _ referrals.Referrals = (*referralsRepo)(nil)

type referralsRepo struct{ db pgutils.DBTX }

func New(db pgutils.DBTX) *referralsRepo {
	return &referralsRepo{db: db}
}

func (r *referralsRepo) Insert(ctx context.Context, ref referrals.Referral) error {
	// A conflict must not abort the surrounding transaction.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (referred_id) DO NOTHING
	`, ref.ReferrerID, ref.ReferredID, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return referrals.ErrDuplicateReferral
	}

	return nil
}

func (r *referralsRepo) CountByReferrer(ctx context.Context, referrerID int64) (int64, error) {
	var n int64

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM referrals WHERE referrer_id = $1
	`, referrerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}

	return n, nil
}
