package referrals

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateReferral is returned when the referred user already has a referrer.
var ErrDuplicateReferral = errors.New("duplicate referral")

type Referral struct {
	ReferrerID int64
	ReferredID int64
	CreatedAt  time.Time
}

type Referrals interface {
	Insert(ctx context.Context, r Referral) error
	CountByReferrer(ctx context.Context, referrerID int64) (int64, error)
}
