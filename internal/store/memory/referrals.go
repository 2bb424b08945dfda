package memory

import (
	"context"
	"errors"

	"github.com/fastprodman/stargiver/internal/repos/referrals"
	"github.com/fastprodman/stargiver/internal/repos/users"
	"github.com/fastprodman/stargiver/internal/store"
)

var errSelfReferral = errors.New("referrer and referred must differ")

type referralsRepo struct {
	st *state
	ro bool
}

func (r *referralsRepo) Insert(_ context.Context, ref referrals.Referral) error {
	if r.ro {
		return store.ErrReadOnly
	}

	if ref.ReferrerID == ref.ReferredID {
		return errSelfReferral
	}

	if _, ok := r.st.users[ref.ReferrerID]; !ok {
		return users.ErrUserNotFound
	}

	if _, ok := r.st.users[ref.ReferredID]; !ok {
		return users.ErrUserNotFound
	}

	if _, ok := r.st.referrals[ref.ReferredID]; ok {
		return referrals.ErrDuplicateReferral
	}

	r.st.referrals[ref.ReferredID] = ref

	return nil
}

func (r *referralsRepo) CountByReferrer(_ context.Context, referrerID int64) (int64, error) {
	var n int64

	for _, ref := range r.st.referrals {
		if ref.ReferrerID == referrerID {
			n++
		}
	}

	return n, nil
}
