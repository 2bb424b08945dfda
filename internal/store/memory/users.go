package memory

import (
	"context"
	"time"

	"github.com/fastprodman/stargiver/internal/repos/users"
	"github.com/fastprodman/stargiver/internal/store"
)

type usersRepo struct {
	st *state
	ro bool
}

func (r *usersRepo) Create(_ context.Context, u users.User) (bool, error) {
	if r.ro {
		return false, store.ErrReadOnly
	}

	if _, ok := r.st.users[u.ID]; ok {
		return false, nil
	}

	r.st.users[u.ID] = u

	return true, nil
}

func (r *usersRepo) Get(_ context.Context, userID int64) (users.User, error) {
	u, ok := r.st.users[userID]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}

	return u, nil
}

func (r *usersRepo) Exists(_ context.Context, userID int64) (bool, error) {
	_, ok := r.st.users[userID]

	return ok, nil
}

func (r *usersRepo) update(userID int64, fn func(u *users.User) error) error {
	if r.ro {
		return store.ErrReadOnly
	}

	u, ok := r.st.users[userID]
	if !ok {
		return users.ErrUserNotFound
	}

	err := fn(&u)
	if err != nil {
		return err
	}

	r.st.users[userID] = u

	return nil
}

func (r *usersRepo) AddAttempts(_ context.Context, userID int64, delta int64) (int64, error) {
	var balance int64

	err := r.update(userID, func(u *users.User) error {
		if u.Attempts+delta < 0 {
			return users.ErrInsufficientAttempts
		}

		u.Attempts += delta
		balance = u.Attempts

		return nil
	})

	return balance, err
}

func (r *usersRepo) AddStars(_ context.Context, userID int64, amount int64) (int64, error) {
	var balance int64

	err := r.update(userID, func(u *users.User) error {
		u.StarBalance += amount
		balance = u.StarBalance

		return nil
	})

	return balance, err
}

func (r *usersRepo) ClaimDaily(_ context.Context, userID int64, bonus int64, now, notAfter time.Time) (int64, bool, error) {
	var (
		balance int64
		granted bool
	)

	err := r.update(userID, func(u *users.User) error {
		if u.LastDailyClaim == nil || !u.LastDailyClaim.After(notAfter) {
			u.Attempts += bonus
			claimed := now
			u.LastDailyClaim = &claimed
			granted = true
		}

		balance = u.Attempts

		return nil
	})

	return balance, granted, err
}

func (r *usersRepo) SetInvitedBy(_ context.Context, userID, referrerID int64) error {
	return r.update(userID, func(u *users.User) error {
		if u.InvitedBy == nil {
			id := referrerID
			u.InvitedBy = &id
		}

		return nil
	})
}

func (r *usersRepo) SetSubscribed(_ context.Context, userID int64, subscribed bool) error {
	return r.update(userID, func(u *users.User) error {
		u.Subscribed = subscribed

		return nil
	})
}

func (r *usersRepo) Count(context.Context) (int64, error) {
	return int64(len(r.st.users)), nil
}
