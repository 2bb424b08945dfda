package users

import (
	"database/sql"

	"github.com/fastprodman/stargiver/internal/infra/pgutils"
	"github.com/fastprodman/stargiver/internal/repos/users"
)

var _ users.Users = (*usersRepo)(nil)

type usersRepo struct{ db pgutils.DBTX }

// New returns a users repo running its statements on db, which may be a pool or a transaction.
func New(db pgutils.DBTX) *usersRepo {
	return &usersRepo{db: db}
}

const userColumns = `id, username, attempts, star_balance, last_daily_claim, invited_by, subscribed, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (users.User, error) {
	var (
		u         users.User
		lastClaim sql.NullTime
		invitedBy sql.NullInt64
	)

	err := row.Scan(&u.ID, &u.Username, &u.Attempts, &u.StarBalance, &lastClaim, &invitedBy, &u.Subscribed, &u.CreatedAt)
	if err != nil {
		return users.User{}, err
	}

	if lastClaim.Valid {
		t := lastClaim.Time
		u.LastDailyClaim = &t
	}

	if invitedBy.Valid {
		id := invitedBy.Int64
		u.InvitedBy = &id
	}

	return u, nil
}
