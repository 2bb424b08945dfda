package memory

import (
	"context"

	"github.com/fastprodman/stargiver/internal/repos/games"
	"github.com/fastprodman/stargiver/internal/store"
)

type gamesRepo struct {
	st *state
	ro bool
}

func (r *gamesRepo) Insert(_ context.Context, rec games.Record) error {
	if r.ro {
		return store.ErrReadOnly
	}

	r.st.games = append(r.st.games, rec)

	return nil
}

func (r *gamesRepo) CountByUser(_ context.Context, userID int64) (int64, error) {
	var n int64

	for _, rec := range r.st.games {
		if rec.UserID == userID {
			n++
		}
	}

	return n, nil
}

func (r *gamesRepo) Count(context.Context) (int64, error) {
	return int64(len(r.st.games)), nil
}
