package games

import (
	"context"
	"fmt"

	"github.com/fastprodman/stargiver/internal/infra/pgutils"
	"github.com/fastprodman/stargiver/internal/repos/games"
)

var _ games.Games = (*gamesRepo)(nil)

type gamesRepo struct{ db pgutils.DBTX }

func New(db pgutils.DBTX) *gamesRepo {
	return &gamesRepo{db: db}
}

func (r *gamesRepo) Insert(ctx context.Context, rec games.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO games (id, user_id, tier, cell_row, cell_col, outcome, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.UserID, rec.Tier, rec.Row, rec.Col, string(rec.Outcome), rec.PlayedAt)
	if err != nil {
		return fmt.Errorf("insert game record: %w", err)
	}

	return nil
}

func (r *gamesRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM games WHERE user_id = $1
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count user games: %w", err)
	}

	return n, nil
}

func (r *gamesRepo) Count(ctx context.Context) (int64, error) {
	var n int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count games: %w", err)
	}

	return n, nil
}
