package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/stargiver/internal/repos/users"
)

func (r *usersRepo) AddAttempts(ctx context.Context, userID int64, delta int64) (int64, error) {
	var balance int64

	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET attempts = attempts + $2
		WHERE id = $1
		  AND attempts + $2 >= 0
		RETURNING attempts
	`, userID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("add attempts: %w", err)
	}

	exists, err := r.Exists(ctx, userID)
	if err != nil {
		return 0, err
	}

	if !exists {
		return 0, users.ErrUserNotFound
	}

	return 0, users.ErrInsufficientAttempts
}

func (r *usersRepo) AddStars(ctx context.Context, userID int64, amount int64) (int64, error) {
	var balance int64

	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET star_balance = star_balance + $2
		WHERE id = $1
		RETURNING star_balance
	`, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, users.ErrUserNotFound
		}

		return 0, fmt.Errorf("add stars: %w", err)
	}

	return balance, nil
}

func (r *usersRepo) ClaimDaily(ctx context.Context, userID int64, bonus int64, now, notAfter time.Time) (int64, bool, error) {
	var balance int64

	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET attempts = attempts + $2,
		    last_daily_claim = $3
		WHERE id = $1
		  AND (last_daily_claim IS NULL OR last_daily_claim <= $4)
		RETURNING attempts
	`, userID, bonus, now, notAfter).Scan(&balance)
	if err == nil {
		return balance, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("claim daily: %w", err)
	}

	u, err := r.Get(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	return u.Attempts, false, nil
}
