package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/stargiver/internal/repos/users"
)

func (r *usersRepo) Create(ctx context.Context, u users.User) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, attempts, star_balance, invited_by, subscribed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, u.Username, u.Attempts, u.StarBalance, u.InvitedBy, u.Subscribed, u.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *usersRepo) Get(ctx context.Context, userID int64) (users.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return users.User{}, users.ErrUserNotFound
		}

		return users.User{}, fmt.Errorf("select user: %w", err)
	}

	return u, nil
}

func (r *usersRepo) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)
	`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}

	return exists, nil
}

func (r *usersRepo) SetInvitedBy(ctx context.Context, userID, referrerID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET invited_by = $2
		WHERE id = $1
		  AND invited_by IS NULL
	`, userID, referrerID)
	if err != nil {
		return fmt.Errorf("set invited_by: %w", err)
	}

	return r.requireRow(ctx, res, userID)
}

func (r *usersRepo) SetSubscribed(ctx context.Context, userID int64, subscribed bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET subscribed = $2
		WHERE id = $1
	`, userID, subscribed)
	if err != nil {
		return fmt.Errorf("set subscribed: %w", err)
	}

	return r.requireRow(ctx, res, userID)
}

func (r *usersRepo) Count(ctx context.Context) (int64, error) {
	var n int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return n, nil
}

// requireRow turns a zero-row update into ErrUserNotFound when the user is really missing.
func (r *usersRepo) requireRow(ctx context.Context, res sql.Result, userID int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	exists, err := r.Exists(ctx, userID)
	if err != nil {
		return err
	}

	if !exists {
		return users.ErrUserNotFound
	}

	return nil
}
