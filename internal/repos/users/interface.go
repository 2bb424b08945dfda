package users

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrInsufficientAttempts = errors.New("insufficient attempts")
)

type User struct {
	ID             int64
	Username       string
	Attempts       int64
	StarBalance    int64
	LastDailyClaim *time.Time
	InvitedBy      *int64
	Subscribed     bool
	CreatedAt      time.Time
}

type Users interface {
	// Create inserts u unless a row with the same id exists. It reports whether a row was inserted.
	Create(ctx context.Context, u User) (bool, error)
	Get(ctx context.Context, userID int64) (User, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	// AddAttempts applies delta and returns the new balance. A result below zero is
	// rejected with ErrInsufficientAttempts and nothing changes.
	AddAttempts(ctx context.Context, userID int64, delta int64) (int64, error)
	AddStars(ctx context.Context, userID int64, amount int64) (int64, error)
	// ClaimDaily credits bonus and stamps now only if the last claim is unset or not after
	// notAfter. granted is false when the cooldown has not elapsed.
	ClaimDaily(ctx context.Context, userID int64, bonus int64, now, notAfter time.Time) (balance int64, granted bool, err error)
	SetInvitedBy(ctx context.Context, userID, referrerID int64) error
	SetSubscribed(ctx context.Context, userID int64, subscribed bool) error
	Count(ctx context.Context) (int64, error)
}
