package games

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeLost Outcome = "lost"
	OutcomeWon  Outcome = "won"
)

// Record is one pick. Records are append-only.
type Record struct {
	ID       uuid.UUID
	UserID   int64
	Tier     int64
	Row      int
	Col      int
	Outcome  Outcome
	PlayedAt time.Time
}

type Games interface {
	Insert(ctx context.Context, r Record) error
	CountByUser(ctx context.Context, userID int64) (int64, error)
	Count(ctx context.Context) (int64, error)
}
