package game

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fastprodman/stargiver/internal/repos/games"
)

var (
	ErrNoAttempts  = errors.New("no attempts left")
	ErrInvalidMove = errors.New("invalid move")
	// ErrNoActiveSession is an ErrInvalidMove.
	ErrNoActiveSession = fmt.Errorf("%w: no active session", ErrInvalidMove)
	ErrUnknownTier     = errors.New("unknown reward tier")
)

type State string

const (
	StateSelecting State = "selecting"
	StateExhausted State = "exhausted"
	StateWon       State = "won"
)

type Outcome = games.Outcome

const (
	OutcomeLost = games.OutcomeLost
	OutcomeWon  = games.OutcomeWon
)

type Cell struct {
	Row int
	Col int
}

type Grid struct {
	Rows int
	Cols int
}

func (g Grid) Contains(c Cell) bool {
	return c.Row >= 0 && c.Row < g.Rows && c.Col >= 0 && c.Col < g.Cols
}

// Session is a snapshot of one user's round. The live session is owned by the Manager.
type Session struct {
	UserID       int64
	Tier         int64
	AttemptsLeft int
	Picked       []Cell
	State        State

	prize *Cell
}

func (s *Session) picked(c Cell) bool {
	return slices.Contains(s.Picked, c)
}

func (s *Session) snapshot() Session {
	cp := *s
	cp.Picked = slices.Clone(s.Picked)
	cp.prize = nil

	return cp
}

type PickResult struct {
	Session Session
	Outcome Outcome
	// Balance is the global attempts balance after the debit.
	Balance int64
	// Stars is the star balance after a win, zero otherwise.
	Stars int64
}
