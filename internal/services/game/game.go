package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/stargiver/internal/config"
	"github.com/fastprodman/stargiver/internal/infra/keylock"
	"github.com/fastprodman/stargiver/internal/metrics"
	"github.com/fastprodman/stargiver/internal/repos/games"
	"github.com/fastprodman/stargiver/internal/services/ledger"
	"github.com/fastprodman/stargiver/internal/store"
)

// Ledger is the part of the ledger the game needs.
type Ledger interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	AdjustAttemptsIn(ctx context.Context, r store.Repos, userID int64, delta int64) (int64, error)
	CreditStarsIn(ctx context.Context, r store.Repos, userID int64, amount int64) (int64, error)
}

// Manager owns the live sessions, at most one per user. Sessions are kept in
// memory only and are lost on restart.
type Manager struct {
	store   store.Store
	ledger  Ledger
	policy  WinPolicy
	tiers   []int64
	grid    Grid
	perGame int

	locks    *keylock.Locker[int64]
	mu       sync.Mutex
	sessions map[int64]*Session

	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Manager)

func WithPolicy(p WinPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(st store.Store, l Ledger, cfg config.GameConfig, opts ...Option) *Manager {
	m := &Manager{
		store:    st,
		ledger:   l,
		policy:   NeverWin{},
		tiers:    slices.Clone(cfg.Tiers),
		grid:     Grid{Rows: cfg.Rows, Cols: cfg.Cols},
		perGame:  cfg.AttemptsPerSession,
		locks:    keylock.New[int64](),
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}

	if m.perGame <= 0 {
		m.perGame = 3
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) Tiers() []int64 {
	return slices.Clone(m.tiers)
}

func (m *Manager) Grid() Grid {
	return m.grid
}

func (m *Manager) get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions[userID]
}

func (m *Manager) put(userID int64, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s == nil {
		delete(m.sessions, userID)

		return
	}

	m.sessions[userID] = s
}

// Session returns a copy of the user's live session.
func (m *Manager) Session(userID int64) (Session, bool) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s := m.get(userID)
	if s == nil {
		return Session{}, false
	}

	return s.snapshot(), true
}

// StartSession opens a round for tier, replacing any round the user had.
// It needs a positive global balance but debits nothing.
func (m *Manager) StartSession(ctx context.Context, userID int64, tier int64) (Session, error) {
	if !slices.Contains(m.tiers, tier) {
		return Session{}, fmt.Errorf("tier %d: %w", tier, ErrUnknownTier)
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	balance, err := m.ledger.Balance(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("start session: %w", err)
	}

	if balance <= 0 {
		return Session{}, fmt.Errorf("start session: %w", ErrNoAttempts)
	}

	s := &Session{
		UserID:       userID,
		Tier:         tier,
		AttemptsLeft: m.perGame,
		State:        StateSelecting,
	}

	if c, ok := m.policy.HideWinningCell(m.grid); ok {
		s.prize = &c
	}

	m.put(userID, s)

	slog.DebugContext(ctx, "session started", "user_id", userID, "tier", tier)

	return s.snapshot(), nil
}

// PickCell spends one attempt on cell. The debit, the game record and any star
// reward commit together; the session changes only after that commit.
func (m *Manager) PickCell(ctx context.Context, userID int64, row, col int) (PickResult, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	s := m.get(userID)
	if s == nil || s.State != StateSelecting {
		return PickResult{}, ErrNoActiveSession
	}

	cell := Cell{Row: row, Col: col}

	if !m.grid.Contains(cell) {
		return PickResult{}, fmt.Errorf("cell %d,%d outside the %dx%d grid: %w", row, col, m.grid.Rows, m.grid.Cols, ErrInvalidMove)
	}

	if s.picked(cell) {
		return PickResult{}, fmt.Errorf("cell %d,%d already picked: %w", row, col, ErrInvalidMove)
	}

	outcome := OutcomeLost
	if s.prize != nil && *s.prize == cell {
		outcome = OutcomeWon
	}

	res := PickResult{Outcome: outcome}

	err := m.store.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		var err error

		res.Balance, err = m.ledger.AdjustAttemptsIn(ctx, r, userID, -1)
		if err != nil {
			return err
		}

		err = r.Games.Insert(ctx, games.Record{
			ID:       uuid.New(),
			UserID:   userID,
			Tier:     s.Tier,
			Row:      row,
			Col:      col,
			Outcome:  outcome,
			PlayedAt: m.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("insert game record: %w", err)
		}

		if outcome == OutcomeWon {
			res.Stars, err = m.ledger.CreditStarsIn(ctx, r, userID, s.Tier)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			m.put(userID, nil)

			return PickResult{}, fmt.Errorf("pick cell: %w", ErrNoAttempts)
		}

		return PickResult{}, fmt.Errorf("pick cell: %w", err)
	}

	s.Picked = append(s.Picked, cell)
	s.AttemptsLeft--

	switch {
	case outcome == OutcomeWon:
		s.State = StateWon
	case s.AttemptsLeft <= 0:
		s.State = StateExhausted
	}

	if s.State != StateSelecting {
		m.put(userID, nil)
	}

	m.metrics.Pick(string(outcome))

	res.Session = s.snapshot()

	return res, nil
}

// ExitSession drops the user's round. Attempts already spent stay spent.
func (m *Manager) ExitSession(userID int64) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	m.put(userID, nil)
}

// Active reports the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}
