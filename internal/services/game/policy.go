package game

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
)

// WinPolicy hides the winning cell of a new session. ok is false when the session
// has no winning cell at all.
type WinPolicy interface {
	HideWinningCell(g Grid) (c Cell, ok bool)
}

// NeverWin resolves every pick as a loss.
type NeverWin struct{}

func (NeverWin) HideWinningCell(Grid) (Cell, bool) { return Cell{}, false }

// FixedCell always hides the prize under the same cell.
type FixedCell struct {
	Cell Cell
}

func (f FixedCell) HideWinningCell(g Grid) (Cell, bool) {
	return f.Cell, g.Contains(f.Cell)
}

// RandomCell hides the prize under one uniformly chosen cell per session.
type RandomCell struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomCell seeds the generator; a zero seed picks a random one.
func NewRandomCell(seed int64) *RandomCell {
	var src rand.Source
	if seed == 0 {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	} else {
		src = rand.NewPCG(uint64(seed), uint64(seed))
	}

	return &RandomCell{rnd: rand.New(src)}
}

func (r *RandomCell) HideWinningCell(g Grid) (Cell, bool) {
	if g.Rows <= 0 || g.Cols <= 0 {
		return Cell{}, false
	}

	r.mu.Lock()
	n := r.rnd.IntN(g.Rows * g.Cols)
	r.mu.Unlock()

	return Cell{Row: n / g.Cols, Col: n % g.Cols}, true
}

// ParsePolicy understands "never", "random" and "fixed:<row>:<col>".
func ParsePolicy(name string, seed int64) (WinPolicy, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	switch {
	case name == "" || name == "never":
		return NeverWin{}, nil
	case name == "random":
		return NewRandomCell(seed), nil
	case strings.HasPrefix(name, "fixed:"):
		parts := strings.Split(strings.TrimPrefix(name, "fixed:"), ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("fixed policy wants fixed:<row>:<col>, got %q", name)
		}

		row, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("fixed policy row: %w", err)
		}

		col, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("fixed policy col: %w", err)
		}

		return FixedCell{Cell: Cell{Row: row, Col: col}}, nil
	default:
		return nil, fmt.Errorf("unknown win policy %q", name)
	}
}
