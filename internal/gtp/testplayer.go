package gtp

import (
	"strconv"
	"sync"
	"time"

	"github.com/ChuLiYu/ringmaster/internal/board"
	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// TestPlayerConfig configures NewTestPlayer.
type TestPlayerConfig struct {
	Name    string // reply to name; default "test player"
	Version string // reply to version; may be empty
	// Columns played by each colour, 0-based; defaults are E (4) and G (6).
	BlackColumn int
	WhiteColumn int
	// MoveDelay is slept before answering each genmove.
	MoveDelay time.Duration
}

// NewTestPlayer returns a deterministic engine. For each colour it plays up
// its column from the bottom edge, one point per genmove, and passes once
// the column is full. Relayed moves are accepted without checking.
func NewTestPlayer(cfg TestPlayerConfig) *Engine {
	if cfg.Name == "" {
		cfg.Name = "test player"
	}
	if cfg.BlackColumn == 0 && cfg.WhiteColumn == 0 {
		cfg.BlackColumn, cfg.WhiteColumn = 4, 6
	}
	p := &testPlayer{cfg: cfg, size: 19, next: map[types.Colour]int{}}

	e := NewEngine()
	e.Add("name", func([]string) (string, error) { return cfg.Name, nil })
	e.Add("version", func([]string) (string, error) { return cfg.Version, nil })
	e.Add("boardsize", p.handleBoardsize)
	e.Add("clear_board", p.handleClearBoard)
	e.Add("komi", p.handleKomi)
	e.Add("play", p.handlePlay)
	e.Add("genmove", p.handleGenmove)
	return e
}

type testPlayer struct {
	mu   sync.Mutex
	cfg  TestPlayerConfig
	size int
	komi float64
	next map[types.Colour]int
}

func (p *testPlayer) handleBoardsize(args []string) (string, error) {
	if len(args) != 1 {
		return "", Failf("wrong number of arguments")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < board.MinSize || n > board.MaxSize {
		return "", Failf("unacceptable size")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = n
	p.next = map[types.Colour]int{}
	return "", nil
}

func (p *testPlayer) handleClearBoard([]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = map[types.Colour]int{}
	return "", nil
}

func (p *testPlayer) handleKomi(args []string) (string, error) {
	if len(args) != 1 {
		return "", Failf("wrong number of arguments")
	}
	k, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return "", Failf("invalid komi")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.komi = k
	return "", nil
}

func (p *testPlayer) handlePlay(args []string) (string, error) {
	if len(args) != 2 {
		return "", Failf("wrong number of arguments")
	}
	if _, err := types.ParseColour(args[0]); err != nil {
		return "", Failf("invalid colour")
	}
	p.mu.Lock()
	size := p.size
	p.mu.Unlock()
	if _, err := board.ParseVertex(args[1], size); err != nil {
		return "", Failf("invalid vertex")
	}
	return "", nil
}

func (p *testPlayer) handleGenmove(args []string) (string, error) {
	if len(args) != 1 {
		return "", Failf("wrong number of arguments")
	}
	colour, err := types.ParseColour(args[0])
	if err != nil {
		return "", Failf("invalid colour")
	}
	if p.cfg.MoveDelay > 0 {
		time.Sleep(p.cfg.MoveDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	col := p.cfg.BlackColumn
	if colour == types.White {
		col = p.cfg.WhiteColumn
	}
	row := p.next[colour]
	if row >= p.size || col >= p.size {
		return "pass", nil
	}
	p.next[colour] = row + 1
	return board.FormatVertex(&board.Point{Row: row, Col: col}), nil
}
