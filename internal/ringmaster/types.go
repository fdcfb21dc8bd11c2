package ringmaster

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ChuLiYu/ringmaster/internal/gtp"
	"github.com/ChuLiYu/ringmaster/internal/match"
	"github.com/ChuLiYu/ringmaster/internal/metrics"
	"github.com/ChuLiYu/ringmaster/internal/worker"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrTooManyGameErrors means the competition stopped dispatching after
	// MaxGameErrors games failed in this session.
	ErrTooManyGameErrors = errors.New("too many game errors")
	// ErrAlreadyStarted means Start was called twice.
	ErrAlreadyStarted = errors.New("ringmaster already started")
	// ErrUnknownPlayer means a matchup names a player that is not defined.
	ErrUnknownPlayer = errors.New("unknown player")
)

// ============================================================================
// Configuration
// ============================================================================

// Matchup is one pairing of players played repeatedly.
type Matchup struct {
	ID        string
	Black     string // player code
	White     string // player code
	BoardSize int
	Komi      float64
	MoveLimit int
	// NumberOfGames caps the games played; nil means no limit.
	NumberOfGames *int
}

// Config describes a competition.
type Config struct {
	// Name identifies the competition. It names the state files and is
	// written as the event of every game record.
	Name     string
	Players  map[string]match.Player
	Matchups []Matchup

	// RecordDir receives finished game records; empty disables them.
	RecordDir string
	// VoidRecordDir receives records of aborted games; empty disables them.
	VoidRecordDir string
	// StateDir holds the status snapshot and the results log.
	StateDir string

	WorkerCount      int
	MaxGameErrors    int
	SnapshotInterval time.Duration
	// SnapshotBackups keeps that many previous snapshots next to the
	// current one. Zero keeps none.
	SnapshotBackups int

	// SkipChecks disables the player health checks at startup.
	SkipChecks bool
	// CheckOptions apply to the startup health checks.
	CheckOptions match.CheckOptions
}

// SnapshotPath is where the competition status is stored.
func (c Config) SnapshotPath() string {
	return filepath.Join(c.StateDir, c.Name+".status")
}

// WALPath is where game results are logged between snapshots.
func (c Config) WALPath() string {
	return filepath.Join(c.StateDir, c.Name+".results.wal")
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.MaxGameErrors <= 0 {
		c.MaxGameErrors = 5
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 30 * time.Second
	}
	return c
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("competition name is required")
	}
	seen := make(map[string]bool, len(c.Matchups))
	for _, m := range c.Matchups {
		if m.ID == "" {
			return errors.New("matchup id is required")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate matchup id %q", m.ID)
		}
		seen[m.ID] = true
		for _, code := range []string{m.Black, m.White} {
			if _, ok := c.Players[code]; !ok {
				return fmt.Errorf("matchup %s: %w %q", m.ID, ErrUnknownPlayer, code)
			}
		}
	}
	return nil
}

// Deps are the collaborators a Ringmaster uses. Launcher, Store and Scorer
// are required.
type Deps struct {
	Launcher gtp.Launcher
	Store    match.RecordStore
	Scorer   match.Scorer
	// Runner plays games; nil means worker.JobRunner.
	Runner  worker.Runner
	Metrics *metrics.Collector // optional
	Logger  *slog.Logger       // nil means slog.Default()
	Now     func() time.Time   // nil means time.Now
}

// ============================================================================
// Status
// ============================================================================

// MatchupStatus summarises the progress of one matchup.
type MatchupStatus struct {
	ID           string
	Black, White string
	Limit        *int
	Issued       int
	Fixed        int
	Outstanding  int
	// Wins counts wins by player code.
	Wins     map[string]int
	Jigos    int
	Forfeits int
	Voids    int
}

// Status is a point-in-time view of a competition.
type Status struct {
	Name       string
	RunID      string
	StartedAt  time.Time // zero until Start
	Matchups   []MatchupStatus
	InFlight   int
	GameErrors int // failed games over all sessions
	Finished   bool
}
