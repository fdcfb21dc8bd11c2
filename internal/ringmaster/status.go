package ringmaster

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ChuLiYu/ringmaster/internal/snapshot"
	"github.com/ChuLiYu/ringmaster/internal/storage/wal"
	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// Status reports per-matchup progress.
func (rm *Ringmaster) Status() Status {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	byMatchup := make(map[string][]types.GameRecord)
	for _, rec := range rm.results {
		byMatchup[rec.Matchup] = append(byMatchup[rec.Matchup], rec)
	}

	st := Status{
		Name:       rm.cfg.Name,
		RunID:      rm.runID,
		StartedAt:  rm.startAt,
		InFlight:   rm.inFlight,
		GameErrors: rm.totalErrors,
		Finished:   rm.finished,
	}
	for _, g := range rm.sched.Groups() {
		m := rm.matchups[g.Code]
		ms := MatchupStatus{
			ID:          g.Code,
			Black:       m.Black,
			White:       m.White,
			Limit:       g.Limit,
			Issued:      g.Issued,
			Fixed:       g.Fixed,
			Outstanding: g.Outstanding,
			Wins:        make(map[string]int),
		}
		for _, rec := range byMatchup[g.Code] {
			switch {
			case rec.IsVoid:
				ms.Voids++
				continue
			case rec.Winner == nil:
				ms.Jigos++
				continue
			case rec.IsForfeit:
				ms.Forfeits++
			}
			ms.Wins[rec.WinnerCode()]++
		}
		st.Matchups = append(st.Matchups, ms)
	}
	return st
}

// Results returns the finished games in the order they were recorded.
func (rm *Ringmaster) Results() []types.GameRecord {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return append([]types.GameRecord(nil), rm.results...)
}

// Forfeits returns the games that ended by forfeit, sorted by game id.
func (rm *Ringmaster) Forfeits() []types.GameRecord {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var out []types.GameRecord
	for _, rec := range rm.results {
		if rec.IsForfeit {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}

// InFlight returns the number of games being played.
func (rm *Ringmaster) InFlight() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.inFlight
}

// RunID identifies this session in logs and snapshots.
func (rm *Ringmaster) RunID() string {
	return rm.runID
}

// Report is a competition's progress as read from its state files.
type Report struct {
	Status  Status
	Results []types.GameRecord
	// SavedAt is when the snapshot was written; zero if there is none.
	SavedAt time.Time
}

// ReadReport reads a competition's state without opening it for writing,
// so it may be used while the competition runs. Games in progress show as
// outstanding. log receives warnings about the state files; nil means
// slog.Default().
func ReadReport(cfg Config, log *slog.Logger) (*Report, error) {
	rm, err := newRingmaster(cfg, Deps{Logger: log})
	if err != nil {
		return nil, err
	}
	walPath := rm.cfg.WALPath()
	_, _, err = rm.restore(func(afterSeq uint64, h wal.EventHandler) error {
		return wal.ReplayFile(walPath, afterSeq, h)
	})
	if err != nil {
		return nil, err
	}

	report := &Report{Status: rm.Status(), Results: rm.Results()}
	if rm.savedAt > 0 {
		report.SavedAt = time.UnixMilli(rm.savedAt)
	}
	return report, nil
}

// Reset deletes the saved state of a competition: its snapshot, backups,
// results log and archived logs. Game records are kept. It must not be
// called while the competition is running.
func Reset(cfg Config) error {
	if err := snapshot.NewManager(cfg.SnapshotPath()).Remove(); err != nil {
		return err
	}
	archives, err := filepath.Glob(cfg.WALPath() + ".*")
	if err != nil {
		return err
	}
	for _, p := range append(archives, cfg.WALPath()) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}
