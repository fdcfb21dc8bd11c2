// ============================================================================
// Ringmaster - competition coordinator
// ============================================================================
//
// Package: internal/ringmaster
// File: ringmaster.go
// Function: runs a competition to completion, surviving crashes and restarts
//
// Architecture:
//   The Ringmaster ties together:
//   - GroupScheduler: which matchup plays next and with which token
//   - WAL: results log, every finished game is logged before it is fixed
//   - Snapshot: periodic copy of scheduler state and results
//   - worker.Pool: plays the games
//
// Core loops (3 goroutines):
//   1. Dispatch Loop - issue tokens and submit games while workers are free
//   2. Result Loop   - log results, fix tokens, schedule rollbacks
//   3. Snapshot Loop - periodic snapshot, then WAL rotation
//
// Recovery (New):
//   1. loadSnapshot() - scheduler state and results of the last snapshot
//   2. SetGroups()    - apply the current matchup list and limits
//   3. replayWAL()    - results logged after that snapshot
//   4. Rollback()     - games that were running when the process died
//                       are played again
//
// Failure handling:
//   A game that fails has no result. Its token is rolled back once no
//   other game is in flight; until then nothing new is dispatched, so a
//   running game's token is never issued twice. After MaxGameErrors
//   failures the competition stops dispatching.
//
// ============================================================================

package ringmaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/ringmaster/internal/gtp"
	"github.com/ChuLiYu/ringmaster/internal/match"
	"github.com/ChuLiYu/ringmaster/internal/metrics"
	"github.com/ChuLiYu/ringmaster/internal/scheduler"
	"github.com/ChuLiYu/ringmaster/internal/snapshot"
	"github.com/ChuLiYu/ringmaster/internal/storage/wal"
	"github.com/ChuLiYu/ringmaster/internal/worker"
	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// Ringmaster coordinates one competition.
type Ringmaster struct {
	mu       sync.Mutex // guards the fields below the collaborators
	cfg      Config
	deps     Deps
	log      *slog.Logger
	matchups map[string]Matchup
	sched    *scheduler.GroupScheduler[string]
	wal      *wal.WAL
	snapshot *snapshot.Manager
	pool     *worker.Pool

	runID           string
	results         []types.GameRecord
	seen            map[string]bool // game ids in results
	inFlight        int
	sessionErrors   int
	totalErrors     int
	rollbackPending bool
	rotatedSeq      uint64 // last log sequence number archived by a rotation
	savedAt         int64  // SavedAt of the loaded snapshot

	started  bool
	stopped  bool
	finished bool
	finErr   error
	doneCh   chan struct{}
	wakeCh   chan struct{}
	stopCh   chan struct{}
	loopWg   sync.WaitGroup
	startAt  time.Time
}

// New opens the competition state in cfg.StateDir and recovers it.
// Nothing is played until Start.
func New(cfg Config, deps Deps) (*Ringmaster, error) {
	rm, err := newRingmaster(cfg, deps)
	if err != nil {
		return nil, err
	}

	walInstance, err := wal.NewWAL(rm.cfg.WALPath(), true)
	if err != nil {
		return nil, fmt.Errorf("failed to open results log: %w", err)
	}
	rm.wal = walInstance

	if err := rm.recover(); err != nil {
		walInstance.Close()
		return nil, err
	}
	return rm, nil
}

func newRingmaster(cfg Config, deps Deps) (*Ringmaster, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	rm := &Ringmaster{
		cfg:      cfg,
		deps:     deps,
		matchups: make(map[string]Matchup, len(cfg.Matchups)),
		sched:    scheduler.NewGroupScheduler[string](),
		snapshot: snapshot.NewManager(cfg.SnapshotPath()),
		pool:     worker.NewPool(cfg.WorkerCount),
		runID:    uuid.NewString(),
		seen:     make(map[string]bool),
		doneCh:   make(chan struct{}),
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	rm.log = deps.Logger.With("competition", cfg.Name, "run_id", rm.runID)
	for _, m := range cfg.Matchups {
		rm.matchups[m.ID] = m
	}
	return rm, nil
}

// ============================================================================
// Recovery
// ============================================================================

func (rm *Ringmaster) recover() error {
	start := time.Now()

	lastSeq, replayed, err := rm.restore(rm.wal.Replay)
	if err != nil {
		return err
	}
	rm.wal.AdvanceSeq(lastSeq)
	rm.rotatedSeq = lastSeq

	outstanding := 0
	for _, g := range rm.sched.Groups() {
		outstanding += g.Outstanding
	}
	rm.sched.Rollback()

	elapsed := time.Since(start)
	if rm.deps.Metrics != nil {
		rm.deps.Metrics.SetRecoveryTime(elapsed.Seconds())
	}
	rm.log.Info("Recovery completed",
		"duration", elapsed,
		"results", len(rm.results),
		"replayed", replayed,
		"rolled_back", outstanding)
	return nil
}

// restore rebuilds the scheduler and the results from the snapshot and
// the log events after it. It returns the snapshot's LastSeq and the
// number of events replayed.
func (rm *Ringmaster) restore(replay func(uint64, wal.EventHandler) error) (uint64, int, error) {
	lastSeq, err := rm.loadSnapshot()
	if err != nil {
		return 0, 0, fmt.Errorf("loadSnapshot failed: %w", err)
	}

	specs := make([]scheduler.GroupSpec[string], 0, len(rm.cfg.Matchups))
	for _, m := range rm.cfg.Matchups {
		specs = append(specs, scheduler.GroupSpec[string]{Code: m.ID, Limit: m.NumberOfGames})
	}
	rm.sched.SetGroups(specs)

	replayed, err := rm.replayWAL(replay, lastSeq)
	if err != nil {
		return 0, 0, fmt.Errorf("replayWAL failed: %w", err)
	}
	return lastSeq, replayed, nil
}

// loadSnapshot restores scheduler state and results, and returns the log
// sequence number the snapshot covers.
func (rm *Ringmaster) loadSnapshot() (uint64, error) {
	if !rm.snapshot.Exists() {
		rm.log.Debug("No snapshot found", "path", rm.snapshot.GetPath())
	}
	data, err := rm.snapshot.Load()
	if err != nil {
		return 0, err
	}
	if len(data.Scheduler) > 0 {
		var st scheduler.GroupState[string]
		if err := json.Unmarshal(data.Scheduler, &st); err != nil {
			return 0, fmt.Errorf("%w: scheduler state: %v", snapshot.ErrCorruptedSnapshot, err)
		}
		if err := rm.sched.Restore(st); err != nil {
			return 0, err
		}
	}
	for _, rec := range data.Results {
		rm.addResult(rec)
	}
	rm.totalErrors = data.GameErrors
	rm.savedAt = data.SavedAt
	return data.LastSeq, nil
}

// replayWAL applies results logged after the snapshot. Replaying a result
// that is already known is a no-op.
func (rm *Ringmaster) replayWAL(replay func(uint64, wal.EventHandler) error, afterSeq uint64) (int, error) {
	n := 0
	err := replay(afterSeq, func(event wal.Event) error {
		n++
		switch event.Type {
		case wal.EventGameResult:
			if event.Record == nil || rm.seen[event.Record.GameID] {
				return nil
			}
			rec := *event.Record
			rm.addResult(rec)
			// The token may postdate the snapshot, so it is recorded
			// rather than fixed.
			if err := rm.sched.Record(rec.Matchup, rec.Token); err != nil {
				rm.log.Warn("Replayed result does not match the schedule",
					"game_id", rec.GameID, "error", err)
			}
		case wal.EventGameError:
			rm.totalErrors++
		}
		return nil
	})
	return n, err
}

func (rm *Ringmaster) addResult(rec types.GameRecord) {
	rm.seen[rec.GameID] = true
	rm.results = append(rm.results, rec)
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start checks the players, then starts playing games.
func (rm *Ringmaster) Start(ctx context.Context) error {
	rm.mu.Lock()
	if rm.started {
		rm.mu.Unlock()
		return ErrAlreadyStarted
	}
	rm.started = true
	rm.startAt = rm.deps.Now()
	rm.mu.Unlock()

	if !rm.cfg.SkipChecks {
		if err := rm.CheckPlayers(ctx); err != nil {
			return err
		}
	}
	if rm.cfg.RecordDir != "" {
		if err := rm.deps.Store.MakeDir(ctx, rm.cfg.RecordDir); err != nil {
			return fmt.Errorf("failed to create record directory: %w", err)
		}
	}

	if err := rm.pool.Start(rm.cfg.WorkerCount, rm.deps.Runner); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	rm.loopWg.Add(3)
	go rm.dispatchLoop()
	go rm.resultLoop()
	go rm.snapshotLoop()
	rm.wake()

	rm.log.Info("Ringmaster started", "workers", rm.cfg.WorkerCount, "matchups", len(rm.cfg.Matchups))
	return nil
}

// CheckPlayers runs the health check of every player used by a matchup.
func (rm *Ringmaster) CheckPlayers(ctx context.Context) error {
	return CheckPlayers(ctx, rm.cfg, rm.deps.Launcher, rm.log)
}

// CheckPlayers checks the players of cfg concurrently, at most
// cfg.WorkerCount at a time. Each player is checked with the board size
// and komi of the first matchup it appears in. The first failure is
// returned.
func CheckPlayers(ctx context.Context, cfg Config, l gtp.Launcher, log *slog.Logger) error {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}
	if log == nil {
		log = slog.Default()
	}

	checks := make(map[string]match.PlayerCheck)
	var order []string
	for _, m := range cfg.Matchups {
		for _, code := range []string{m.Black, m.White} {
			if _, ok := checks[code]; ok {
				continue
			}
			p := cfg.Players[code]
			p.Code = code
			checks[code] = match.PlayerCheck{Player: p, BoardSize: m.BoardSize, Komi: m.Komi}
			order = append(order, code)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.WorkerCount)
	for _, code := range order {
		c := checks[code]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := match.Check(l, c, cfg.CheckOptions); err != nil {
				return err
			}
			log.Debug("Player check passed", "player", c.Player.Code)
			return nil
		})
	}
	return g.Wait()
}

// Done is closed when the competition has nothing left to play, or has
// stopped after too many game errors.
func (rm *Ringmaster) Done() <-chan struct{} {
	return rm.doneCh
}

// Err returns ErrTooManyGameErrors if the competition gave up, after Done
// is closed.
func (rm *Ringmaster) Err() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.finErr
}

// Stop stops dispatching, waits for running games, takes a final snapshot
// and closes the results log. It is safe to call more than once, and on a
// Ringmaster that was never started.
func (rm *Ringmaster) Stop() {
	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return
	}
	rm.stopped = true
	started := rm.started
	rm.mu.Unlock()

	if started {
		rm.log.Info("Stopping ringmaster...")
		close(rm.stopCh)
		// Running games finish; queued ones are dropped and their tokens
		// stay outstanding for the next session.
		rm.pool.Stop()
		rm.loopWg.Wait()
		rm.drainResults()

		if err := rm.takeSnapshot(); err != nil {
			rm.log.Error("Failed to take final snapshot", "error", err)
		}
	}

	if err := rm.wal.Close(); err != nil {
		rm.log.Error("Failed to close results log", "error", err)
	}
	rm.log.Info("Ringmaster stopped")
}

// drainResults handles results that were delivered while the pool stopped.
func (rm *Ringmaster) drainResults() {
	for {
		select {
		case r := <-rm.pool.Results():
			rm.handleResult(r)
		default:
			return
		}
	}
}

// ============================================================================
// Core loops
// ============================================================================

func (rm *Ringmaster) wake() {
	select {
	case rm.wakeCh <- struct{}{}:
	default:
	}
}

// dispatchLoop submits games whenever a worker may be free.
func (rm *Ringmaster) dispatchLoop() {
	defer rm.loopWg.Done()
	for {
		select {
		case <-rm.stopCh:
			rm.log.Debug("Dispatch loop stopped")
			return
		case <-rm.wakeCh:
			rm.dispatch()
		}
	}
}

func (rm *Ringmaster) dispatch() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}
	rm.maybeRollbackLocked()

	for !rm.rollbackPending &&
		rm.sessionErrors < rm.cfg.MaxGameErrors &&
		rm.inFlight < rm.cfg.WorkerCount {
		code, token, ok := rm.sched.Issue()
		if !ok {
			break
		}
		task := rm.newTask(code, token)
		// The task buffer holds WorkerCount entries and inFlight never
		// exceeds it, so Submit does not block.
		if err := rm.pool.Submit(task); err != nil {
			if !errors.Is(err, worker.ErrPoolClosed) {
				rm.log.Error("Failed to submit game", "game_id", task.GameID, "error", err)
			}
			return
		}
		rm.inFlight++
		if rm.deps.Metrics != nil {
			rm.deps.Metrics.RecordDispatch()
			rm.deps.Metrics.SetInFlight(rm.inFlight)
		}
		rm.log.Debug("Game dispatched", "game_id", task.GameID)
	}

	if rm.inFlight == 0 && !rm.rollbackPending {
		if rm.sessionErrors >= rm.cfg.MaxGameErrors {
			rm.finishLocked(fmt.Errorf("%w: %d", ErrTooManyGameErrors, rm.sessionErrors))
		} else {
			rm.finishLocked(nil)
		}
	}
}

// newTask builds the job for a matchup token.
func (rm *Ringmaster) newTask(code string, token int) worker.Task {
	m := rm.matchups[code]
	gameID := fmt.Sprintf("%s_%d", code, token)

	black := rm.cfg.Players[m.Black]
	black.Code = m.Black
	white := rm.cfg.Players[m.White]
	white.Code = m.White

	job := &match.Job{
		GameID:         gameID,
		Black:          black,
		White:          white,
		BoardSize:      m.BoardSize,
		MoveLimit:      m.MoveLimit,
		Komi:           m.Komi,
		RecordDir:      rm.cfg.RecordDir,
		VoidRecordDir:  rm.cfg.VoidRecordDir,
		RecordFilename: gameID + ".sgf",
		GameData:       code,
		RecordEvent:    rm.cfg.Name,
		Launcher:       rm.deps.Launcher,
		Store:          rm.deps.Store,
		Scorer:         rm.deps.Scorer,
		Logger:         rm.log.With("game_id", gameID),
		Now:            rm.deps.Now,
	}
	return worker.Task{GameID: gameID, Matchup: code, Token: token, Job: job}
}

// finishLocked closes Done once. The caller holds rm.mu.
func (rm *Ringmaster) finishLocked(err error) {
	if rm.finished {
		return
	}
	rm.finished = true
	rm.finErr = err
	close(rm.doneCh)
	if err != nil {
		rm.log.Error("Competition stopped", "error", err)
	} else {
		rm.log.Info("Competition finished", "games", len(rm.results))
	}
}

// resultLoop handles finished games until Stop.
func (rm *Ringmaster) resultLoop() {
	defer rm.loopWg.Done()
	for {
		select {
		case <-rm.stopCh:
			rm.log.Debug("Result loop stopped")
			return
		case r := <-rm.pool.Results():
			rm.handleResult(r)
			rm.wake()
		}
	}
}

// handleResult logs a finished game and fixes its token, or schedules a
// rollback for a failed one.
func (rm *Ringmaster) handleResult(r worker.Result) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.inFlight--
	if rm.deps.Metrics != nil {
		rm.deps.Metrics.SetInFlight(rm.inFlight)
	}

	if r.Err == nil && r.Match == nil {
		r.Err = fmt.Errorf("game %s: runner returned no result", r.Task.GameID)
	}
	if r.Err != nil {
		rm.sessionErrors++
		rm.totalErrors++
		rm.rollbackPending = true
		if _, err := rm.wal.AppendError(r.Task.GameID, r.Err.Error()); err != nil {
			rm.log.Error("Failed to append GAME_ERROR event", "error", err)
		}
		if rm.deps.Metrics != nil {
			rm.deps.Metrics.RecordFailed()
		}
		rm.log.Error("Game failed", "game_id", r.Task.GameID, "error", r.Err)
		rm.maybeRollbackLocked()
		return
	}

	rec := r.Match.Record(r.Task.Matchup, r.Task.Token, rm.deps.Now())
	if _, err := rm.wal.AppendResult(rec); err != nil {
		// The result is kept in memory and reaches disk with the next
		// snapshot.
		rm.log.Error("Failed to append GAME_RESULT event", "game_id", rec.GameID, "error", err)
	}
	if err := rm.sched.Fix(r.Task.Matchup, r.Task.Token); err != nil {
		rm.log.Error("Failed to fix token", "game_id", rec.GameID, "error", err)
	}
	rm.addResult(rec)

	for _, w := range r.Match.Warnings {
		rm.log.Warn(w, "game_id", rec.GameID)
	}
	for _, e := range r.Match.LogEntries {
		rm.log.Info(e, "game_id", rec.GameID)
	}
	if rm.deps.Metrics != nil {
		rm.deps.Metrics.RecordCompleted(outcomeKind(rec), rec.WinnerCode(), r.Match.Duration, rec.MoveCount)
	}
	rm.log.Info("Game finished",
		"game_id", rec.GameID,
		"result", r.Match.Outcome.Describe(),
		"moves", rec.MoveCount,
		"duration", r.Duration)

	rm.maybeRollbackLocked()
}

// maybeRollbackLocked performs a pending rollback once nothing is in
// flight. The caller holds rm.mu.
func (rm *Ringmaster) maybeRollbackLocked() {
	if !rm.rollbackPending || rm.inFlight > 0 {
		return
	}
	rm.sched.Rollback()
	rm.rollbackPending = false
	rm.log.Info("Rolled back unfinished games")
}

func outcomeKind(rec types.GameRecord) string {
	switch {
	case rec.IsVoid:
		return metrics.OutcomeVoid
	case rec.IsForfeit:
		return metrics.OutcomeForfeit
	case rec.Winner == nil:
		return metrics.OutcomeJigo
	}
	return metrics.OutcomeDecided
}

// snapshotLoop takes a snapshot periodically.
func (rm *Ringmaster) snapshotLoop() {
	defer rm.loopWg.Done()
	ticker := time.NewTicker(rm.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rm.stopCh:
			rm.log.Debug("Snapshot loop stopped")
			return
		case <-ticker.C:
			if err := rm.takeSnapshot(); err != nil {
				rm.log.Error("Failed to take snapshot", "error", err)
			}
		}
	}
}

// takeSnapshot writes the status and rotates the results log.
// rm.mu is held throughout, so no result can be logged between the
// snapshot and the rotation.
func (rm *Ringmaster) takeSnapshot() error {
	start := time.Now()
	rm.mu.Lock()
	defer rm.mu.Unlock()

	st, err := json.Marshal(rm.sched.State())
	if err != nil {
		return fmt.Errorf("failed to encode scheduler state: %w", err)
	}
	data := types.SnapshotData{
		RunID:      rm.runID,
		Scheduler:  st,
		Results:    append([]types.GameRecord(nil), rm.results...),
		GameErrors: rm.totalErrors,
		LastSeq:    rm.wal.GetLastSeq(),
		SavedAt:    rm.deps.Now().UnixMilli(),
	}
	if rm.cfg.SnapshotBackups > 0 {
		err = rm.snapshot.WriteWithBackup(data, rm.cfg.SnapshotBackups)
	} else {
		err = rm.snapshot.Write(data)
	}
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if data.LastSeq != rm.rotatedSeq {
		if err := rm.wal.Rotate(); err != nil {
			return fmt.Errorf("failed to rotate results log: %w", err)
		}
		rm.rotatedSeq = data.LastSeq
	}

	rm.log.Debug("Snapshot taken", "duration", time.Since(start), "results", len(data.Results))
	return nil
}
