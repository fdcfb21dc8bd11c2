// ============================================================================
// Ringmaster Worker - game execution unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: each Worker runs in its own goroutine and plays one game at a time
//
// How it works:
//   1. Receive a task from taskCh (blocking wait)
//   2. Play the game through the Runner
//   3. Send the result to resultCh
//   4. Repeat until the pool stops
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ select taskCh / stopCh       │   │
//   │  │   ├─ runner.RunJob(job)      │   │
//   │  │   ├─ recover() from panics   │   │
//   │  │   └─ send result to resultCh │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// A game is never interrupted once started; there is no mid-game timeout.
// Engines that hang are the transport's problem.
//
// A game that finishes after Stop still delivers its result; the caller
// drains Results once Stop returns. Games still queued at Stop are never
// started.
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"time"
)

// Worker represents a game execution unit
type Worker struct {
	id       int           // used for logging
	runner   Runner        // plays the game
	taskCh   <-chan Task   // receives games to play
	resultCh chan<- Result // reports finished games
	stopCh   <-chan struct{}
}

func newWorker(id int, runner Runner, taskCh <-chan Task, resultCh chan<- Result, stopCh <-chan struct{}) *Worker {
	return &Worker{
		id:       id,
		runner:   runner,
		taskCh:   taskCh,
		resultCh: resultCh,
		stopCh:   stopCh,
	}
}

// Run is the main loop of the Worker.
func (w *Worker) Run() {
	for {
		select {
		case <-w.stopCh:
			return
		case task := <-w.taskCh:
			if w.stopping() {
				return
			}
			// A finished game is always reported, even after Stop. The
			// result buffer holds one result per worker, so this send does
			// not block once the reader has gone.
			w.resultCh <- w.execute(task)
		}
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// execute plays one game, turning a runner panic into an error.
func (w *Worker) execute(task Task) (result Result) {
	start := time.Now()
	result.Task = task
	defer func() {
		if r := recover(); r != nil {
			result.Match = nil
			result.Err = fmt.Errorf("worker %d: panic running game %s: %v", w.id, task.GameID, r)
		}
		result.Duration = time.Since(start)
	}()

	result.Match, result.Err = w.runner.RunJob(context.Background(), task.Job)
	return result
}
