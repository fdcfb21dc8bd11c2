// ============================================================================
// Ringmaster Worker Pool - concurrent game executor
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: manages the Worker goroutines and hands games to them
//
// Architecture:
//   ┌─────────────┐
//   │ Ringmaster  │ --Submit()--> taskCh
//   └─────────────┘
//         ↑
//   ReceiveResult()
//         ↑
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ resultCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// Lifecycle:
//   1. NewPool() - create the pool and its channels
//   2. Start(n, runner) - start n workers
//   3. Submit(task) - queue a game
//   4. ReceiveResult() - collect a finished game
//   5. Stop() - close stopCh and wait for running games to finish
//
// taskCh is never closed. Workers leave their loop on stopCh, so Submit
// can never send on a closed channel.
//
// ============================================================================

package worker

import (
	"errors"
	"sync"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrPoolClosed means the pool has been stopped.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted means Start has not been called.
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolStarted means Start was called twice.
	ErrPoolStarted = errors.New("pool already started")
)

// ============================================================================
// Pool
// ============================================================================

// Pool runs games on a fixed number of workers.
type Pool struct {
	workers  []*Worker
	taskCh   chan Task
	resultCh chan Result
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	mu       sync.Mutex // guards started and stopped
}

// NewPool creates a pool whose task and result channels hold bufferSize
// entries.
func NewPool(bufferSize int) *Pool {
	return &Pool{
		workers:  make([]*Worker, 0),
		taskCh:   make(chan Task, bufferSize),
		resultCh: make(chan Result, bufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches workerCount workers, each playing games through runner.
func (p *Pool) Start(workerCount int, runner Runner) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolStarted
	}
	if runner == nil {
		runner = JobRunner
	}
	// Every worker must be able to park its last result after Stop.
	if cap(p.resultCh) < workerCount {
		p.resultCh = make(chan Result, workerCount)
	}

	for i := 0; i < workerCount; i++ {
		w := newWorker(i, runner, p.taskCh, p.resultCh, p.stopCh)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(w)
	}

	p.started = true
	return nil
}

// Submit queues a game. It blocks while the task buffer is full.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case p.taskCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	}
}

// ReceiveResult waits for the next finished game. After Stop it returns
// the results still buffered, then ErrPoolClosed.
func (p *Pool) ReceiveResult() (Result, error) {
	select {
	case result := <-p.resultCh:
		return result, nil
	default:
	}
	select {
	case result := <-p.resultCh:
		return result, nil
	case <-p.stopCh:
		return Result{}, ErrPoolClosed
	}
}

// Results exposes the result channel for use in select statements.
func (p *Pool) Results() <-chan Result {
	return p.resultCh
}

// Stop stops the pool. Games already running are played to the end and
// their results stay buffered in Results; games still queued are
// discarded.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

// GetWorkerCount returns the number of workers.
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted reports whether Start has been called.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
