package worker

import (
	"context"
	"time"

	"github.com/ChuLiYu/ringmaster/internal/match"
)

// Task is one game handed to the pool.
type Task struct {
	GameID  string     // "<matchup>_<token>"
	Matchup string     // scheduler group code
	Token   int        // scheduler token within the matchup
	Job     *match.Job // consumed exactly once
}

// Result is what a worker reports for a Task.
type Result struct {
	Task     Task
	Match    *match.Result // nil when Err is set
	Err      error
	Duration time.Duration
}

// Runner plays games.
type Runner interface {
	RunJob(ctx context.Context, job *match.Job) (*match.Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job *match.Job) (*match.Result, error)

// RunJob implements Runner.
func (f RunnerFunc) RunJob(ctx context.Context, job *match.Job) (*match.Result, error) {
	return f(ctx, job)
}

// JobRunner runs each job with Job.Run.
var JobRunner Runner = RunnerFunc(func(ctx context.Context, job *match.Job) (*match.Result, error) {
	return job.Run(ctx)
})
