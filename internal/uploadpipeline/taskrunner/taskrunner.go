// Package taskrunner abstracts the broker (C10): submitting a single task,
// chaining tasks so each runs only after the previous completes, and
// fanning a set of tasks out then back in to a single continuation.
//
// The in-process Runner below is the synchronous-worker analogue of a
// Celery broker: it executes tasks immediately rather than queuing them
// for a separate worker pool, which is sufficient for the pipeline's own
// tests and for deployments that embed the worker loop in a single
// process. A production deployment backs TaskRunner with a real broker
// client that serialises Task arguments and resubmits Retry outcomes as
// delayed messages; that adapter is out of this package's scope (it is an
// external collaborator per §1).
package taskrunner

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// Result is what a task handler returns: a value or an error. The Runner
// does not reschedule a task on either.
type Result struct {
	Value any
	Err   error
}

// Task is one unit of submittable work.
type Task func(ctx context.Context) Result

// Runner submits tasks and composes them into chains and fan-out/fan-in
// graphs. MaxConcurrency bounds the worker pool used for fan-out; zero
// means unbounded.
type Runner struct {
	MaxConcurrency int
}

// New builds a Runner with the given fan-out concurrency bound.
func New(maxConcurrency int) *Runner {
	return &Runner{MaxConcurrency: maxConcurrency}
}

// Submit runs a single task to completion.
func (r *Runner) Submit(ctx context.Context, t Task) Result {
	return t(ctx)
}

// Chain runs tasks in order, stopping at the first error. Each task
// receives the same ctx; composing the accumulator value across links is
// the caller's responsibility (tasks close over their own state).
func (r *Runner) Chain(ctx context.Context, tasks ...Task) Result {
	var last Result

	for _, t := range tasks {
		last = t(ctx)
		if last.Err != nil {
			return last
		}

		select {
		case <-ctx.Done():
			return Result{Err: fmt.Errorf("taskrunner: chain cancelled: %w", ctx.Err())}
		default:
		}
	}

	return last
}

// FanOut runs tasks concurrently (bounded by MaxConcurrency), then calls
// join with every result once all have completed. This is the Processor
// parallel-fan-out / Finisher-gather shape of §4.5 step 10.
func (r *Runner) FanOut(ctx context.Context, tasks []Task, join func(results []Result) Result) Result {
	p := pool.NewWithResults[Result]().WithContext(ctx)

	if r.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(r.MaxConcurrency)
	}

	for _, t := range tasks {
		task := t

		p.Go(func(ctx context.Context) (Result, error) {
			return task(ctx), nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return Result{Err: fmt.Errorf("taskrunner: fan-out: %w", err)}
	}

	return join(results)
}
