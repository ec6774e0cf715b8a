package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/checkpointlog"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/lock"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/metadatastore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/retry"
)

// ErrReportNotReady wraps a failure to drain the argument queue. Run does
// not return it: it becomes part of the reason text of the fixed 60s retry
// outcome that Run hands back.
var ErrReportNotReady = errors.New("pipeline: report not ready to build")

// DispatchResult is what one Dispatcher invocation returns.
type DispatchResult struct {
	Successful    bool
	NoPendingJobs bool
	ArgumentList  []Descriptor
	Retry         retry.Outcome
}

// Dispatcher is the entry point per commit (C5 / UploadTask): it drains
// the argument queue, normalises uploads, and hands the resulting
// argument list to the caller to shape into a Processor/Finisher graph.
type Dispatcher struct {
	deps *Deps
	ctx  Context
}

// NewDispatcher builds a Dispatcher for one (repo, commit, report_type).
func NewDispatcher(deps *Deps, pctx Context) *Dispatcher {
	return &Dispatcher{deps: deps, ctx: pctx}
}

// Run executes the Dispatcher pseudosequence of §4.5, steps 1-9 (task-graph
// shaping, step 10, is left to the caller, which turns the returned
// ArgumentList into Processor and Finisher runs).
func (d *Dispatcher) Run(ctx context.Context, cp *checkpointlog.Logger, attempt int, debounce DebounceState) DispatchResult {
	cp.Log(checkpointlog.UploadTaskBegin, true)

	if debounce.AnotherDispatcherRunning && attempt == 0 {
		return DispatchResult{Retry: retry.RetryAfter(60*time.Second, "another dispatcher already running")}
	}

	handle, err := d.deps.Locks.Acquire(ctx, d.ctx.DispatchLockName(), lock.DefaultTTL, 0)
	if err != nil {
		return d.handleDispatchLockUnavailable(ctx, cp, attempt)
	}

	defer func() { _ = d.deps.Locks.Release(ctx, handle) }()

	if outcome := d.checkDebounce(ctx, debounce); outcome.ShouldRetry {
		return DispatchResult{Retry: outcome}
	}

	commit, err := d.deps.Metadata.GetCommit(ctx, d.ctx.RepoID, d.ctx.CommitSHA)
	if err != nil {
		d.deps.logger().Warn("dispatcher: commit missing, aborting", "repo_id", d.ctx.RepoID, "sha", d.ctx.CommitSHA)

		return DispatchResult{Successful: false}
	}

	_ = commit // best-effort provider refresh happens in the caller via d.deps.Provider

	descriptors, err := d.drainQueue(ctx)
	if err != nil {
		notReady := fmt.Errorf("%w: %w", ErrReportNotReady, err)
		d.deps.logger().Warn("dispatcher: queue drain failed, will retry", "error", notReady)

		return DispatchResult{Retry: retry.RetryAfter(60*time.Second, notReady.Error())}
	}

	if len(descriptors) == 0 {
		cp.Log(checkpointlog.InitialProcessingComplete, true)

		return DispatchResult{Successful: true, ArgumentList: nil}
	}

	return DispatchResult{Successful: true, ArgumentList: descriptors}
}

func (d *Dispatcher) handleDispatchLockUnavailable(ctx context.Context, cp *checkpointlog.Logger, attempt int) DispatchResult {
	hasPending, err := d.deps.Queue.HasPending(ctx, d.ctx.QueueKey())
	if err != nil {
		hasPending = true // fail open: assume work remains rather than silently dropping it
	}

	if !hasPending {
		cp.Log(checkpointlog.NoPendingJobs, true)

		return DispatchResult{Successful: true, NoPendingJobs: true}
	}

	policy := retry.DispatcherLockPolicy()

	outcome := policy.Next(attempt)
	if !outcome.ShouldRetry {
		cp.Log(checkpointlog.TooManyRetries, true)

		return DispatchResult{Successful: false}
	}

	return DispatchResult{Retry: outcome}
}

// DebounceState carries the per-commit burst-upload signal the Dispatcher
// needs to decide whether to wait for more uploads before committing to a
// task graph.
type DebounceState struct {
	AnotherDispatcherRunning bool
	LastUploadAt             time.Time
	Now                      time.Time
	DelaySeconds             int
}

func (d *Dispatcher) checkDebounce(_ context.Context, state DebounceState) retry.Outcome {
	if state.LastUploadAt.IsZero() {
		return retry.Done()
	}

	delay := time.Duration(state.DelaySeconds) * time.Second

	age := state.Now.Sub(state.LastUploadAt)
	if age >= delay {
		return retry.Done()
	}

	return retry.RetryAfter(retry.Debounce(delay, age), "debounce: burst uploads still arriving")
}

// drainQueue pops every pending descriptor, normalising redis_key blobs to
// stable storage and creating/fetching Upload rows, per §4.5 step 8.
func (d *Dispatcher) drainQueue(ctx context.Context) ([]Descriptor, error) {
	var out []Descriptor

	err := d.deps.Queue.Drain(ctx, d.ctx.QueueKey(), func(raw []byte) error {
		desc, err := ParseDescriptor(raw)
		if err != nil {
			d.deps.logger().Warn("dispatcher: dropping malformed descriptor", "error", err)

			return nil
		}

		desc, err = d.normalise(ctx, desc)
		if err != nil {
			return err
		}

		out = append(out, desc)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (d *Dispatcher) normalise(ctx context.Context, desc Descriptor) (Descriptor, error) {
	if desc.RedisKey != "" {
		blob, err := d.deps.KV.Get(ctx, desc.RedisKey)
		if err == nil {
			path, putErr := d.deps.Reports.PutBlob(ctx, d.ctx.RepoID, d.ctx.CommitSHA, []byte(blob))
			if putErr != nil {
				return desc, fmt.Errorf("pipeline: copy inline blob to storage: %w", putErr)
			}

			desc = desc.WithStoragePath(path)
		}
	}

	row, err := d.deps.Metadata.GetOrCreateUpload(ctx, metadatastore.UploadRow{
		UploadID:    desc.UploadID,
		RepoID:      d.ctx.RepoID,
		CommitSHA:   d.ctx.CommitSHA,
		StoragePath: desc.StoragePath,
		ReportCode:  desc.ReportCode,
		ReportType:  string(d.ctx.ReportType),
		Status:      metadatastore.UploadQueued,
	})
	if err != nil {
		return desc, fmt.Errorf("pipeline: get_or_create upload %d: %w", desc.UploadID, err)
	}

	desc.StoragePath = row.StoragePath

	watermark, err := d.deps.KV.Incr(ctx, d.ctx.SessionWatermarkKey(), 1)
	if err != nil {
		d.deps.logger().Warn("dispatcher: session watermark unavailable, leaving descriptor unassigned",
			"upload_id", desc.UploadID, "error", err)
	} else {
		if desc.Extra == nil {
			desc.Extra = make(map[string]any)
		}

		desc.Extra["session_watermark"] = watermark
	}

	return desc, nil
}

// Chunks partitions the argument list into groups of ChunkSize, the shape
// used for coverage's sequential chain and test-results' fan-out.
func Chunks(descriptors []Descriptor, size int) [][]Descriptor {
	if size <= 0 {
		size = ChunkSize
	}

	var chunks [][]Descriptor

	for i := 0; i < len(descriptors); i += size {
		end := min(i+size, len(descriptors))
		chunks = append(chunks, descriptors[i:end])
	}

	return chunks
}
