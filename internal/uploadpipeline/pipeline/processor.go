package pipeline

import (
	"context"
	"fmt"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/lock"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/metadatastore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/processingstate"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/provider"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/retry"
)

// ProcessResult accumulates per-descriptor outcomes across a chunk,
// forwarded link-to-link along a Processor chain (the original's
// `previous_results` accumulator).
type ProcessResult struct {
	Successful  []int64
	Failed      []int64
	LastError   error
	RetryNeeded retry.Outcome
}

// Merge folds another chunk's ProcessResult into this one, preserving
// order so repeated chain links accumulate deterministically. RetryNeeded
// carries forward from whichever side asked to retry, so one descriptor's
// transient failure isn't silently dropped by a later success in the same
// chunk.
func (r ProcessResult) Merge(other ProcessResult) ProcessResult {
	retryNeeded := r.RetryNeeded
	if other.RetryNeeded.ShouldRetry {
		retryNeeded = other.RetryNeeded
	}

	return ProcessResult{
		Successful:  append(append([]int64{}, r.Successful...), other.Successful...),
		Failed:      append(append([]int64{}, r.Failed...), other.Failed...),
		LastError:   other.LastError,
		RetryNeeded: retryNeeded,
	}
}

// Processor parses one chunk of descriptors (C6 / UploadProcessorTask).
type Processor struct {
	deps *Deps
	ctx  Context
}

// NewProcessor builds a Processor for one (repo, commit, report_type).
func NewProcessor(deps *Deps, pctx Context) *Processor {
	return &Processor{deps: deps, ctx: pctx}
}

// Run processes every descriptor in chunk, acquiring the shared
// upload-processing lock once for the whole chunk (step 1), then running
// steps 2-9 per descriptor. attempt is the zero-based retry count used for
// the lock-contention backoff formula.
func (p *Processor) Run(ctx context.Context, chunk []Descriptor, previous ProcessResult, attempt int) ProcessResult {
	handle, err := p.deps.Locks.Acquire(ctx, p.ctx.ProcessingLockName(), lock.DefaultTTL, 0)
	if err != nil {
		outcome := retry.ProcessorLockPolicy().Next(attempt)
		if !outcome.ShouldRetry {
			return previous.Merge(ProcessResult{LastError: fmt.Errorf("pipeline: processor lock exhausted: %w", err)})
		}

		return previous.Merge(ProcessResult{RetryNeeded: outcome})
	}

	defer func() { _ = p.deps.Locks.Release(ctx, handle) }()

	result := ProcessResult{}

	for _, desc := range chunk {
		result = result.Merge(p.processOne(ctx, desc, attempt))
	}

	return previous.Merge(result)
}

func (p *Processor) processOne(ctx context.Context, desc Descriptor, attempt int) ProcessResult {
	state := processingstate.New(p.deps.KV, p.ctx.ProcessingSetKey(), p.ctx.ProcessedSetKey())

	err := state.MarkProcessing(ctx, []int64{desc.UploadID})
	if err != nil {
		p.deps.logger().Warn("processor: mark_processing failed", "upload_id", desc.UploadID, "error", err)
	}

	defer func() {
		clearErr := state.ClearInProgress(ctx, []int64{desc.UploadID})
		if clearErr != nil {
			p.deps.logger().Warn("processor: clear_in_progress failed", "upload_id", desc.UploadID, "error", clearErr)
		}
	}()

	raw, err := p.deps.Reports.GetRaw(ctx, desc.StoragePath)
	if err != nil {
		outcome := retry.RawFileMissingPolicy().Next(attempt)
		if outcome.ShouldRetry {
			return ProcessResult{LastError: err, RetryNeeded: outcome}
		}

		_ = p.deps.Metadata.UpdateUploadStatus(ctx, desc.UploadID, metadatastore.UploadError, "raw file missing")

		return ProcessResult{Failed: []int64{desc.UploadID}, LastError: err}
	}

	parsed, err := p.deps.Parser.Parse(ctx, raw, string(p.ctx.ReportType))
	if err != nil {
		_ = p.deps.Metadata.UpdateUploadStatus(ctx, desc.UploadID, metadatastore.UploadError, err.Error())
		_ = state.MarkProcessed(ctx, desc.UploadID)

		return ProcessResult{Failed: []int64{desc.UploadID}, LastError: fmt.Errorf("%w: %w", provider.ErrParse, err)}
	}

	err = p.deps.Intermediate.Save(ctx, desc.UploadID, parsed)
	if err != nil {
		outcome := retry.DBTransientPolicy().Next(attempt)
		if outcome.ShouldRetry {
			return ProcessResult{LastError: err, RetryNeeded: outcome}
		}

		_ = p.deps.Metadata.UpdateUploadStatus(ctx, desc.UploadID, metadatastore.UploadError, err.Error())

		return ProcessResult{Failed: []int64{desc.UploadID}, LastError: err}
	}

	err = p.deps.Metadata.UpdateUploadStatus(ctx, desc.UploadID, metadatastore.UploadProcessed, "")
	if err != nil {
		p.deps.logger().Warn("processor: update upload status failed", "upload_id", desc.UploadID, "error", err)
	}

	err = state.MarkProcessed(ctx, desc.UploadID)
	if err != nil {
		return ProcessResult{Failed: []int64{desc.UploadID}, LastError: err}
	}

	return ProcessResult{Successful: []int64{desc.UploadID}}
}
