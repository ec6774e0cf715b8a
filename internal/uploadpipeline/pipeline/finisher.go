package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/checkpointlog"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/lock"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/notifier"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/postprocessgate"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/processingstate"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/provider"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/report"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/repoconfig"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/reportstore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/retry"
)

// FinishResult is what one Finisher invocation returns.
type FinishResult struct {
	Merged       bool
	Notification postprocessgate.Decision
	NotifyResult notifier.Result
	Retry        retry.Outcome
}

// Finisher merges a commit's accumulated PartialReports into its
// MasterReport and, once the commit has gone quiet, evaluates the
// notification gate (C7 / UploadFinisherTask).
type Finisher struct {
	deps *Deps
	ctx  Context
}

// NewFinisher builds a Finisher for one (repo, commit, report_type).
func NewFinisher(deps *Deps, pctx Context) *Finisher {
	return &Finisher{deps: deps, ctx: pctx}
}

// Run executes one merge-and-maybe-notify pass. attempt is the zero-based
// retry count for the processing-lock contention backoff.
func (f *Finisher) Run(ctx context.Context, cp *checkpointlog.Logger, cfg repoconfig.RepoConfig, attempt int) FinishResult {
	handle, err := f.deps.Locks.Acquire(ctx, f.ctx.ProcessingLockName(), lock.DefaultTTL, 0)
	if err != nil {
		outcome := retry.ProcessorLockPolicy().Next(attempt)
		if !outcome.ShouldRetry {
			cp.Log(checkpointlog.TooManyRetries, true)

			return FinishResult{}
		}

		return FinishResult{Retry: outcome}
	}

	defer func() { _ = f.deps.Locks.Release(ctx, handle) }()

	state := processingstate.New(f.deps.KV, f.ctx.ProcessingSetKey(), f.ctx.ProcessedSetKey())

	counts, err := state.Counts(ctx)
	if err != nil {
		return FinishResult{Retry: retry.DBTransientPolicy().Next(attempt)}
	}

	if !counts.ShouldMerge() {
		return FinishResult{}
	}

	merged, err := f.merge(ctx, state)
	if err != nil {
		f.deps.logger().Warn("finisher: merge failed", "repo_id", f.ctx.RepoID, "sha", f.ctx.CommitSHA, "error", err)

		return FinishResult{Retry: retry.DBTransientPolicy().Next(attempt)}
	}

	cp.Log(checkpointlog.BatchProcessingComplete, true)

	counts, err = state.Counts(ctx)
	if err != nil {
		return FinishResult{Merged: merged}
	}

	if !counts.ShouldPostprocess() {
		return FinishResult{Merged: merged}
	}

	cp.Log(checkpointlog.ProcessingComplete, true)

	return f.postprocess(ctx, cp, cfg, counts, attempt, merged)
}

// merge takes one batch of processed-but-unmerged uploads, folds them into
// the commit's MasterReport, and persists the result. Safe to call again
// for the same batch: MarkMerged and DeleteMany are both remove-if-present.
func (f *Finisher) merge(ctx context.Context, state *processingstate.State) (bool, error) {
	ids, err := state.TakeForMerge(ctx, MergeBatchSize)
	if err != nil {
		return false, fmt.Errorf("pipeline: take_for_merge: %w", err)
	}

	if len(ids) == 0 {
		return false, nil
	}

	partials, err := f.deps.Intermediate.LoadMany(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("pipeline: load_many: %w", err)
	}

	master, err := f.loadMaster(ctx)
	if err != nil {
		return false, err
	}

	for i, id := range ids {
		master.MergePartial(master.NextSessionID(), fmt.Sprintf("upload-%d", id), partials[i])
	}

	f.applyDiffBestEffort(ctx, master)

	serialized, err := master.Serialize()
	if err != nil {
		return false, fmt.Errorf("pipeline: serialize master: %w", err)
	}

	err = f.deps.Reports.PutMaster(ctx, f.ctx.RepoID, f.ctx.CommitSHA, serialized)
	if err != nil {
		return false, fmt.Errorf("pipeline: put_master: %w", err)
	}

	err = state.MarkMerged(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("pipeline: mark_merged: %w", err)
	}

	err = f.deps.Intermediate.DeleteMany(ctx, ids)
	if err != nil {
		f.deps.logger().Warn("finisher: delete_many intermediate reports failed", "error", err)
	}

	_ = f.deps.KV.Delete(ctx, BranchCacheKey(f.ctx.RepoID, f.ctx.CommitSHA)) // best-effort cache invalidation

	return true, nil
}

func (f *Finisher) loadMaster(ctx context.Context) (*report.Master, error) {
	raw, err := f.deps.Reports.GetMaster(ctx, f.ctx.RepoID, f.ctx.CommitSHA)
	if errors.Is(err, reportstore.ErrNotFound) {
		return report.NewMaster(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("pipeline: get_master: %w", err)
	}

	master, err := report.DeserializeMaster(raw)
	if err != nil {
		return nil, fmt.Errorf("pipeline: deserialize master: %w", err)
	}

	return master, nil
}

// applyDiffBestEffort enriches the master with provider-supplied added-line
// hints. A FetchDiff failure never fails the merge; it is logged and skipped.
func (f *Finisher) applyDiffBestEffort(ctx context.Context, master *report.Master) {
	if f.deps.Provider == nil {
		return
	}

	added, err := f.deps.Provider.FetchDiff(ctx, f.ctx.RepoID, "", f.ctx.CommitSHA)
	if err != nil {
		f.deps.logger().Debug("finisher: fetch_diff unavailable, skipping enrichment", "error", err)

		return
	}

	master.ApplyDiff(added)
}

// postprocess evaluates the notification gate and, when it resolves to
// Notify/NotifyErrorDecision, submits the corresponding Notifier call.
func (f *Finisher) postprocess(
	ctx context.Context,
	cp *checkpointlog.Logger,
	cfg repoconfig.RepoConfig,
	counts processingstate.Counts,
	attempt int,
	merged bool,
) FinishResult {
	anotherLocked, err := f.deps.Locks.IsLocked(ctx, f.ctx.NotifyLockName())
	if err != nil {
		anotherLocked = false
	}

	info, err := f.fetchCommitInfo(ctx)

	master, loadErr := f.loadMaster(ctx)
	if loadErr != nil {
		master = report.NewMaster()
	}

	decision := postprocessgate.Evaluate(postprocessgate.Input{
		AnyProcessorSucceeded: true,
		Counts:                counts,
		AnotherPipelineLocked: anotherLocked,
		Config:                cfg,
		SessionCount:          master.SessionCount(),
		CIStatus:              info.CIStatus,
		CommitMessage:         info.Message,
		IsLocalUpload:         err != nil,
	})

	switch decision {
	case postprocessgate.Skip:
		cp.Log(checkpointlog.SkippingNotification, true)

		return FinishResult{Merged: merged, Notification: decision}
	case postprocessgate.WaitToNotify:
		if info.HasCIWebhook {
			return FinishResult{Merged: merged, Retry: retry.NotifierWaitForCIWebhookPolicy().Next(attempt)}
		}

		return FinishResult{Merged: merged, Retry: retry.NotifierWaitForCINoWebhookPolicy().Next(attempt)}
	case postprocessgate.NotifyErrorDecision:
		return f.notifyError(ctx, cp, counts, merged)
	case postprocessgate.Notify:
		return f.notify(ctx, cp, merged)
	default:
		return FinishResult{Merged: merged, Notification: decision}
	}
}

func (f *Finisher) fetchCommitInfo(ctx context.Context) (provider.CommitInfo, error) {
	if f.deps.Provider == nil {
		return provider.CommitInfo{}, provider.ErrParse
	}

	return f.deps.Provider.FetchCommitInfo(ctx, f.ctx.RepoID, f.ctx.CommitSHA)
}

func (f *Finisher) notify(ctx context.Context, cp *checkpointlog.Logger, merged bool) FinishResult {
	handle, err := f.deps.Locks.Acquire(ctx, f.ctx.NotifyLockName(), lock.DefaultTTL, 0)
	if err != nil {
		cp.Log(checkpointlog.NotifLockError, true)

		return FinishResult{Merged: merged, Notification: postprocessgate.Notify}
	}

	defer func() { _ = f.deps.Locks.Release(ctx, handle) }()

	result, err := f.deps.Notify.Notify(ctx, f.ctx.RepoID, f.ctx.CommitSHA)
	if err != nil {
		cp.Log(checkpointlog.NotifGitServiceError, true)

		return FinishResult{Merged: merged, Notification: postprocessgate.Notify}
	}

	cp.Log(checkpointlog.Notified, true)

	return FinishResult{Merged: merged, Notification: postprocessgate.Notify, NotifyResult: result}
}

func (f *Finisher) notifyError(ctx context.Context, cp *checkpointlog.Logger, counts processingstate.Counts, merged bool) FinishResult {
	handle, err := f.deps.Locks.Acquire(ctx, f.ctx.NotifyLockName(), lock.DefaultTTL, 0)
	if err != nil {
		cp.Log(checkpointlog.NotifLockError, true)

		return FinishResult{Merged: merged, Notification: postprocessgate.NotifyErrorDecision}
	}

	defer func() { _ = f.deps.Locks.Release(ctx, handle) }()

	failed := int(counts.Processing)

	result, err := f.deps.Notify.NotifyError(ctx, f.ctx.RepoID, f.ctx.CommitSHA, failed, failed)
	if err != nil {
		cp.Log(checkpointlog.NotifErrorNoReport, true)

		return FinishResult{Merged: merged, Notification: postprocessgate.NotifyErrorDecision}
	}

	cp.Log(checkpointlog.Notified, true)

	return FinishResult{Merged: merged, Notification: postprocessgate.NotifyErrorDecision, NotifyResult: result}
}
