package pipeline

import (
	"context"
	"time"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/checkpointlog"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/lock"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/postprocessgate"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/processingstate"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/report"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/repoconfig"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/retry"
)

// NotificationOrchestrator re-evaluates the notification gate for a commit
// independently of any Finisher invocation (§12 supplement: the original
// exposes this as a standalone, manually-triggerable task alongside
// UploadFinisherTask's own gating, for admin re-notify and local-upload
// "notify now" flows). It shares Finisher's postprocessgate.Evaluate rather
// than re-implementing the nine-condition check.
type NotificationOrchestrator struct {
	deps *Deps
	ctx  Context
}

// NewNotificationOrchestrator builds an orchestrator for one commit.
func NewNotificationOrchestrator(deps *Deps, pctx Context) *NotificationOrchestrator {
	return &NotificationOrchestrator{deps: deps, ctx: pctx}
}

// Run acquires the manual-trigger lock (distinct from the Finisher's
// processing lock, so an operator-triggered re-notify never contends with
// in-flight processing) and evaluates the gate using the current, already
// merged MasterReport.
func (o *NotificationOrchestrator) Run(ctx context.Context, cp *checkpointlog.Logger, cfg repoconfig.RepoConfig, attempt int) FinishResult {
	handle, err := o.deps.Locks.Acquire(ctx, o.ctx.ManualTriggerLockName(), lock.DefaultTTL, 0)
	if err != nil {
		return FinishResult{Retry: retry.RetryAfter(30*time.Second, "manual trigger lock unavailable")}
	}

	defer func() { _ = o.deps.Locks.Release(ctx, handle) }()

	state := processingstate.New(o.deps.KV, o.ctx.ProcessingSetKey(), o.ctx.ProcessedSetKey())

	counts, err := state.Counts(ctx)
	if err != nil {
		return FinishResult{Retry: retry.DBTransientPolicy().Next(attempt)}
	}

	f := &Finisher{deps: o.deps, ctx: o.ctx}

	info, infoErr := f.fetchCommitInfo(ctx)

	master, loadErr := f.loadMaster(ctx)
	if loadErr != nil {
		master = report.NewMaster()
	}

	anotherLocked, err := o.deps.Locks.IsLocked(ctx, o.ctx.NotifyLockName())
	if err != nil {
		anotherLocked = false
	}

	decision := postprocessgate.Evaluate(postprocessgate.Input{
		AnyProcessorSucceeded: master.SessionCount() > 0,
		Counts:                counts,
		AnotherPipelineLocked: anotherLocked,
		Config:                cfg,
		SessionCount:          master.SessionCount(),
		CIStatus:              info.CIStatus,
		CommitMessage:         info.Message,
		IsLocalUpload:         infoErr != nil,
	})

	switch decision {
	case postprocessgate.Notify:
		return f.notify(ctx, cp, true)
	case postprocessgate.NotifyErrorDecision:
		return f.notifyError(ctx, cp, counts, true)
	default:
		cp.Log(checkpointlog.SkippingNotification, true)

		return FinishResult{Notification: decision}
	}
}
