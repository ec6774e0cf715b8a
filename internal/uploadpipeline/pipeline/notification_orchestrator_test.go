package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/checkpointlog"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/pipeline"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/postprocessgate"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/provider"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/report"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/repoconfig"
)

func seedMergedMaster(t *testing.T, h harness, pctx pipeline.Context) {
	t.Helper()

	master := report.NewMaster()
	master.MergePartial(master.NextSessionID(), "upload-1", report.Partial{Chunks: map[string][]int{"a.go": {1}}})

	data, err := master.Serialize()
	require.NoError(t, err)

	require.NoError(t, h.repo.PutMaster(context.Background(), pctx.RepoID, pctx.CommitSHA, data))
}

func TestNotificationOrchestrator_NotifiesWhenGateOpens(t *testing.T) {
	pctx := pipeline.Context{RepoID: 100, CommitSHA: "shaA", ReportType: pipeline.ReportTypeCoverage}
	notify := &countingNotifier{}
	prov := fakeProvider{info: provider.CommitInfo{Message: "manual retrigger", CIStatus: provider.CIStatusSuccess, HasCIWebhook: true}}

	h := newHarness(t, pctx, prov, notify)
	seedMergedMaster(t, h, pctx)

	orchestrator := pipeline.NewNotificationOrchestrator(h.deps, pctx)
	cp := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)

	result := orchestrator.Run(context.Background(), cp, repoconfig.RepoConfig{}, 0)

	assert.Equal(t, postprocessgate.Notify, result.Notification)
	assert.Equal(t, 1, notify.notifyCalls)
}

func TestNotificationOrchestrator_SkipsWhenNoSessionsMerged(t *testing.T) {
	pctx := pipeline.Context{RepoID: 101, CommitSHA: "shaB", ReportType: pipeline.ReportTypeCoverage}
	notify := &countingNotifier{}
	prov := fakeProvider{info: provider.CommitInfo{Message: "too early", CIStatus: provider.CIStatusSuccess, HasCIWebhook: true}}

	h := newHarness(t, pctx, prov, notify)

	orchestrator := pipeline.NewNotificationOrchestrator(h.deps, pctx)
	cp := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)

	result := orchestrator.Run(context.Background(), cp, repoconfig.RepoConfig{}, 0)

	assert.Equal(t, postprocessgate.Skip, result.Notification)
	assert.Equal(t, 0, notify.notifyCalls)
}

func TestNotificationOrchestrator_LockUnavailableRetries(t *testing.T) {
	pctx := pipeline.Context{RepoID: 102, CommitSHA: "shaC", ReportType: pipeline.ReportTypeCoverage}
	notify := &countingNotifier{}

	h := newHarness(t, pctx, nil, notify)

	_, err := h.deps.Locks.Acquire(context.Background(), pctx.ManualTriggerLockName(), 0, 0)
	require.NoError(t, err)

	orchestrator := pipeline.NewNotificationOrchestrator(h.deps, pctx)
	cp := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)

	result := orchestrator.Run(context.Background(), cp, repoconfig.RepoConfig{}, 0)

	assert.True(t, result.Retry.ShouldRetry)
}
