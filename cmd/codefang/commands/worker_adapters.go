package commands

import (
	"context"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/notifier"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/provider"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/report"
)

// noopParser and noopNotifier stand in for the two external collaborators
// (internal/uploadpipeline/provider.Parser, internal/uploadpipeline/notifier.Notifier)
// that package docs explicitly describe as out of this module's scope. A
// deployment that actually parses coverage/bundle/test-result payloads and
// delivers notifications supplies its own implementations when constructing
// pipeline.Deps; upload-worker's defaults only keep the command runnable
// standalone.
type noopParser struct{}

func (noopParser) Parse(_ context.Context, _ []byte, _ string) (report.Partial, error) {
	return report.Empty(), provider.ErrParse
}

type noopNotifier struct{}

func (noopNotifier) Notify(_ context.Context, _ int64, _ string) (notifier.Result, error) {
	return notifier.Result{}, nil
}

func (noopNotifier) NotifyError(_ context.Context, _ int64, _ string, _, _ int) (notifier.Result, error) {
	return notifier.Result{}, nil
}
