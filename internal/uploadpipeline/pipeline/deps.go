package pipeline

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/intermediatestore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/lock"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/metadatastore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/notifier"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/provider"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/queue"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/reportstore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/taskrunner"
)

// Deps bundles every collaborator the pipeline's task bodies need. It
// replaces the original's module-level mutable globals (config, DB session
// factory, lock manager) per the re-architecture guidance: one Deps value
// is built once per worker process and threaded explicitly into every task
// handler, rather than reached for via package state.
type Deps struct {
	KV            kvstore.Store
	Locks         *lock.Manager
	Queue         *queue.Queue
	Intermediate  *intermediatestore.Store
	Metadata      metadatastore.Store
	Reports       reportstore.Store
	Provider      provider.Client
	Parser        provider.Parser
	Notify        notifier.Notifier
	Runner        *taskrunner.Runner
	Logger        *slog.Logger
	Tracer        trace.Tracer
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}

	return slog.Default()
}

func (d *Deps) tracer() trace.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}

	return nooptrace.NewTracerProvider().Tracer("uploadpipeline")
}
