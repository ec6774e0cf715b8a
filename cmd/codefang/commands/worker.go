package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/checkpointlog"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/intermediatestore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/lock"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/metadatastore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/pipeline"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/queue"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/repoconfig"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/reportstore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/retry"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/taskrunner"
)

// WorkerCommand runs the upload-processing pipeline loop for one
// (repo, commit, report_type) against a Redis-backed KV store. It mirrors
// run.go's struct-plus-flags shape but, unlike a one-shot analysis run,
// loops the Dispatcher/Processor/Finisher chain until the commit settles
// or --once is set.
type WorkerCommand struct {
	redisAddr  string
	repoID     int64
	commitSHA  string
	reportType string

	ownerConfigPath  string
	repoConfigPath   string
	commitConfigPath string

	maxAttempts int
	once        bool
	fanOut      int
}

// NewWorkerCommand creates the upload-processing worker command.
func NewWorkerCommand() *cobra.Command {
	wc := &WorkerCommand{}

	cmd := &cobra.Command{
		Use:   "upload-worker",
		Short: "Process queued coverage/bundle/test-result uploads for one commit",
		Long: `Drains the argument queue for one (repo, commit, report_type), parses each
queued upload into a partial report, and merges/notifies once the commit's
uploads have all settled.

This command wires a Redis KV store, a lock manager and the zstd-compressed
intermediate report store on top of Redis. Upload metadata and master
reports live in in-memory stores for the life of the process. No git
provider is wired, so commit info is never fetched and notification is
skipped as for a local upload; the report parser rejects every payload
and the notifier sends nothing — see internal/uploadpipeline/provider,
reportstore and notifier. This command is a local/standalone default, not
a production adapter.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          wc.run,
	}

	cmd.Flags().StringVar(&wc.redisAddr, "redis-addr", "localhost:6379", "Redis server address")
	cmd.Flags().Int64Var(&wc.repoID, "repo-id", 0, "Repository id")
	cmd.Flags().StringVar(&wc.commitSHA, "commit-sha", "", "Commit SHA to process")
	cmd.Flags().StringVar(&wc.reportType, "report-type", "coverage", "Report type: coverage, bundle_analysis, or test_results")
	cmd.Flags().StringVar(&wc.ownerConfigPath, "owner-config", "", "Path to owner-level YAML config")
	cmd.Flags().StringVar(&wc.repoConfigPath, "repo-config", "", "Path to repo-level YAML config")
	cmd.Flags().StringVar(&wc.commitConfigPath, "commit-config", "", "Path to commit-level YAML config override")
	cmd.Flags().IntVar(&wc.maxAttempts, "max-attempts", 10, "Maximum Dispatcher/Processor/Finisher retry attempts before giving up")
	cmd.Flags().BoolVar(&wc.once, "once", false, "Run a single pass and exit instead of looping until the commit settles")
	cmd.Flags().IntVar(&wc.fanOut, "fan-out", 4, "Concurrency bound of the task runner's fan-out pool (the worker loop runs Processor chunks one after another for every report type)")

	cmd.AddCommand(newRequeueCommand())

	return cmd
}

// requeueCommand re-enqueues a commit's already-processed uploads for a
// fresh Dispatcher/Processor/Finisher pass, grounded on
// one_off_scripts/rerun_uploads.py's "re-run uploads that already
// completed" backfill behaviour. Where the original queried Django models
// for the upload list, this CLI takes the ids as explicit flags — the
// operator-facing equivalent of the original script's date-windowed query.
type requeueCommand struct {
	redisAddr  string
	repoID     int64
	commitSHA  string
	reportType string
	uploadIDs  []int64
	reportCode string
}

func newRequeueCommand() *cobra.Command {
	rc := &requeueCommand{}

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Re-enqueue a commit's already-processed uploads for reprocessing",
		Long: `Pushes fresh upload descriptors back onto the argument queue for one
(repo, commit, report_type), so the next upload-worker run dispatches and
processes them again. Intended for operator-triggered backfills after a
bug fix in parsing or merging, when uploads have already completed but
need to be re-run against corrected logic.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          rc.run,
	}

	cmd.Flags().StringVar(&rc.redisAddr, "redis-addr", "localhost:6379", "Redis server address")
	cmd.Flags().Int64Var(&rc.repoID, "repo-id", 0, "Repository id")
	cmd.Flags().StringVar(&rc.commitSHA, "commit-sha", "", "Commit SHA whose uploads should be re-run")
	cmd.Flags().StringVar(&rc.reportType, "report-type", "coverage", "Report type: coverage, bundle_analysis, or test_results")
	cmd.Flags().Int64SliceVar(&rc.uploadIDs, "upload-id", nil, "Upload id to re-enqueue (repeatable)")
	cmd.Flags().StringVar(&rc.reportCode, "report-code", "", "Report code to stamp on every re-enqueued descriptor")

	return cmd
}

func (rc *requeueCommand) run(cmd *cobra.Command, _ []string) error {
	if rc.commitSHA == "" {
		return fmt.Errorf("--commit-sha is required")
	}

	if len(rc.uploadIDs) == 0 {
		return fmt.Errorf("--upload-id must be given at least once")
	}

	ctx := cmd.Context()

	client := redis.NewClient(&redis.Options{Addr: rc.redisAddr})
	defer func() { _ = client.Close() }()

	kv := kvstore.NewRedisStore(client)
	q := queue.New(kv)

	pctx := pipeline.Context{
		RepoID:     rc.repoID,
		CommitSHA:  rc.commitSHA,
		ReportType: pipeline.ReportType(rc.reportType),
	}

	for _, id := range rc.uploadIDs {
		desc := pipeline.Descriptor{UploadID: id, ReportCode: rc.reportCode}

		raw, err := json.Marshal(desc)
		if err != nil {
			return fmt.Errorf("upload-worker requeue: encode descriptor %d: %w", id, err)
		}

		err = q.Enqueue(ctx, pctx.QueueKey(), raw)
		if err != nil {
			return fmt.Errorf("upload-worker requeue: enqueue %d: %w", id, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "requeued %d upload(s) for commit %s\n", len(rc.uploadIDs), rc.commitSHA)

	return nil
}

func (wc *WorkerCommand) run(cmd *cobra.Command, _ []string) error {
	if wc.commitSHA == "" {
		return fmt.Errorf("--commit-sha is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := redis.NewClient(&redis.Options{Addr: wc.redisAddr})
	defer func() { _ = client.Close() }()

	deps, err := wc.buildDeps(client, logger)
	if err != nil {
		return err
	}

	cfg, err := wc.loadConfig()
	if err != nil {
		return err
	}

	pctx := pipeline.Context{
		RepoID:     wc.repoID,
		CommitSHA:  wc.commitSHA,
		ReportType: pipeline.ReportType(wc.reportType),
	}

	return wc.loop(ctx, deps, pctx, *cfg)
}

func (wc *WorkerCommand) buildDeps(client *redis.Client, logger *slog.Logger) (*pipeline.Deps, error) {
	kv := kvstore.NewRedisStore(client)

	store, err := intermediatestore.New(kv, intermediatestore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("upload-worker: build intermediate store: %w", err)
	}

	return &pipeline.Deps{
		KV:           kv,
		Locks:        lock.NewManager(kv),
		Queue:        queue.New(kv),
		Intermediate: store,
		Metadata:     metadatastore.NewMemStore(),
		Reports:      reportstore.NewMemStore(),
		Provider:     nil,
		Parser:       noopParser{},
		Notify:       noopNotifier{},
		Runner:       taskrunner.New(wc.fanOut),
		Logger:       logger,
	}, nil
}

func (wc *WorkerCommand) loadConfig() (*repoconfig.RepoConfig, error) {
	owner, err := readConfigFile(wc.ownerConfigPath)
	if err != nil {
		return nil, err
	}

	repo, err := readConfigFile(wc.repoConfigPath)
	if err != nil {
		return nil, err
	}

	commit, err := readConfigFile(wc.commitConfigPath)
	if err != nil {
		return nil, err
	}

	cfg, err := repoconfig.Load(owner, repo, commit)
	if err != nil {
		return nil, fmt.Errorf("upload-worker: load config: %w", err)
	}

	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("upload-worker: read %s: %w", path, err)
	}

	return data, nil
}

// loop drives the Dispatcher, then chunked Processor runs, then the
// Finisher, honouring each stage's retry.Outcome until the commit settles,
// --once is set, or maxAttempts is exhausted.
func (wc *WorkerCommand) loop(ctx context.Context, deps *pipeline.Deps, pctx pipeline.Context, cfg repoconfig.RepoConfig) error {
	cp := checkpointlog.NewLogger(checkpointlog.UploadFlow, deps.Logger)

	dispatcher := pipeline.NewDispatcher(deps, pctx)
	finisher := pipeline.NewFinisher(deps, pctx)

	var pending []pipeline.Descriptor

	for attempt := 0; attempt < wc.maxAttempts; attempt++ {
		if pending == nil {
			dr := dispatcher.Run(ctx, cp, attempt, pipeline.DebounceState{Now: time.Now()})
			if dr.Retry.ShouldRetry {
				if wc.once {
					return nil
				}

				if err := wc.sleep(ctx, dr.Retry); err != nil {
					return err
				}

				continue
			}

			if !dr.Successful {
				return fmt.Errorf("upload-worker: dispatcher gave up for commit %s", wc.commitSHA)
			}

			pending = dr.ArgumentList
		}

		if len(pending) > 0 {
			processor := pipeline.NewProcessor(deps, pctx)

			result := pipeline.ProcessResult{}
			for _, chunk := range pipeline.Chunks(pending, pipeline.ChunkSize) {
				result = processor.Run(ctx, chunk, result, attempt)
			}

			if result.RetryNeeded.ShouldRetry {
				if wc.once {
					return nil
				}

				if err := wc.sleep(ctx, result.RetryNeeded); err != nil {
					return err
				}

				continue
			}

			pending = nil
		}

		fr := finisher.Run(ctx, cp, cfg, attempt)
		if fr.Retry.ShouldRetry {
			if wc.once {
				return nil
			}

			if err := wc.sleep(ctx, fr.Retry); err != nil {
				return err
			}

			continue
		}

		deps.Logger.Info("upload-worker: commit settled",
			"repo_id", wc.repoID, "sha", wc.commitSHA,
			"merged", fr.Merged, "notification", fr.Notification)

		return nil
	}

	return fmt.Errorf("upload-worker: exhausted %d attempts for commit %s without settling", wc.maxAttempts, wc.commitSHA)
}

func (wc *WorkerCommand) sleep(ctx context.Context, outcome retry.Outcome) error {
	timer := time.NewTimer(outcome.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
