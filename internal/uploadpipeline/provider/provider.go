// Package provider defines the ProviderClient and ReportParser
// external-collaborator interfaces: git-provider adapters and raw-report
// parsers are deliberately out of this module's scope, specified only
// through the interfaces the core invokes.
package provider

import (
	"context"
	"errors"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/report"
)

// ErrParse is returned by ReportParser.Parse on malformed raw content; the
// Processor captures this without failing the task.
var ErrParse = errors.New("provider: parse error")

// CIStatus is the known-or-unknown CI state of a commit, used by the
// notification gate.
type CIStatus int

const (
	CIStatusUnknown CIStatus = iota
	CIStatusPending
	CIStatusSuccess
	CIStatusFailure
)

// CommitInfo is the subset of provider-fetched commit metadata the core
// reads during Dispatcher best-effort refresh and notification gating.
type CommitInfo struct {
	Message      string
	CIStatus     CIStatus
	HasCIWebhook bool
}

// Client is the pluggable git-provider adapter. All methods are
// best-effort from the pipeline's point of view: failures are logged and
// degrade functionality (e.g. no diff applied) rather than failing a task.
type Client interface {
	FetchCommitInfo(ctx context.Context, repoID int64, commitSHA string) (CommitInfo, error)
	FetchDiff(ctx context.Context, repoID int64, baseSHA, headSHA string) (addedLines map[string][]int, err error)
	EnsureWebhook(ctx context.Context, repoID int64) error
}

// Parser turns raw uploaded bytes into a PartialReport.
type Parser interface {
	Parse(ctx context.Context, raw []byte, reportType string) (report.Partial, error)
}
