// Package pipeline implements the per-commit upload coordination core:
// the Dispatcher, Processor, and Finisher task bodies and the shared
// Context type that names the KV-store keys they all operate on.
package pipeline

import "github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/pipelinekeys"

// ReportType selects which parser/merge semantics and KV-key shape a
// pipeline run uses. Aliased from pipelinekeys so leaf packages can name
// key shapes without importing this package.
type ReportType = pipelinekeys.ReportType

const (
	ReportTypeCoverage       = pipelinekeys.ReportTypeCoverage
	ReportTypeBundleAnalysis = pipelinekeys.ReportTypeBundleAnalysis
	ReportTypeTestResults    = pipelinekeys.ReportTypeTestResults
)

// MergeBatchSize bounds how many intermediate reports one Finisher
// invocation holds in memory at once.
const MergeBatchSize = pipelinekeys.MergeBatchSize

// ChunkSize bounds how many upload descriptors one Processor chunk parses.
const ChunkSize = pipelinekeys.ChunkSize

// Context identifies one (repo, commit, report_type) pipeline instance and
// derives the exact KV-store key names it coordinates through.
type Context = pipelinekeys.Context

// BranchCacheKey names a cached per-branch artifact invalidated on Finisher success.
func BranchCacheKey(repoID int64, branchOrSHA string) string {
	return pipelinekeys.BranchCacheKey(repoID, branchOrSHA)
}

// IntermediateReportKey names the per-upload hash entry in the IntermediateStore.
func IntermediateReportKey(uploadID int64) string {
	return pipelinekeys.IntermediateReportKey(uploadID)
}
