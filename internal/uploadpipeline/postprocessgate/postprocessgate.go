// Package postprocessgate hosts the single notification-gating predicate
// of spec §4.8. Both the Finisher (pipeline.Finisher) and the standalone
// NotificationOrchestrator (pipeline.NotificationOrchestrator, §12) call
// Evaluate rather than duplicating the nine-condition check — resolving
// the distilled spec's third Open Question ("the physical split to the
// implementer") by keeping exactly one implementation of the gate.
package postprocessgate

import (
	"regexp"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/processingstate"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/provider"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/repoconfig"
)

// ciSkipPattern matches commit-skip markers like "[ci skip]", "[skip ci]",
// "[  -  ]"; carried over verbatim from spec §4.8.
var ciSkipPattern = regexp.MustCompile(`\[(ci|skip| |-){3,}\]`)

// Decision is the outcome of evaluating the gate.
type Decision int

const (
	// Notify means the caller should submit the normal Notifier task now.
	Notify Decision = iota
	// NotifyErrorDecision means the caller should submit Notifier.NotifyError
	// instead (CI failed and require_ci_to_pass is set).
	NotifyErrorDecision
	// Skip means no notification should be sent, and this is not an error
	// (e.g. manual_trigger, below after_n_builds, CI-skip commit, local upload).
	Skip
	// WaitToNotify means the caller should retry later per §4.10's
	// wait-for-CI retry policies.
	WaitToNotify
)

// Input bundles everything Evaluate needs; every field mirrors one of the
// nine conjunctive conditions in spec §4.8.
type Input struct {
	AnyProcessorSucceeded bool
	Counts                processingstate.Counts
	AnotherPipelineLocked bool
	Config                repoconfig.RepoConfig
	SessionCount          int
	CIStatus              provider.CIStatus
	CommitMessage         string
	IsLocalUpload         bool
}

// Evaluate applies the nine conjunctive conditions of §4.8 in order,
// returning the first non-Notify decision reached.
func Evaluate(in Input) Decision {
	if !in.AnyProcessorSucceeded {
		return Skip
	}

	if !in.Counts.ShouldPostprocess() {
		return Skip
	}

	if in.AnotherPipelineLocked {
		return Skip
	}

	if in.Config.Notify.ManualTrigger {
		return Skip
	}

	if in.SessionCount < in.Config.Notify.AfterNBuilds {
		return Skip
	}

	if in.CIStatus == provider.CIStatusUnknown && in.Config.Notify.WaitForCI {
		return WaitToNotify
	}

	if in.CIStatus == provider.CIStatusFailure && in.Config.RequireCIToPass {
		return NotifyErrorDecision
	}

	if ciSkipPattern.MatchString(in.CommitMessage) {
		return Skip
	}

	if in.IsLocalUpload {
		return Skip
	}

	return Notify
}
