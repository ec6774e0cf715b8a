// Package checkpointlog implements CheckpointLogger (C8): a flow-scoped,
// serialisable latency/outcome tracker that survives broker hops by
// round-tripping through the task argument envelope.
//
// The original Python implementation (helpers/checkpoint_logger/__init__.py)
// builds this metadata with class decorators (@failure_events,
// @success_events, @subflows, @reliability_counters) that mutate an Enum
// subclass at class-body-execution time. Per the re-architecture guidance,
// this is re-expressed here as a single static FlowSpec value declared once
// at package scope — no runtime mutation.
package checkpointlog

import "fmt"

// Subflow is a (name, begin, end) triple: a latency measurement emitted
// automatically when end is logged after begin within the same flow.
type Subflow struct {
	Name  string
	Begin string
	End   string
}

// FlowSpec declares the static shape of a flow: its full event vocabulary,
// which events are success/failure terminals, and which event pairs define
// a measurable subflow.
type FlowSpec struct {
	Name            string
	Events          map[string]struct{}
	SuccessTerminal map[string]struct{}
	FailureTerminal map[string]struct{}
	Subflows        []Subflow
}

// NewFlowSpec builds a FlowSpec from explicit event/terminal/subflow lists,
// validating that every terminal and subflow endpoint is a declared event.
func NewFlowSpec(name string, events, successEvents, failureEvents []string, subflows []Subflow) FlowSpec {
	spec := FlowSpec{
		Name:            name,
		Events:          toSet(events),
		SuccessTerminal: toSet(successEvents),
		FailureTerminal: toSet(failureEvents),
		Subflows:        subflows,
	}

	for _, ev := range successEvents {
		mustContain(spec.Events, ev, name)
	}

	for _, ev := range failureEvents {
		mustContain(spec.Events, ev, name)
	}

	for _, sf := range subflows {
		mustContain(spec.Events, sf.Begin, name)
		mustContain(spec.Events, sf.End, name)
	}

	return spec
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}

	return set
}

func mustContain(set map[string]struct{}, event, flowName string) {
	if _, ok := set[event]; !ok {
		panic(fmt.Sprintf("checkpointlog: flow %q references undeclared event %q", flowName, event))
	}
}

// IsTerminal reports whether event is a success or failure terminal.
func (f FlowSpec) IsTerminal(event string) bool {
	_, success := f.SuccessTerminal[event]
	_, failure := f.FailureTerminal[event]

	return success || failure
}

// IsSuccess reports whether event is a declared success terminal.
func (f FlowSpec) IsSuccess(event string) bool {
	_, ok := f.SuccessTerminal[event]

	return ok
}
