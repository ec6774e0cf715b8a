package checkpointlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const envelopeKeyPrefix = "checkpoints_"

// Logger records event timestamps for one flow instance, computes subflow
// durations from them and classifies the terminal Outcome. It keeps no
// begun/ended/succeeded/failed counters.
// It is serialised into the task envelope on every enqueue and rebuilt on
// every dequeue via FromEnvelope so latency survives broker hops.
type Logger struct {
	spec   FlowSpec
	events map[string]int64 // event name -> monotonic-ish unix millis
	logger *slog.Logger
	clock  func() int64
}

// NewLogger starts a fresh checkpoint log for the given flow.
func NewLogger(spec FlowSpec, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Logger{
		spec:   spec,
		events: make(map[string]int64),
		logger: logger,
		clock:  func() int64 { return time.Now().UnixMilli() },
	}
}

// EnvelopeKey is the task-argument field name this flow's checkpoint map is
// carried under (e.g. "checkpoints_UploadFlow").
func (spec FlowSpec) EnvelopeKey() string {
	return envelopeKeyPrefix + spec.Name
}

// Log records event at the current time. Unknown events are a programmer
// error and panic, matching the original's TypeError-on-unknown-event
// behaviour. Logging the same event twice is allowed but warns unless
// ignoreRepeat is true, since a repeat usually means a task retried.
func (l *Logger) Log(event string, ignoreRepeat bool) {
	if _, ok := l.spec.Events[event]; !ok {
		panic(fmt.Sprintf("checkpointlog: unknown event %q for flow %q", event, l.spec.Name))
	}

	if _, seen := l.events[event]; seen && !ignoreRepeat {
		l.logger.Warn("checkpoint event logged more than once", "flow", l.spec.Name, "event", event)
	}

	l.events[event] = l.clock()

	for _, sf := range l.spec.Subflows {
		if sf.End != event {
			continue
		}

		begin, ok := l.events[sf.Begin]
		if !ok {
			continue
		}

		l.logger.Info("checkpoint subflow duration",
			"flow", l.spec.Name,
			"subflow", sf.Name,
			"duration_ms", l.events[event]-begin,
		)
	}
}

// SubflowDuration returns the elapsed milliseconds between a subflow's
// begin and end events, if both have been logged.
func (l *Logger) SubflowDuration(name string) (int64, bool) {
	for _, sf := range l.spec.Subflows {
		if sf.Name != name {
			continue
		}

		begin, ok := l.events[sf.Begin]
		if !ok {
			return 0, false
		}

		end, ok := l.events[sf.End]
		if !ok {
			return 0, false
		}

		return end - begin, true
	}

	return 0, false
}

// Outcome classifies the flow instance's terminal state, if any has been
// reached yet.
type Outcome int

const (
	// OutcomeInFlight means no terminal event has been logged yet.
	OutcomeInFlight Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// Outcome inspects the logged events and reports the flow's terminal state.
func (l *Logger) Outcome() Outcome {
	for event := range l.events {
		if l.spec.IsSuccess(event) {
			return OutcomeSuccess
		}
	}

	for event := range l.events {
		if _, ok := l.spec.FailureTerminal[event]; ok {
			return OutcomeFailure
		}
	}

	return OutcomeInFlight
}

// ToEnvelope serialises the event map for round-tripping across broker hops.
func (l *Logger) ToEnvelope() (json.RawMessage, error) {
	b, err := json.Marshal(l.events)
	if err != nil {
		return nil, fmt.Errorf("checkpointlog: marshal envelope: %w", err)
	}

	return b, nil
}

// FromEnvelope rebuilds a Logger from a previously-serialised event map,
// continuing the same flow instance on a different worker.
func FromEnvelope(spec FlowSpec, raw json.RawMessage, logger *slog.Logger) (*Logger, error) {
	l := NewLogger(spec, logger)

	if len(raw) == 0 {
		return l, nil
	}

	err := json.Unmarshal(raw, &l.events)
	if err != nil {
		return nil, fmt.Errorf("checkpointlog: unmarshal envelope: %w", err)
	}

	return l, nil
}
