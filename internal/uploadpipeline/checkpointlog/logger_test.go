package checkpointlog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/checkpointlog"
)

func TestLog_UnknownEventPanics(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)

	assert.Panics(t, func() {
		l.Log("NOT_A_REAL_EVENT", false)
	})
}

func TestLog_RepeatIsAllowedWithIgnoreRepeat(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)

	l.Log(checkpointlog.UploadTaskBegin, false)
	assert.NotPanics(t, func() {
		l.Log(checkpointlog.UploadTaskBegin, true)
	})
}

func TestSubflowDuration_ComputedBetweenBeginAndEnd(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)

	l.Log(checkpointlog.UploadTaskBegin, false)
	time.Sleep(5 * time.Millisecond)
	l.Log(checkpointlog.ProcessingBegin, false)

	d, ok := l.SubflowDuration("time_before_processing")
	require.True(t, ok)
	assert.GreaterOrEqual(t, d, int64(0))
}

func TestSubflowDuration_MissingEndpointsReturnsFalse(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)
	l.Log(checkpointlog.UploadTaskBegin, false)

	_, ok := l.SubflowDuration("time_before_processing")
	assert.False(t, ok)
}

func TestSubflowDuration_UnknownSubflowReturnsFalse(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)

	_, ok := l.SubflowDuration("not_a_subflow")
	assert.False(t, ok)
}

func TestOutcome_InFlightUntilTerminalLogged(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)
	assert.Equal(t, checkpointlog.OutcomeInFlight, l.Outcome())

	l.Log(checkpointlog.ProcessingBegin, false)
	assert.Equal(t, checkpointlog.OutcomeInFlight, l.Outcome())
}

func TestOutcome_SuccessTerminal(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)
	l.Log(checkpointlog.Notified, false)

	assert.Equal(t, checkpointlog.OutcomeSuccess, l.Outcome())
}

func TestOutcome_FailureTerminal(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)
	l.Log(checkpointlog.TooManyRetries, false)

	assert.Equal(t, checkpointlog.OutcomeFailure, l.Outcome())
}

func TestToEnvelopeFromEnvelope_RoundTrips(t *testing.T) {
	l := checkpointlog.NewLogger(checkpointlog.UploadFlow, nil)
	l.Log(checkpointlog.UploadTaskBegin, false)
	l.Log(checkpointlog.ProcessingBegin, false)

	envelope, err := l.ToEnvelope()
	require.NoError(t, err)

	restored, err := checkpointlog.FromEnvelope(checkpointlog.UploadFlow, envelope, nil)
	require.NoError(t, err)

	d1, ok1 := l.SubflowDuration("time_before_processing")
	d2, ok2 := restored.SubflowDuration("time_before_processing")

	assert.Equal(t, ok1, ok2)
	assert.Equal(t, d1, d2)
}

func TestFromEnvelope_EmptyRawYieldsFreshLogger(t *testing.T) {
	restored, err := checkpointlog.FromEnvelope(checkpointlog.UploadFlow, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, checkpointlog.OutcomeInFlight, restored.Outcome())
}

func TestEnvelopeKey_IncludesFlowName(t *testing.T) {
	assert.Equal(t, "checkpoints_UploadFlow", checkpointlog.UploadFlow.EnvelopeKey())
}
