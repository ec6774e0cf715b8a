package taskrunner_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/taskrunner"
)

func TestSubmit_RunsTaskToCompletion(t *testing.T) {
	runner := taskrunner.New(0)

	result := runner.Submit(context.Background(), func(context.Context) taskrunner.Result {
		return taskrunner.Result{Value: 42}
	})

	assert.Equal(t, 42, result.Value)
	assert.NoError(t, result.Err)
}

func TestChain_StopsAtFirstError(t *testing.T) {
	runner := taskrunner.New(0)
	boom := errors.New("boom")

	var ranThird bool

	result := runner.Chain(context.Background(),
		func(context.Context) taskrunner.Result { return taskrunner.Result{Value: 1} },
		func(context.Context) taskrunner.Result { return taskrunner.Result{Err: boom} },
		func(context.Context) taskrunner.Result { ranThird = true; return taskrunner.Result{} },
	)

	assert.ErrorIs(t, result.Err, boom)
	assert.False(t, ranThird)
}

func TestChain_ReturnsLastResultOnSuccess(t *testing.T) {
	runner := taskrunner.New(0)

	result := runner.Chain(context.Background(),
		func(context.Context) taskrunner.Result { return taskrunner.Result{Value: 1} },
		func(context.Context) taskrunner.Result { return taskrunner.Result{Value: 2} },
	)

	assert.Equal(t, 2, result.Value)
}

func TestChain_DetectsCancelledContextBetweenLinks(t *testing.T) {
	runner := taskrunner.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := runner.Chain(ctx,
		func(context.Context) taskrunner.Result { return taskrunner.Result{Value: 1} },
	)

	assert.Error(t, result.Err)
}

func TestFanOut_RunsAllTasksConcurrentlyAndJoins(t *testing.T) {
	runner := taskrunner.New(2)

	var completed atomic.Int32

	tasks := make([]taskrunner.Task, 5)
	for i := range tasks {
		tasks[i] = func(context.Context) taskrunner.Result {
			completed.Add(1)

			return taskrunner.Result{Value: 1}
		}
	}

	result := runner.FanOut(context.Background(), tasks, func(results []taskrunner.Result) taskrunner.Result {
		sum := 0
		for _, r := range results {
			sum += r.Value.(int)
		}

		return taskrunner.Result{Value: sum}
	})

	assert.Equal(t, int32(5), completed.Load())
	assert.Equal(t, 5, result.Value)
}

func TestFanOut_EmptyTasksStillCallsJoin(t *testing.T) {
	runner := taskrunner.New(0)

	joined := false
	result := runner.FanOut(context.Background(), nil, func(results []taskrunner.Result) taskrunner.Result {
		joined = true

		return taskrunner.Result{Value: len(results)}
	})

	assert.True(t, joined)
	assert.Equal(t, 0, result.Value)
}
