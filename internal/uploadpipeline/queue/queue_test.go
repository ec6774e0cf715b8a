package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/queue"
)

func TestEnqueueAndHasPending(t *testing.T) {
	ctx := context.Background()
	q := queue.New(kvstore.NewMemStore())

	pending, err := q.HasPending(ctx, "uploads/1/abc")
	require.NoError(t, err)
	assert.False(t, pending)

	require.NoError(t, q.Enqueue(ctx, "uploads/1/abc", []byte("descriptor-1")))

	pending, err = q.HasPending(ctx, "uploads/1/abc")
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestDrain_VisitsEveryEnqueuedDescriptor(t *testing.T) {
	ctx := context.Background()
	q := queue.New(kvstore.NewMemStore())

	require.NoError(t, q.Enqueue(ctx, "uploads/1/abc", []byte("first")))
	require.NoError(t, q.Enqueue(ctx, "uploads/1/abc", []byte("second")))
	require.NoError(t, q.Enqueue(ctx, "uploads/1/abc", []byte("third")))

	var seen []string
	err := q.Drain(ctx, "uploads/1/abc", func(b []byte) error {
		seen = append(seen, string(b))

		return nil
	})
	require.NoError(t, err)

	// LPush/LPop share the same end, so Drain visits descriptors in reverse
	// enqueue order; callers must not rely on FIFO delivery.
	assert.ElementsMatch(t, []string{"first", "second", "third"}, seen)
	assert.Len(t, seen, 3)

	pending, err := q.HasPending(ctx, "uploads/1/abc")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestDrain_EmptyQueueIsNoop(t *testing.T) {
	ctx := context.Background()
	q := queue.New(kvstore.NewMemStore())

	called := false
	err := q.Drain(ctx, "uploads/1/abc", func(b []byte) error {
		called = true

		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestDrain_PropagatesCallbackError(t *testing.T) {
	ctx := context.Background()
	q := queue.New(kvstore.NewMemStore())

	require.NoError(t, q.Enqueue(ctx, "uploads/1/abc", []byte("first")))

	boom := errors.New("boom")
	err := q.Drain(ctx, "uploads/1/abc", func(b []byte) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
