package processingstate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/processingstate"
)

func TestCounts_ShouldMerge(t *testing.T) {
	assert.True(t, processingstate.Counts{Processing: 0, Processed: 0}.ShouldMerge())
	assert.True(t, processingstate.Counts{Processing: 0, Processed: 3}.ShouldMerge())
	assert.True(t, processingstate.Counts{Processing: 2, Processed: processingstate.MergeBatchSize}.ShouldMerge())
	assert.False(t, processingstate.Counts{Processing: 2, Processed: 1}.ShouldMerge())
}

func TestCounts_ShouldPostprocess(t *testing.T) {
	assert.True(t, processingstate.Counts{Processing: 0, Processed: 0}.ShouldPostprocess())
	assert.False(t, processingstate.Counts{Processing: 1, Processed: 0}.ShouldPostprocess())
	assert.False(t, processingstate.Counts{Processing: 0, Processed: 1}.ShouldPostprocess())
}

func TestState_MarkProcessingAndClear(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemStore()
	state := processingstate.New(store, "processing", "processed")

	require.NoError(t, state.MarkProcessing(ctx, []int64{1, 2, 3}))

	counts, err := state.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Processing)
	assert.Equal(t, int64(0), counts.Processed)

	require.NoError(t, state.ClearInProgress(ctx, []int64{2}))

	counts, err = state.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Processing)
}

func TestState_ClearInProgress_ToleratesUnknownIDs(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemStore()
	state := processingstate.New(store, "processing", "processed")

	assert.NoError(t, state.ClearInProgress(ctx, []int64{999}))
}

func TestState_MarkProcessed_MovesBetweenSets(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemStore()
	state := processingstate.New(store, "processing", "processed")

	require.NoError(t, state.MarkProcessing(ctx, []int64{10}))
	require.NoError(t, state.MarkProcessed(ctx, 10))

	counts, err := state.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Processing)
	assert.Equal(t, int64(1), counts.Processed)
}

func TestState_MarkProcessed_WithoutPriorProcessing(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemStore()
	state := processingstate.New(store, "processing", "processed")

	require.NoError(t, state.MarkProcessed(ctx, 77))

	counts, err := state.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Processed)
}

func TestState_MarkMerged_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemStore()
	state := processingstate.New(store, "processing", "processed")

	require.NoError(t, state.MarkProcessed(ctx, 5))
	require.NoError(t, state.MarkMerged(ctx, []int64{5}))
	require.NoError(t, state.MarkMerged(ctx, []int64{5}))

	counts, err := state.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Processed)
}

func TestState_TakeForMerge_DefaultsBatchSize(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemStore()
	state := processingstate.New(store, "processing", "processed")

	for id := int64(1); id <= 8; id++ {
		require.NoError(t, state.MarkProcessed(ctx, id))
	}

	taken, err := state.TakeForMerge(ctx, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(taken), processingstate.MergeBatchSize)
}

func TestState_TakeForMerge_RespectsMax(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemStore()
	state := processingstate.New(store, "processing", "processed")

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, state.MarkProcessed(ctx, id))
	}

	taken, err := state.TakeForMerge(ctx, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(taken), 2)
}
