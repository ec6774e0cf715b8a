package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/pipeline"
)

func TestParseDescriptor_ExtractsKnownFields(t *testing.T) {
	desc, err := pipeline.ParseDescriptor([]byte(`{"upload_id":7,"report_code":"default","redis_key":"inline-key","extra_field":"x"}`))
	require.NoError(t, err)

	assert.Equal(t, int64(7), desc.UploadID)
	assert.Equal(t, "default", desc.ReportCode)
	assert.Equal(t, "inline-key", desc.RedisKey)
	_, hasRedisKey := desc.Extra["redis_key"]
	assert.False(t, hasRedisKey, "redis_key is promoted to its own field, not left in Extra")
	assert.Equal(t, "x", desc.Extra["extra_field"])
}

func TestParseDescriptor_RejectsMalformedJSON(t *testing.T) {
	_, err := pipeline.ParseDescriptor([]byte("not json"))
	assert.Error(t, err)
}

func TestWithStoragePath_ClearsRedisKey(t *testing.T) {
	desc := pipeline.Descriptor{UploadID: 1, RedisKey: "inline"}

	updated := desc.WithStoragePath("v4/raw/1.txt")

	assert.Equal(t, "v4/raw/1.txt", updated.StoragePath)
	assert.Empty(t, updated.RedisKey)
	assert.Equal(t, "inline", desc.RedisKey, "original descriptor must be unmodified")
}

func TestChunks_PartitionsIntoBoundedGroups(t *testing.T) {
	descriptors := make([]pipeline.Descriptor, 7)
	for i := range descriptors {
		descriptors[i] = pipeline.Descriptor{UploadID: int64(i)}
	}

	chunks := pipeline.Chunks(descriptors, 3)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 3)
	assert.Len(t, chunks[2], 1)
}

func TestChunks_DefaultsSizeWhenNonPositive(t *testing.T) {
	descriptors := make([]pipeline.Descriptor, 2)

	chunks := pipeline.Chunks(descriptors, 0)
	require.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 2)
}

func TestChunks_EmptyInputYieldsNoChunks(t *testing.T) {
	assert.Empty(t, pipeline.Chunks(nil, 5))
}
