// Package intermediatestore implements IntermediateStore (C4): one
// zstd-compressed, TTL-bounded KV hash entry per upload, holding the
// PartialReport produced by a Processor until a Finisher merges it.
//
// Grounded on original_source/services/processing/intermediate.py: the
// `chunks` and `report_json` hash fields, the 24h TTL, and substituting an
// empty report on TTL miss are all carried over unchanged.
package intermediatestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/pipelinekeys"
	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/report"
)

// ReportTTL is how long an intermediate report survives before a Finisher
// must tolerate it as expired and substitute an empty PartialReport.
const ReportTTL = 24 * time.Hour

const (
	fieldChunks = "chunks"
	fieldMeta   = "report_json"
)

// SizeRecorder observes pre/post compression byte sizes for the metrics
// histograms the spec requires (no correctness impact).
type SizeRecorder interface {
	RecordSize(ctx context.Context, field string, before, after int)
}

type noopRecorder struct{}

func (noopRecorder) RecordSize(context.Context, string, int, int) {}

// Store persists and retrieves PartialReports, one per upload id.
type Store struct {
	kv       kvstore.Store
	logger   *slog.Logger
	sizes    SizeRecorder
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	cache    *DecodeCache
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithSizeRecorder attaches a metrics hook that observes compressed and
// uncompressed field sizes.
func WithSizeRecorder(r SizeRecorder) Option {
	return func(s *Store) { s.sizes = r }
}

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDecodeCache attaches a bounded in-process decode cache, avoiding
// repeated zstd-decode cost when a Finisher retries load_many after a
// partial failure.
func WithDecodeCache(c *DecodeCache) Option {
	return func(s *Store) { s.cache = c }
}

// New builds an IntermediateStore over the given KV store.
func New(kv kvstore.Store, opts ...Option) (*Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("intermediatestore: build encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("intermediatestore: build decoder: %w", err)
	}

	s := &Store{
		kv:      kv,
		logger:  slog.Default(),
		sizes:   noopRecorder{},
		encoder: enc,
		decoder: dec,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Save compresses and stores a PartialReport under uploadID, setting the
// IntermediateReport TTL.
func (s *Store) Save(ctx context.Context, uploadID int64, p report.Partial) error {
	chunksRaw, err := p.SerializeChunks()
	if err != nil {
		return err
	}

	metaRaw, err := p.SerializeMeta()
	if err != nil {
		return err
	}

	chunksCompressed := s.encoder.EncodeAll(chunksRaw, nil)
	metaCompressed := s.encoder.EncodeAll(metaRaw, nil)

	s.sizes.RecordSize(ctx, fieldChunks, len(chunksRaw), len(chunksCompressed))
	s.sizes.RecordSize(ctx, fieldMeta, len(metaRaw), len(metaCompressed))

	key := pipelinekeys.IntermediateReportKey(uploadID)

	err = s.kv.HSet(ctx, key,
		fieldChunks, string(chunksCompressed),
		fieldMeta, string(metaCompressed),
	)
	if err != nil {
		return fmt.Errorf("intermediatestore: save %d: %w", uploadID, err)
	}

	err = s.kv.Expire(ctx, key, ReportTTL)
	if err != nil {
		return fmt.Errorf("intermediatestore: set ttl %d: %w", uploadID, err)
	}

	if s.cache != nil {
		s.cache.Put(uploadID, p)
	}

	return nil
}

// LoadMany fetches the PartialReport for each id, substituting an empty
// report for any id whose entry is missing (TTL expiry during a long
// stall). Order of the returned slice matches ids.
func (s *Store) LoadMany(ctx context.Context, ids []int64) ([]report.Partial, error) {
	out := make([]report.Partial, len(ids))

	for i, id := range ids {
		p, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		out[i] = p
	}

	return out, nil
}

func (s *Store) load(ctx context.Context, uploadID int64) (report.Partial, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(uploadID); ok {
			return cached, nil
		}
	}

	fields, err := s.kv.HGetAll(ctx, pipelinekeys.IntermediateReportKey(uploadID))
	if errors.Is(err, kvstore.ErrNotFound) {
		s.logger.Debug("intermediate report missing, substituting empty", "upload_id", uploadID)

		return report.Empty(), nil
	}

	if err != nil {
		return report.Partial{}, fmt.Errorf("intermediatestore: load %d: %w", uploadID, err)
	}

	chunksCompressed, metaCompressed := []byte(fields[fieldChunks]), []byte(fields[fieldMeta])

	chunksRaw, err := s.decoder.DecodeAll(chunksCompressed, nil)
	if err != nil {
		return report.Partial{}, fmt.Errorf("intermediatestore: decode chunks %d: %w", uploadID, err)
	}

	metaRaw, err := s.decoder.DecodeAll(metaCompressed, nil)
	if err != nil {
		return report.Partial{}, fmt.Errorf("intermediatestore: decode meta %d: %w", uploadID, err)
	}

	p, err := report.DeserializePartial(chunksRaw, metaRaw)
	if err != nil {
		return report.Partial{}, err
	}

	if s.cache != nil {
		s.cache.Put(uploadID, p)
	}

	return p, nil
}

// DeleteMany removes the intermediate entries for ids. A no-op for ids
// already deleted, so duplicate Finisher invocations are safe.
func (s *Store) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = pipelinekeys.IntermediateReportKey(id)
	}

	err := s.kv.Delete(ctx, keys...)
	if err != nil {
		return fmt.Errorf("intermediatestore: delete_many: %w", err)
	}

	if s.cache != nil {
		for _, id := range ids {
			s.cache.Remove(id)
		}
	}

	return nil
}
