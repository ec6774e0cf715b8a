// Package processingstate implements the per-commit ProcessingState (C3):
// two disjoint sets of upload ids tracking in-flight and completed-but-
// unmerged uploads, plus the derived should_merge/should_postprocess gates
// that drive Finisher batching.
package processingstate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
)

// MergeBatchSize bounds how many ids TakeForMerge samples at once.
const MergeBatchSize = 5

// Counts is a snapshot of set sizes used to decide merge/postprocess timing.
type Counts struct {
	Processing int64
	Processed  int64
}

// ShouldMerge reports whether a Finisher invocation should proceed with a
// merge now: either nothing is still processing, or enough has accumulated
// to justify a batch.
func (c Counts) ShouldMerge() bool {
	return c.Processing == 0 || c.Processed >= MergeBatchSize
}

// ShouldPostprocess reports whether the commit has reached a quiet point
// where no uploads remain in-flight or processed-but-unmerged, so
// notification gating may run.
func (c Counts) ShouldPostprocess() bool {
	return c.Processing == 0 && c.Processed == 0
}

// State tracks the processing/processed sets for one (repo, commit) pair.
type State struct {
	store         kvstore.Store
	processingKey string
	processedKey  string
}

// New builds a State bound to the given processing/processed set keys.
func New(store kvstore.Store, processingKey, processedKey string) *State {
	return &State{store: store, processingKey: processingKey, processedKey: processedKey}
}

// MarkProcessing adds ids to the processing set. Idempotent: already-present
// ids are unaffected.
func (s *State) MarkProcessing(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	err := s.store.SAdd(ctx, s.processingKey, idStrings(ids)...)
	if err != nil {
		return fmt.Errorf("processingstate: mark_processing: %w", err)
	}

	return nil
}

// ClearInProgress removes ids from the processing set. Safe to call even
// when an id was never added (tolerates old in-flight tasks across deploys).
func (s *State) ClearInProgress(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	err := s.store.SRem(ctx, s.processingKey, idStrings(ids)...)
	if err != nil {
		return fmt.Errorf("processingstate: clear_in_progress: %w", err)
	}

	return nil
}

// MarkProcessed atomically moves id from processing to processed. If id was
// not in processing (e.g. mid-deploy), it is simply added to processed.
func (s *State) MarkProcessed(ctx context.Context, id int64) error {
	idStr := strconv.FormatInt(id, 10)

	err := s.store.SRem(ctx, s.processingKey, idStr)
	if err != nil {
		return fmt.Errorf("processingstate: mark_processed: %w", err)
	}

	err = s.store.SAdd(ctx, s.processedKey, idStr)
	if err != nil {
		return fmt.Errorf("processingstate: mark_processed: %w", err)
	}

	return nil
}

// MarkMerged removes ids from the processed set. Remove-if-present: safe to
// call more than once for the same batch.
func (s *State) MarkMerged(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	err := s.store.SRem(ctx, s.processedKey, idStrings(ids)...)
	if err != nil {
		return fmt.Errorf("processingstate: mark_merged: %w", err)
	}

	return nil
}

// TakeForMerge samples up to max ids from the processed set. Order is not
// deterministic; callers must not rely on FIFO semantics.
func (s *State) TakeForMerge(ctx context.Context, maxIDs int64) ([]int64, error) {
	if maxIDs <= 0 {
		maxIDs = MergeBatchSize
	}

	members, err := s.store.SRandMember(ctx, s.processedKey, maxIDs)
	if err != nil {
		return nil, fmt.Errorf("processingstate: take_for_merge: %w", err)
	}

	return parseIDs(members), nil
}

// Counts returns the current sizes of the processing and processed sets.
func (s *State) Counts(ctx context.Context) (Counts, error) {
	processing, err := s.store.SCard(ctx, s.processingKey)
	if err != nil {
		return Counts{}, fmt.Errorf("processingstate: counts: %w", err)
	}

	processed, err := s.store.SCard(ctx, s.processedKey)
	if err != nil {
		return Counts{}, fmt.Errorf("processingstate: counts: %w", err)
	}

	return Counts{Processing: processing, Processed: processed}, nil
}

func idStrings(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}

	return out
}

func parseIDs(members []string) []int64 {
	out := make([]int64, 0, len(members))

	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}

		out = append(out, id)
	}

	return out
}
