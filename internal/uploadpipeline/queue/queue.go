// Package queue implements the per-commit argument queue (C2): a KV list of
// pending upload descriptors, LPUSHed by the ingest tier and drained
// one-at-a-time by the Dispatcher so concurrent producers never race.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
)

// Queue drains and appends JSON-encoded upload descriptors for one
// (repo, commit, report_type) key.
type Queue struct {
	store kvstore.Store
}

// New builds a Queue over the given KV store.
func New(store kvstore.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue appends a raw JSON descriptor to the list at key.
func (q *Queue) Enqueue(ctx context.Context, key string, descriptor []byte) error {
	err := q.store.LPush(ctx, key, string(descriptor))
	if err != nil {
		return fmt.Errorf("queue: enqueue %q: %w", key, err)
	}

	return nil
}

// HasPending reports whether the list at key has at least one element.
func (q *Queue) HasPending(ctx context.Context, key string) (bool, error) {
	ok, err := q.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("queue: has_pending %q: %w", key, err)
	}

	return ok, nil
}

// Drain pops every currently-queued descriptor, calling fn for each one in
// pop order. It stops at the first empty pop, so descriptors enqueued by a
// concurrent producer after Drain starts may or may not be observed — the
// caller must tolerate at-least-once, not exactly-once, delivery.
func (q *Queue) Drain(ctx context.Context, key string, fn func(descriptor []byte) error) error {
	for {
		raw, err := q.store.LPop(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("queue: drain %q: %w", key, err)
		}

		err = fn([]byte(raw))
		if err != nil {
			return err
		}
	}
}
