// Package lock implements the per-commit distributed advisory lock (C1):
// mutual exclusion across worker processes for a named resource, with a
// bounded blocking wait and a caller-supplied TTL.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/codefang/internal/uploadpipeline/kvstore"
)

// ErrUnavailable is returned by Acquire when the lock could not be obtained
// within BlockingWait.
var ErrUnavailable = errors.New("lock: unavailable")

// DefaultTTL is the lock lifetime used when the caller does not override it.
const DefaultTTL = 300 * time.Second

// pollInterval bounds how often a blocking Acquire re-attempts SetNX.
const pollInterval = 100 * time.Millisecond

// Manager acquires and releases named locks backed by a kvstore.Store.
type Manager struct {
	store kvstore.Store
}

// NewManager builds a lock Manager over the given KV store.
func NewManager(store kvstore.Store) *Manager {
	return &Manager{store: store}
}

// Handle identifies a held lock so it can be released by its owner.
type Handle struct {
	name  string
	token string
}

// Acquire attempts to take the named lock, retrying at a fixed poll interval
// until blockingWait elapses. It returns ErrUnavailable on timeout, or a
// wrapped context error if ctx is cancelled first.
func (m *Manager) Acquire(ctx context.Context, name string, ttl, blockingWait time.Duration) (Handle, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	token, err := randomToken()
	if err != nil {
		return Handle{}, fmt.Errorf("lock: generate token: %w", err)
	}

	deadline := time.Now().Add(blockingWait)

	for {
		ok, err := m.store.SetNX(ctx, name, token, ttl)
		if err != nil {
			return Handle{}, fmt.Errorf("lock: acquire %q: %w", name, err)
		}

		if ok {
			return Handle{name: name, token: token}, nil
		}

		if blockingWait <= 0 || time.Now().After(deadline) {
			return Handle{}, ErrUnavailable
		}

		select {
		case <-ctx.Done():
			return Handle{}, fmt.Errorf("lock: acquire %q: %w", name, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// IsLocked reports whether a lock with the given name is currently held by
// anyone, without attempting to acquire it.
func (m *Manager) IsLocked(ctx context.Context, name string) (bool, error) {
	held, err := m.store.Exists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("lock: check %q: %w", name, err)
	}

	return held, nil
}

// Release drops the lock if it is still held by this handle's token. It is
// a no-op (not an error) if the lock already expired or was taken by
// another token in the interim.
func (m *Manager) Release(ctx context.Context, h Handle) error {
	if h.name == "" {
		return nil
	}

	current, err := m.store.Get(ctx, h.name)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("lock: release %q: %w", h.name, err)
	}

	if current != h.token {
		return nil
	}

	err = m.store.Delete(ctx, h.name)
	if err != nil {
		return fmt.Errorf("lock: release %q: %w", h.name, err)
	}

	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)

	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
