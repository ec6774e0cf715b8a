// Package kvstore defines the shared KV-store contract the upload pipeline
// coordinates through: string GET/SET/EX, list LPUSH/LPOP, set membership,
// hash HSET/HGETALL, and TTL-bounded locks.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and HGetAll when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the logically-Redis-shaped contract every pipeline component
// coordinates through. Implementations must be safe for concurrent use by
// multiple worker processes.
type Store interface {
	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key with an optional TTL (zero means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets value at key only if it does not already exist, returning
	// whether the set happened. Used to implement locks.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes key. No-op if absent.
	Delete(ctx context.Context, keys ...string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// LPush inserts value at the head of the list at key (Redis LPUSH
	// semantics). LPop takes from the same head end, so a list filled with
	// LPush and drained with LPop is read newest-first (LIFO), not FIFO.
	LPush(ctx context.Context, key, value string) error
	// LPop removes and returns the head element, or ErrNotFound if empty.
	LPop(ctx context.Context, key string) (string, error)
	// LLen returns the number of queued elements.
	LLen(ctx context.Context, key string) (int64, error)

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error
	// SRem removes members from the set at key.
	SRem(ctx context.Context, key string, members ...string) error
	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)
	// SCard returns the cardinality of the set at key.
	SCard(ctx context.Context, key string) (int64, error)
	// SRandMember returns up to count distinct members chosen arbitrarily.
	SRandMember(ctx context.Context, key string, count int64) ([]string, error)
	// SIsMember reports whether member is present in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// HSet sets hash field values at key, replacing any prior fields of the
	// same name. fields must have an even length ({field, value, field, value, ...}).
	HSet(ctx context.Context, key string, fields ...string) error
	// HGetAll returns every field/value pair at key, or ErrNotFound.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// Expire sets (or refreshes) the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Incr atomically increments the integer at key by delta and returns the
	// new value. Used for the parallel session-id watermark.
	Incr(ctx context.Context, key string, delta int64) (int64, error)
}
