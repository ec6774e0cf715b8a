// Package reportstore defines the ReportStore external-collaborator
// interface: object-store persistence of raw uploads and merged master
// reports, plus an in-memory fake for tests.
package reportstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when the requested object is absent.
var ErrNotFound = errors.New("reportstore: object not found")

// Store persists raw upload bytes and master-report bytes, keyed by
// implementation-defined paths (the core treats these as opaque).
type Store interface {
	GetRaw(ctx context.Context, storagePath string) ([]byte, error)
	DeleteRaw(ctx context.Context, storagePath string) error

	GetMaster(ctx context.Context, repoID int64, commitSHA string) ([]byte, error)
	PutMaster(ctx context.Context, repoID int64, commitSHA string, data []byte) error

	// PutBlob copies a short-lived inline blob (e.g. a redis_key payload)
	// to stable storage and returns its storage path.
	PutBlob(ctx context.Context, repoID int64, commitSHA string, data []byte) (storagePath string, err error)
}

// MemStore is an in-memory Store used by the pipeline's own tests.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	masters map[string][]byte
	seq     int
}

// NewMemStore creates an empty in-memory object store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte), masters: make(map[string][]byte)}
}

// PutRaw seeds a raw upload blob at storagePath, as the ingest tier would.
func (s *MemStore) PutRaw(storagePath string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[storagePath] = append([]byte(nil), data...)
}

func (s *MemStore) GetRaw(_ context.Context, storagePath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[storagePath]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), data...), nil
}

func (s *MemStore) DeleteRaw(_ context.Context, storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, storagePath)

	return nil
}

func masterKey(repoID int64, commitSHA string) string {
	return fmt.Sprintf("%d/%s", repoID, commitSHA)
}

func (s *MemStore) GetMaster(_ context.Context, repoID int64, commitSHA string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.masters[masterKey(repoID, commitSHA)]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), data...), nil
}

func (s *MemStore) PutMaster(_ context.Context, repoID int64, commitSHA string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.masters[masterKey(repoID, commitSHA)] = append([]byte(nil), data...)

	return nil
}

func (s *MemStore) PutBlob(_ context.Context, repoID int64, commitSHA string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	path := fmt.Sprintf("v4/raw/%d/%s/%d.txt", repoID, commitSHA, s.seq)
	s.objects[path] = append([]byte(nil), data...)

	return path, nil
}

// Equal is a small test helper comparing two stored byte slices.
func Equal(a, b []byte) bool { return bytes.Equal(a, b) }
