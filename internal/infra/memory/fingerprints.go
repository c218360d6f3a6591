package memory

import (
	"context"
	"sync"

	"github.com/auditflow/api/pkg/domain/fingerprint"
	"github.com/auditflow/api/pkg/domain/shared"
)

type fingerprintKey struct {
	repoID int64
	path   string
}

// FingerprintStore is an in-memory fingerprint.Store.
type FingerprintStore struct {
	mu    sync.RWMutex
	items map[fingerprintKey]fingerprint.Fingerprint
}

// NewFingerprintStore creates an empty FingerprintStore.
func NewFingerprintStore() *FingerprintStore {
	return &FingerprintStore{items: make(map[fingerprintKey]fingerprint.Fingerprint)}
}

// Get returns the fingerprint of (repoID, path).
func (s *FingerprintStore) Get(_ context.Context, repoID int64, path string) (*fingerprint.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.items[fingerprintKey{repoID, path}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &fp, nil
}

// Upsert creates or replaces the fingerprint of (fp.RepoID, fp.Path).
func (s *FingerprintStore) Upsert(_ context.Context, fp *fingerprint.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[fingerprintKey{fp.RepoID, fp.Path}] = *fp
	return nil
}

// Len returns the number of stored fingerprints.
func (s *FingerprintStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
