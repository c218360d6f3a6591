package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/auditflow/api/internal/infra/llm"
	"github.com/auditflow/api/pkg/domain/fingerprint"
	"github.com/auditflow/api/pkg/domain/shared"
)

type memFingerprintStore struct {
	mu      sync.Mutex
	items   map[string]fingerprint.Fingerprint
	upserts int
	failGet error
}

func newMemFingerprintStore() *memFingerprintStore {
	return &memFingerprintStore{items: make(map[string]fingerprint.Fingerprint)}
}

func (s *memFingerprintStore) key(repoID int64, path string) string {
	return fmt.Sprintf("%d|%s", repoID, path)
}

func (s *memFingerprintStore) Get(_ context.Context, repoID int64, path string) (*fingerprint.Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	fp, ok := s.items[s.key(repoID, path)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &fp, nil
}

func (s *memFingerprintStore) Upsert(_ context.Context, fp *fingerprint.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[s.key(fp.RepoID, fp.Path)] = *fp
	s.upserts++
	return nil
}

func (s *memFingerprintStore) snapshot() map[string]fingerprint.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]fingerprint.Fingerprint, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	respond func(req llm.CompletionRequest) (string, error)
}

func (p *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	content, err := p.respond(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: content}, nil
}

func (p *fakeProvider) Name() string    { return "fake" }
func (p *fakeProvider) Model() string   { return "fake-1" }
func (p *fakeProvider) Validate() error { return nil }

var errServiceDown = errors.New("service unavailable")
