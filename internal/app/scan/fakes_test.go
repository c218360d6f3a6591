package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/auditflow/api/internal/infra/llm"
	"github.com/auditflow/api/internal/infra/memory"
	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/domain/shared"
)

var errBoom = errors.New("boom")

type recordingPublisher struct {
	mu     sync.Mutex
	events []scanjob.StatusEvent
	users  []string
	err    error
}

func (p *recordingPublisher) PublishStatus(_ context.Context, userID string, ev scanjob.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	p.users = append(p.users, userID)
	return p.err
}

func (p *recordingPublisher) statuses() []scanjob.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]scanjob.Status, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Status)
	}
	return out
}

type dirWorkspace struct {
	root   string
	closed bool
}

func (w *dirWorkspace) Root() string { return w.root }
func (w *dirWorkspace) Close() error {
	w.closed = true
	return nil
}

type dirMaterializer struct {
	root      string
	err       error
	workspace *dirWorkspace
	triggers  []scanjob.Trigger
}

func (m *dirMaterializer) Materialize(_ context.Context, t scanjob.Trigger) (Workspace, error) {
	m.triggers = append(m.triggers, t)
	if m.err != nil {
		return nil, m.err
	}
	m.workspace = &dirWorkspace{root: m.root}
	return m.workspace, nil
}

type recordingArchive struct {
	stored map[string]*finding.ScanResult
	err    error
}

func (a *recordingArchive) Store(_ context.Context, _ int64, scanID string, r *finding.ScanResult) error {
	if a.stored == nil {
		a.stored = make(map[string]*finding.ScanResult)
	}
	a.stored[scanID] = r
	return a.err
}

type recordingInvalidator struct {
	calls []int64
}

func (i *recordingInvalidator) InvalidateSummary(_ context.Context, repoID int64, _ string) {
	i.calls = append(i.calls, repoID)
}

type recordingEnqueuer struct {
	triggers []scanjob.Trigger
	err      error
}

func (e *recordingEnqueuer) EnqueueScan(_ context.Context, t scanjob.Trigger) error {
	if e.err != nil {
		return e.err
	}
	e.triggers = append(e.triggers, t)
	return nil
}

type mapCache struct {
	items   map[string]RepoSummary
	gets    int
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]RepoSummary)}
}

func (c *mapCache) Get(_ context.Context, key string) (*RepoSummary, error) {
	c.gets++
	v, ok := c.items[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return &v, nil
}

func (c *mapCache) Set(_ context.Context, key string, v RepoSummary) error {
	c.items[key] = v
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.deletes++
	delete(c.items, key)
	return nil
}

// failingJobs fails UpdateStatus for one target status.
type failingJobs struct {
	*memory.JobRepository
	failOn scanjob.Status
}

func (f *failingJobs) UpdateStatus(ctx context.Context, j *scanjob.Job) error {
	if j.Status == f.failOn {
		return errBoom
	}
	return f.JobRepository.UpdateStatus(ctx, j)
}

// staleActiveCheck reports no active scan, as a concurrent request that
// ran its check before the other one stored its job would see.
type staleActiveCheck struct {
	*memory.JobRepository
}

func (staleActiveCheck) FindActive(_ context.Context, repoID int64, _ string) (*scanjob.Job, error) {
	return nil, shared.NotFound("active scan", fmt.Sprint(repoID))
}

type failingViolations struct {
	*memory.ViolationRepository
}

func (failingViolations) SaveAll(context.Context, []*finding.Violation) error {
	return errBoom
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

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// writeTree writes files under a fresh temp dir and returns its path.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}
