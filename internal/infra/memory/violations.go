package memory

import (
	"context"
	"sync"
	"time"

	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/shared"
)

// ViolationRepository is an in-memory finding.ViolationRepository.
type ViolationRepository struct {
	mu    sync.RWMutex
	items map[string]finding.Violation
	order []string
}

// NewViolationRepository creates an empty ViolationRepository.
func NewViolationRepository() *ViolationRepository {
	return &ViolationRepository{items: make(map[string]finding.Violation)}
}

// SaveAll stores violations, replacing any with the same id.
func (r *ViolationRepository) SaveAll(_ context.Context, violations []*finding.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range violations {
		if _, ok := r.items[v.ViolationID]; !ok {
			r.order = append(r.order, v.ViolationID)
		}
		r.items[v.ViolationID] = cloneViolation(*v)
	}
	return nil
}

// GetByID returns a copy of the violation.
func (r *ViolationRepository) GetByID(_ context.Context, id string) (*finding.Violation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		return nil, shared.NotFound("violation", id)
	}
	v = cloneViolation(v)
	return &v, nil
}

// List returns matching violations, newest discovered first.
func (r *ViolationRepository) List(_ context.Context, f finding.ViolationFilter) ([]*finding.Violation, error) {
	r.mu.RLock()
	var out []*finding.Violation
	for i := len(r.order) - 1; i >= 0; i-- {
		v := r.items[r.order[i]]
		if !matchViolation(v, f) {
			continue
		}
		v = cloneViolation(v)
		out = append(out, &v)
	}
	r.mu.RUnlock()

	sortNewestFirst(out, func(v *finding.Violation) time.Time { return v.DiscoveredDate })
	return out, nil
}

// Update replaces a stored violation.
func (r *ViolationRepository) Update(_ context.Context, v *finding.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[v.ViolationID]; !ok {
		return shared.NotFound("violation", v.ViolationID)
	}
	r.items[v.ViolationID] = cloneViolation(*v)
	return nil
}

func matchViolation(v finding.Violation, f finding.ViolationFilter) bool {
	switch {
	case f.RepoID != 0 && v.RepoID != f.RepoID:
		return false
	case f.UserID != "" && v.UserID != f.UserID:
		return false
	case f.ScanID != "" && v.ScanID != f.ScanID:
		return false
	case f.Status != nil && v.Status != *f.Status:
		return false
	}
	return true
}

func cloneViolation(v finding.Violation) finding.Violation {
	v.ComplianceImpact = append([]string(nil), v.ComplianceImpact...)
	if v.ResolvedDate != nil {
		t := *v.ResolvedDate
		v.ResolvedDate = &t
	}
	return v
}
