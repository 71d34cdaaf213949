package plan

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory plan store for demo/development.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

// NewMemoryStore creates a new in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]*Plan)}
}

func (m *MemoryStore) Create(_ context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clonePlan(p)
	m.plans[p.ID] = cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return clonePlan(p), nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(*Plan) bool { return true }), nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(p *Plan) bool { return p.Active }), nil
}

func (m *MemoryStore) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plans[id]
	if !ok {
		return ErrPlanNotFound
	}
	p.Active = false
	return nil
}

func (m *MemoryStore) collect(keep func(*Plan) bool) []*Plan {
	out := make([]*Plan, 0, len(m.plans))
	for _, p := range m.plans {
		if keep(p) {
			out = append(out, clonePlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func clonePlan(p *Plan) *Plan {
	cp := *p
	if p.DurationDays != nil {
		d := *p.DurationDays
		cp.DurationDays = &d
	}
	cp.Features = append([]string(nil), p.Features...)
	return &cp
}

var _ Store = (*MemoryStore)(nil)
