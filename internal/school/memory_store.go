package school

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory school store for demo/development.
type MemoryStore struct {
	mu      sync.RWMutex
	schools map[string]*School // by ID
	codes   map[string]string  // code → ID
}

// NewMemoryStore creates a new in-memory school store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schools: make(map[string]*School),
		codes:   make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *School) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.codes[s.Code]; exists {
		return ErrCodeTaken
	}

	cp := clone(s)
	m.schools[s.ID] = cp
	m.codes[s.Code] = s.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schools[id]
	if !ok {
		return nil, ErrSchoolNotFound
	}
	return clone(s), nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code string) (*School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return nil, ErrSchoolNotFound
	}
	return clone(m.schools[id]), nil
}

func (m *MemoryStore) Update(_ context.Context, s *School) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schools[s.ID]; !ok {
		return ErrSchoolNotFound
	}
	m.schools[s.ID] = clone(s)
	return nil
}

func (m *MemoryStore) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schools[id]
	if !ok {
		return ErrSchoolNotFound
	}
	s.Active = false
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*School, 0, len(m.schools))
	for _, s := range m.schools {
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func clone(s *School) *School {
	cp := *s
	if s.Settings != nil {
		cp.Settings = make(map[string]string, len(s.Settings))
		for k, v := range s.Settings {
			cp.Settings[k] = v
		}
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
