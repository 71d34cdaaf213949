package payment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edutrack/edutrack/internal/pagination"
)

// MemoryStore is an in-memory payment store for demo/development.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*Payment // by ID
	byRef    map[string]string   // reference → ID
}

// NewMemoryStore creates a new in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
		byRef:    make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byRef[p.Reference]; exists {
		return ErrReferenceTaken
	}
	cp := *p
	m.payments[p.ID] = &cp
	m.byRef[p.Reference] = p.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetByReference(_ context.Context, reference string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRef[reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *m.payments[id]
	return &cp, nil
}

func (m *MemoryStore) ListBySchool(_ context.Context, schoolID string) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Payment
	for _, p := range m.payments {
		if p.SchoolID == schoolID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListBySchoolPage(ctx context.Context, schoolID string, before *pagination.Cursor, limit int) ([]*Payment, error) {
	all, err := m.ListBySchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	var out []*Payment
	for _, p := range all {
		if before != nil && !olderThan(p, before) {
			continue
		}
		out = append(out, p)
		if len(out) == limit+1 {
			break
		}
	}
	return out, nil
}

func olderThan(p *Payment, c *pagination.Cursor) bool {
	if !p.CreatedAt.Equal(c.CreatedAt) {
		return p.CreatedAt.Before(c.CreatedAt)
	}
	return p.ID < c.ID
}

func (m *MemoryStore) MarkFailed(_ context.Context, reference string, now time.Time) error {
	return m.transition(reference, StatusFailed, now)
}

func (m *MemoryStore) MarkCancelled(_ context.Context, reference string, now time.Time) error {
	return m.transition(reference, StatusCancelled, now)
}

func (m *MemoryStore) transition(reference string, to Status, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byRef[reference]
	if !ok {
		return ErrPaymentNotFound
	}
	p := m.payments[id]
	if p.Status != StatusPending {
		return ErrStatusFinal
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// CompleteSuccess flips a pending payment to success. It exists for the
// subscription memory store's Activate, which holds the atomicity
// boundary; nothing else may call it. Returns ErrStatusFinal when the
// payment already reached success (the idempotent-duplicate case) or
// another final status.
func (m *MemoryStore) CompleteSuccess(reference, transactionID, channel string, now time.Time) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byRef[reference]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	p := m.payments[id]
	if p.Status != StatusPending {
		return nil, ErrStatusFinal
	}
	p.Status = StatusSuccess
	p.TransactionID = transactionID
	p.Channel = channel
	p.UpdatedAt = now
	cp := *p
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
