package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/edutrack/edutrack/internal/payment"
)

// MemoryStore is an in-memory subscription store for demo/development.
// It mutates the payment memory store inside its own lock so that
// Activate keeps the same payment+subscription atomicity the Postgres
// store gets from a transaction.
type MemoryStore struct {
	mu       sync.RWMutex
	payments *payment.MemoryStore
	subs     map[string]*Subscription // by school ID
}

// NewMemoryStore creates a new in-memory subscription store backed by
// the given payment store.
func NewMemoryStore(payments *payment.MemoryStore) *MemoryStore {
	return &MemoryStore{
		payments: payments,
		subs:     make(map[string]*Subscription),
	}
}

func (m *MemoryStore) GetBySchool(_ context.Context, schoolID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subs[schoolID]
	if !ok {
		return nil, ErrNoSubscription
	}
	return cloneSub(s), nil
}

func (m *MemoryStore) Activate(_ context.Context, p ActivateParams) (*Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.payments.CompleteSuccess(p.PaymentReference, p.TransactionID, p.Channel, p.Now)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			return nil, false, ErrUnknownReference
		}
		if errors.Is(err, payment.ErrStatusFinal) {
			return nil, false, ErrAlreadyProcessed
		}
		return nil, false, err
	}

	existing, ok := m.subs[p.SchoolID]
	if ok {
		existing.PlanID = p.PlanID
		existing.Status = StatusActive
		existing.StartDate = p.Start
		existing.EndDate = cloneTime(p.End)
		existing.LastWarnedAt = nil
		existing.UpdatedAt = p.Now
		return cloneSub(existing), false, nil
	}

	sub := &Subscription{
		ID:        p.SubscriptionID,
		SchoolID:  p.SchoolID,
		PlanID:    p.PlanID,
		Status:    StatusActive,
		StartDate: p.Start,
		EndDate:   cloneTime(p.End),
		CreatedAt: p.Now,
		UpdatedAt: p.Now,
	}
	m.subs[p.SchoolID] = sub
	return cloneSub(sub), true, nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Subscription
	for _, s := range m.subs {
		if s.Status == StatusActive && s.ExpiredAt(now) {
			out = append(out, cloneSub(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(*out[j].EndDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListExpiringWithin(_ context.Context, now, until time.Time) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Subscription
	for _, s := range m.subs {
		if s.Status != StatusActive || s.EndDate == nil {
			continue
		}
		if s.EndDate.After(now) && !s.EndDate.After(until) {
			out = append(out, cloneSub(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(*out[j].EndDate) })
	return out, nil
}

func (m *MemoryStore) MarkExpired(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subs {
		if s.ID != id {
			continue
		}
		// Same guard as the SQL store: a renewal that moved the end
		// date past now wins over a stale sweep read.
		if s.Status != StatusActive || !s.ExpiredAt(now) {
			return false, nil
		}
		s.Status = StatusExpired
		s.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) MarkWarned(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subs {
		if s.ID != id {
			continue
		}
		if s.LastWarnedAt != nil && now.Sub(*s.LastWarnedAt) < 24*time.Hour {
			return false, nil
		}
		warned := now
		s.LastWarnedAt = &warned
		s.UpdatedAt = now
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) Cancel(_ context.Context, schoolID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[schoolID]
	if !ok {
		return ErrNoSubscription
	}
	s.Status = StatusCancelled
	s.UpdatedAt = now
	return nil
}

func cloneSub(s *Subscription) *Subscription {
	cp := *s
	cp.EndDate = cloneTime(s.EndDate)
	cp.LastWarnedAt = cloneTime(s.LastWarnedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

var _ Store = (*MemoryStore)(nil)
