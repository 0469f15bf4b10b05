package scheduling

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps appointments in process. It backs local development and
// the package tests.
type MemoryStore struct {
	mu    sync.RWMutex
	appts map[string]*Appointment
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{appts: make(map[string]*Appointment), now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(a)
	return nil
}

func (m *MemoryStore) insert(a *Appointment) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := m.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.appts[a.ID] = &cp
}

func (m *MemoryStore) CreateIfFree(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appts {
		if existing.Date == a.Date && existing.Time == a.Time && existing.Status != StatusCancelled {
			return ErrSlotTaken
		}
	}
	m.insert(a)
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListByDate(_ context.Context, date string) ([]*Appointment, error) {
	return m.filter(func(a *Appointment) bool { return a.Date == date }), nil
}

func (m *MemoryStore) ListByTutor(_ context.Context, tutorID string) ([]*Appointment, error) {
	return m.filter(func(a *Appointment) bool { return a.TutorID == tutorID }), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status Status, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedBy = updatedBy
	a.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) Search(_ context.Context, f SearchFilter, limit, offset int) ([]*Appointment, int, error) {
	items := m.filter(f.Matches)
	slices.SortFunc(items, newestFirst)
	return page(items, limit, offset), len(items), nil
}

func (m *MemoryStore) filter(keep func(*Appointment) bool) []*Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.appts {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func page(items []*Appointment, limit, offset int) []*Appointment {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
