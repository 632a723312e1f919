package timeline

import (
	"context"
	"sync"
	"time"

	"timeline-service/internal/content"
)

// memoryRepo mirrors the Redis repository semantics in process memory.
// Used by tests and for running without a Redis backend.
type memoryRepo struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	ttl         time.Duration
	staleFactor int
	now         func() time.Time
}

func NewMemoryRepository(ttl time.Duration, staleFactor int) Repository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if staleFactor < 1 {
		staleFactor = 1
	}
	return &memoryRepo{
		entries:     make(map[string]*Entry),
		ttl:         ttl,
		staleFactor: staleFactor,
		now:         time.Now,
	}
}

// NewMemoryRepositoryAt is NewMemoryRepository with an injectable
// clock.
func NewMemoryRepositoryAt(ttl time.Duration, staleFactor int, now func() time.Time) Repository {
	repo := NewMemoryRepository(ttl, staleFactor).(*memoryRepo)
	repo.now = now
	return repo
}

func (m *memoryRepo) Get(ctx context.Context, userID string, scope content.Scope) (*Entry, error) {
	entry, err := m.GetStale(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	if entry.Expired(m.now()) {
		return nil, ErrMiss
	}
	return entry, nil
}

func (m *memoryRepo) GetStale(ctx context.Context, userID string, scope content.Scope) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key(userID, scope)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	// Past the stale hold the entry is gone for good, as with the Redis
	// physical TTL.
	hold := entry.ExpiresAt.Add(m.ttl * time.Duration(m.staleFactor-1))
	if m.now().After(hold) {
		m.mu.Lock()
		delete(m.entries, key(userID, scope))
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return entry, nil
}

func (m *memoryRepo) Put(ctx context.Context, userID string, scope content.Scope, refs []Ref, total int) (*Entry, error) {
	now := m.now()
	entry := &Entry{
		Refs:       refs,
		TotalCount: total,
		BuiltAt:    now,
		ExpiresAt:  now.Add(m.ttl),
	}
	m.mu.Lock()
	m.entries[key(userID, scope)] = entry
	m.mu.Unlock()
	return entry, nil
}

func (m *memoryRepo) Invalidate(ctx context.Context, userID string, scope content.Scope) error {
	m.mu.Lock()
	delete(m.entries, key(userID, scope))
	m.mu.Unlock()
	return nil
}
