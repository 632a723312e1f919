package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"timeline-service/internal/content"
)

const keyTimelineFmt = "timeline:%s:%s"

var (
	ErrMiss        = errors.New("timeline: cache miss")
	ErrUnavailable = errors.New("timeline: cache unavailable")
)

// Ref is one cached feed slot: a content reference plus the score it
// ranked with. Bodies are never cached.
type Ref struct {
	Type  content.Type `json:"content_type"`
	ID    string       `json:"content_id"`
	Score float64      `json:"score"`
}

// Entry is a whole cached timeline for one (user, scope) key. Entries
// are replaced wholesale, never mutated in place. ExpiresAt is the
// logical TTL; the backing store holds the entry longer so a stale copy
// stays available for degraded fallback.
type Entry struct {
	Refs       []Ref     `json:"refs"`
	TotalCount int       `json:"total_count"`
	BuiltAt    time.Time `json:"built_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type Repository interface {
	// Get returns the live entry, or ErrMiss when absent or logically
	// expired.
	Get(ctx context.Context, userID string, scope content.Scope) (*Entry, error)
	// GetStale returns the entry even past its logical TTL; ErrMiss
	// only when nothing is stored at all.
	GetStale(ctx context.Context, userID string, scope content.Scope) (*Entry, error)
	// Put atomically replaces the entry and returns what was stored.
	Put(ctx context.Context, userID string, scope content.Scope, refs []Ref, total int) (*Entry, error)
	Invalidate(ctx context.Context, userID string, scope content.Scope) error
}

type redisRepo struct {
	rdb         *redis.Client
	ttl         time.Duration
	staleFactor int
	now         func() time.Time
}

func NewRepository(rdb *redis.Client, ttl time.Duration, staleFactor int) Repository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if staleFactor < 1 {
		staleFactor = 1
	}
	return &redisRepo{rdb: rdb, ttl: ttl, staleFactor: staleFactor, now: time.Now}
}

func key(userID string, scope content.Scope) string {
	return fmt.Sprintf(keyTimelineFmt, userID, scope)
}

func (r *redisRepo) Get(ctx context.Context, userID string, scope content.Scope) (*Entry, error) {
	entry, err := r.fetch(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	if entry.Expired(r.now()) {
		return nil, ErrMiss
	}
	return entry, nil
}

func (r *redisRepo) GetStale(ctx context.Context, userID string, scope content.Scope) (*Entry, error) {
	return r.fetch(ctx, userID, scope)
}

func (r *redisRepo) fetch(ctx context.Context, userID string, scope content.Scope) (*Entry, error) {
	raw, err := r.rdb.Get(ctx, key(userID, scope)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &entry, nil
}

func (r *redisRepo) Put(ctx context.Context, userID string, scope content.Scope, refs []Ref, total int) (*Entry, error) {
	now := r.now()
	entry := &Entry{
		Refs:       refs,
		TotalCount: total,
		BuiltAt:    now,
		ExpiresAt:  now.Add(r.ttl),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	hold := r.ttl * time.Duration(r.staleFactor)
	if err := r.rdb.Set(ctx, key(userID, scope), b, hold).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entry, nil
}

func (r *redisRepo) Invalidate(ctx context.Context, userID string, scope content.Scope) error {
	if err := r.rdb.Del(ctx, key(userID, scope)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
