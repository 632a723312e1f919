package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"timeline-service/internal/balance"
	"timeline-service/internal/content"
	"timeline-service/internal/metrics"
	"timeline-service/internal/scoring"
	"timeline-service/internal/timeline"
)

// ErrFeedUnavailable means both the content sources and the stale
// cache fallback came up empty; the request should be retried.
var ErrFeedUnavailable = errors.New("feed temporarily unavailable")

const defaultFeedSize = 100

// Source is the content provider surface the orchestrator needs;
// implemented by content.Client.
type Source interface {
	Fetch(ctx context.Context, scope content.Scope, req content.Requester, limits content.SourceLimits) ([]content.Item, error)
	Hydrate(ctx context.Context, refs []content.Ref, req content.Requester) ([]content.Item, error)
	FollowSet(ctx context.Context, userID string) (map[string]struct{}, error)
	Profile(ctx context.Context, userID string) (content.Requester, error)
	FeedConfig(ctx context.Context, userID string) (content.FeedConfig, error)
}

type Producer interface {
	Publish(ctx context.Context, key string, message []byte) error
}

type Service interface {
	GetFeed(ctx context.Context, userID, feedType string, page, pageSize int) (*FeedPage, error)
	TrackInteraction(ctx context.Context, userID string, in TrackInteractionRequest)
	Rebuild(ctx context.Context, userID, feedType string) error
	Invalidate(ctx context.Context, userID, feedType string) error
	InvalidateAll(ctx context.Context, userID string) error
}

type service struct {
	repo        timeline.Repository
	source      Source
	scorer      *scoring.Scorer
	producer    Producer
	limits      content.SourceLimits
	balanceOpts balance.Options
	feedSize    int
}

type Option func(*service)

func WithScorer(sc *scoring.Scorer) Option {
	return func(s *service) { s.scorer = sc }
}

func WithProducer(p Producer) Option {
	return func(s *service) { s.producer = p }
}

func WithSourceLimits(l content.SourceLimits) Option {
	return func(s *service) { s.limits = l }
}

func WithBalanceOptions(o balance.Options) Option {
	return func(s *service) { s.balanceOpts = o }
}

// WithFeedSize caps how many references one cached timeline holds.
func WithFeedSize(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.feedSize = n
		}
	}
}

func NewService(repo timeline.Repository, source Source, opts ...Option) Service {
	s := &service{
		repo:        repo,
		source:      source,
		scorer:      scoring.New(),
		limits:      content.DefaultSourceLimits(),
		balanceOpts: balance.DefaultOptions(),
		feedSize:    defaultFeedSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) GetFeed(ctx context.Context, userID, feedType string, page, pageSize int) (*FeedPage, error) {
	scope, err := content.ParseScope(feedType)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	req := s.requester(ctx, userID)

	var bodies map[string]content.Item
	entry, err := s.repo.Get(ctx, userID, scope)
	switch {
	case err == nil:
		metrics.CacheHits.Inc()
	case errors.Is(err, timeline.ErrMiss):
		metrics.CacheMisses.Inc()
		entry = nil
	default:
		// Cache backend down: compute fresh, degraded performance only.
		log.Printf("feed: cache read failed, rebuilding: %v", err)
		metrics.CacheMisses.Inc()
		entry = nil
	}

	if entry == nil {
		entry, bodies, err = s.build(ctx, userID, scope, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.SourceErrors.Inc()
			stale, serr := s.repo.GetStale(ctx, userID, scope)
			if serr != nil {
				return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
			}
			log.Printf("feed: sources down, serving stale timeline for user=%s scope=%s", userID, scope)
			metrics.StaleServed.Inc()
			entry = stale
		}
	}

	return s.paginate(ctx, entry, bodies, req, page, pageSize)
}

// build fetches, scores, balances and caches a fresh timeline. The
// returned bodies map lets the caller skip rehydration for content it
// just fetched.
func (s *service) build(ctx context.Context, userID string, scope content.Scope, req content.Requester) (*timeline.Entry, map[string]content.Item, error) {
	items, err := s.source.Fetch(ctx, scope, req, s.limits)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := s.source.FeedConfig(ctx, userID)
	if err != nil {
		log.Printf("feed: config fetch failed for user=%s, using defaults: %v", userID, err)
		cfg = content.DefaultFeedConfig()
	}

	scored := s.scorer.ScoreAll(items, req, cfg)
	var posts, projects []scoring.ScoredItem
	for _, it := range scored {
		if it.Type == content.TypeProject {
			projects = append(projects, it)
		} else {
			posts = append(posts, it)
		}
	}
	merged := balance.Merge(posts, projects, s.feedSize, s.balanceOpts)

	refs := make([]timeline.Ref, len(merged))
	for i, it := range merged {
		refs[i] = timeline.Ref{Type: it.Type, ID: it.ID, Score: it.Score}
	}
	bodies := make(map[string]content.Item, len(items))
	for _, it := range items {
		bodies[refKey(it.Type, it.ID)] = it
	}

	entry, err := s.repo.Put(ctx, userID, scope, refs, len(refs))
	if err != nil {
		// Serve the computed feed anyway; the next request recomputes.
		log.Printf("feed: cache write failed for user=%s scope=%s: %v", userID, scope, err)
		now := time.Now()
		entry = &timeline.Entry{Refs: refs, TotalCount: len(refs), BuiltAt: now, ExpiresAt: now}
	}
	metrics.FeedBuilds.WithLabelValues(string(scope)).Inc()
	return entry, bodies, nil
}

func (s *service) paginate(ctx context.Context, entry *timeline.Entry, bodies map[string]content.Item, req content.Requester, page, pageSize int) (*FeedPage, error) {
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(entry.Refs) {
		start = len(entry.Refs)
	}
	if end > len(entry.Refs) {
		end = len(entry.Refs)
	}
	pageRefs := entry.Refs[start:end]

	var hydrated map[string]content.Item
	if bodies != nil {
		hydrated = bodies
	} else {
		crefs := make([]content.Ref, len(pageRefs))
		for i, ref := range pageRefs {
			crefs[i] = content.Ref{Type: ref.Type, ID: ref.ID}
		}
		items, err := s.source.Hydrate(ctx, crefs, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Cached references still rank; serve them without bodies
			// rather than failing the page.
			log.Printf("feed: hydration failed, serving references only: %v", err)
			items = nil
		}
		hydrated = make(map[string]content.Item, len(items))
		for _, it := range items {
			hydrated[refKey(it.Type, it.ID)] = it
		}
	}

	views := make([]FeedItemView, 0, len(pageRefs))
	for _, ref := range pageRefs {
		view := FeedItemView{
			ContentType: string(ref.Type),
			ContentID:   ref.ID,
			Score:       ref.Score,
		}
		if it, ok := hydrated[refKey(ref.Type, ref.ID)]; ok {
			view.Content = it.Raw
		} else if bodies == nil && len(hydrated) > 0 {
			// Hydration succeeded but this item is gone or hidden now;
			// the cache stores references, not guarantees.
			continue
		}
		views = append(views, view)
	}

	return &FeedPage{
		Items:    views,
		Count:    entry.TotalCount,
		HasNext:  end < len(entry.Refs),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// TrackInteraction publishes best-effort telemetry. Failures are
// logged and swallowed; they never fail the feed request.
func (s *service) TrackInteraction(ctx context.Context, userID string, in TrackInteractionRequest) {
	if s.producer == nil {
		return
	}
	ev := InteractionEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		FeedItemID: in.FeedItemID,
		Action:     in.Action,
		OccurredAt: time.Now().UTC(),
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("feed: marshal interaction: %v", err)
		return
	}
	if err := s.producer.Publish(ctx, userID, b); err != nil {
		log.Printf("feed: publish interaction: %v", err)
		return
	}
	metrics.InteractionsPublished.Inc()
}

func (s *service) Rebuild(ctx context.Context, userID, feedType string) error {
	scope, err := content.ParseScope(feedType)
	if err != nil {
		return err
	}
	if err := s.repo.Invalidate(ctx, userID, scope); err != nil {
		log.Printf("feed: invalidate before rebuild failed: %v", err)
	}
	req := s.requester(ctx, userID)
	if _, _, err := s.build(ctx, userID, scope, req); err != nil {
		return fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	return nil
}

func (s *service) Invalidate(ctx context.Context, userID, feedType string) error {
	scope, err := content.ParseScope(feedType)
	if err != nil {
		return err
	}
	return s.repo.Invalidate(ctx, userID, scope)
}

func (s *service) InvalidateAll(ctx context.Context, userID string) error {
	for _, scope := range []content.Scope{content.ScopeHome, content.ScopeUniversity, content.ScopePublic} {
		if err := s.repo.Invalidate(ctx, userID, scope); err != nil {
			return err
		}
	}
	return nil
}

// requester assembles the caller's identity, university and follow
// set, degrading to an anonymous-ish profile when the users service is
// unreachable (scores lose affinity and boost, the feed still works).
func (s *service) requester(ctx context.Context, userID string) content.Requester {
	req, err := s.source.Profile(ctx, userID)
	if err != nil {
		log.Printf("feed: profile fetch failed for user=%s: %v", userID, err)
		req = content.Requester{ID: userID}
	}
	follows, err := s.source.FollowSet(ctx, userID)
	if err != nil {
		log.Printf("feed: follow set fetch failed for user=%s: %v", userID, err)
		follows = map[string]struct{}{}
	}
	req.Follows = follows
	return req
}

func refKey(t content.Type, id string) string {
	return string(t) + ":" + id
}
