package scoring

import (
	"math/rand"
	"time"

	"timeline-service/internal/content"
)

// Factor ceilings are 25-point scales; weights live in [0,1], so each
// contribution is factor * weight * 4 to keep a fully-weighted single
// factor at 100.
const (
	recencyCeiling     = 25.0
	recencyWindowHours = 24.0
	universityMatch    = 25.0
	universityOther    = 5.0
	baseRelevance      = 15.0
	weightNormalizer   = 4.0
	followBoost        = 20.0
	jitterAmplitude    = 1.0
)

// ScoredItem is a scored content reference. It never outlives the
// timeline cache entry it ends up in.
type ScoredItem struct {
	Type      content.Type
	ID        string
	Score     float64
	CreatedAt time.Time
}

type Scorer struct {
	jitter func() float64
	now    func() time.Time
}

type Option func(*Scorer)

// WithJitter replaces the jitter source. Pass nil to disable jitter
// entirely (deterministic scoring for tests).
func WithJitter(fn func() float64) Option {
	return func(s *Scorer) { s.jitter = fn }
}

func WithNow(fn func() time.Time) Option {
	return func(s *Scorer) { s.now = fn }
}

// SeededJitter returns a jitter source backed by a fixed seed. Only
// safe for single-goroutine use.
func SeededJitter(seed int64) func() float64 {
	rng := rand.New(rand.NewSource(seed))
	return func() float64 { return rng.Float64()*2*jitterAmplitude - jitterAmplitude }
}

func New(opts ...Option) *Scorer {
	s := &Scorer{
		jitter: func() float64 { return rand.Float64()*2*jitterAmplitude - jitterAmplitude },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the 0-100 relevance of one item for the requester.
// The follow boost is applied after the base clamp and followed by a
// final clamp: followed-author content ranks above any unboosted item
// while scores still never exceed 100.
func (s *Scorer) Score(item content.Item, req content.Requester, cfg content.FeedConfig) float64 {
	if cfg == (content.FeedConfig{}) {
		cfg = content.DefaultFeedConfig()
	}

	hoursOld := s.now().Sub(item.CreatedAt).Hours()
	recency := recencyCeiling - (hoursOld/recencyWindowHours)*recencyCeiling
	if recency < 0 {
		recency = 0
	}

	var engagement float64
	switch item.Type {
	case content.TypeProject:
		engagement = 15 + float64(item.OpenNeeds)*2
	default:
		engagement = float64(item.Likes)*2 + float64(item.Comments)*3
	}

	university := universityOther
	if item.UniversityID != "" && item.UniversityID == req.UniversityID {
		university = universityMatch
	}

	score := recency*cfg.RecencyWeight*weightNormalizer +
		engagement*cfg.EngagementWeight*weightNormalizer +
		university*cfg.UniversityWeight*weightNormalizer +
		baseRelevance*cfg.RelevanceWeight*weightNormalizer

	if s.jitter != nil {
		score += s.jitter()
	}
	score = clamp(score)

	if req.FollowsAuthor(item.AuthorID) {
		score = clamp(score + followBoost)
	}
	return score
}

// ScoreAll scores every item, keeping input order.
func (s *Scorer) ScoreAll(items []content.Item, req content.Requester, cfg content.FeedConfig) []ScoredItem {
	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		scored = append(scored, ScoredItem{
			Type:      item.Type,
			ID:        item.ID,
			Score:     s.Score(item, req, cfg),
			CreatedAt: item.CreatedAt,
		})
	}
	return scored
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
