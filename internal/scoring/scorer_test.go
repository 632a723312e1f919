package scoring

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"timeline-service/internal/content"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func noJitter() *Scorer {
	return New(WithJitter(nil), WithNow(fixedNow))
}

func TestScoreFollowedPostWorkedExample(t *testing.T) {
	// 2-hour-old post, 5 likes, 1 comment, same university, default
	// weights, author followed.
	s := noJitter()
	req := content.Requester{
		ID:           "u1",
		UniversityID: "uni-1",
		Follows:      map[string]struct{}{"author": {}},
	}
	item := content.Item{
		Type:         content.TypePost,
		ID:           "p1",
		AuthorID:     "author",
		UniversityID: "uni-1",
		CreatedAt:    fixedNow().Add(-2 * time.Hour),
		Likes:        5,
		Comments:     1,
	}

	w := 0.25 * 4
	recency := 25.0 - (2.0/24.0)*25.0
	engagement := 5.0*2 + 1.0*3
	expected := recency*w + engagement*w + 25.0*w + 15.0*w + 20.0
	if expected > 100 {
		expected = 100
	}

	got := s.Score(item, req, content.DefaultFeedConfig())
	if math.Abs(got-expected) > 0.0001 {
		t.Fatalf("expected score %v, got %v", expected, got)
	}
}

func TestScoreStaysInRange(t *testing.T) {
	s := New(WithJitter(SeededJitter(42)), WithNow(fixedNow))
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		cfg := content.FeedConfig{
			RecencyWeight:    rng.Float64(),
			EngagementWeight: rng.Float64(),
			UniversityWeight: rng.Float64(),
			RelevanceWeight:  rng.Float64(),
		}
		item := content.Item{
			Type:      content.TypePost,
			AuthorID:  "a",
			CreatedAt: fixedNow().Add(-time.Duration(rng.Intn(96)) * time.Hour),
			Likes:     rng.Intn(5000),
			Comments:  rng.Intn(1000),
		}
		if rng.Intn(2) == 0 {
			item.Type = content.TypeProject
			item.OpenNeeds = rng.Intn(50)
		}
		req := content.Requester{ID: "u", UniversityID: "uni"}
		if rng.Intn(2) == 0 {
			req.Follows = map[string]struct{}{"a": {}}
		}
		if rng.Intn(2) == 0 {
			item.UniversityID = "uni"
		}

		got := s.Score(item, req, cfg)
		if got < 0 || got > 100 {
			t.Fatalf("score out of range: %v (iteration %d)", got, i)
		}
	}
}

func TestFollowBoostOutranksIdenticalProfile(t *testing.T) {
	s := New(WithJitter(SeededJitter(1)), WithNow(fixedNow))
	item := content.Item{
		Type:      content.TypePost,
		AuthorID:  "author",
		CreatedAt: fixedNow().Add(-12 * time.Hour),
		Likes:     2,
		Comments:  1,
	}
	follower := content.Requester{ID: "u1", Follows: map[string]struct{}{"author": {}}}
	stranger := content.Requester{ID: "u2"}
	cfg := content.DefaultFeedConfig()

	boosted := s.Score(item, follower, cfg)
	plain := s.Score(item, stranger, cfg)

	// Flat +20 boost minus the worst-case 2-point jitter spread.
	if boosted-plain < 18 {
		t.Fatalf("boost too small: boosted=%v plain=%v", boosted, plain)
	}
}

func TestFollowBoostNeverExceedsHundred(t *testing.T) {
	s := noJitter()
	item := content.Item{
		Type:      content.TypePost,
		AuthorID:  "author",
		CreatedAt: fixedNow(),
		Likes:     10000,
		Comments:  10000,
	}
	req := content.Requester{ID: "u1", Follows: map[string]struct{}{"author": {}}}

	got := s.Score(item, req, content.DefaultFeedConfig())
	if got != 100 {
		t.Fatalf("expected clamp at 100, got %v", got)
	}
}

func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	s := noJitter()
	item := content.Item{
		Type:      content.TypePost,
		AuthorID:  "a",
		CreatedAt: fixedNow().Add(-3 * time.Hour),
		Likes:     4,
	}
	req := content.Requester{ID: "u"}

	withDefaults := s.Score(item, req, content.DefaultFeedConfig())
	withZero := s.Score(item, req, content.FeedConfig{})
	if withDefaults != withZero {
		t.Fatalf("zero config should score like defaults: %v vs %v", withZero, withDefaults)
	}
}

func TestProjectEngagementFormula(t *testing.T) {
	s := noJitter()
	req := content.Requester{ID: "u"}
	cfg := content.FeedConfig{EngagementWeight: 0.25}

	project := content.Item{
		Type:      content.TypeProject,
		AuthorID:  "a",
		CreatedAt: fixedNow().Add(-48 * time.Hour),
		OpenNeeds: 3,
	}

	// Only engagement weighted: 15 + 3*2 = 21, times 0.25*4.
	expected := 21.0
	got := s.Score(project, req, cfg)
	if math.Abs(got-expected) > 0.0001 {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestRecencyFloorsAtZero(t *testing.T) {
	s := noJitter()
	req := content.Requester{ID: "u"}
	cfg := content.FeedConfig{RecencyWeight: 1}

	old := content.Item{
		Type:      content.TypePost,
		AuthorID:  "a",
		CreatedAt: fixedNow().Add(-72 * time.Hour),
	}
	got := s.Score(old, req, cfg)
	if got != 0 {
		t.Fatalf("expected 0 for 72h-old content with recency-only weights, got %v", got)
	}
}

func TestZeroEngagementIsNotAnError(t *testing.T) {
	s := noJitter()
	req := content.Requester{ID: "u"}
	item := content.Item{Type: content.TypePost, AuthorID: "a", CreatedAt: fixedNow()}

	got := s.Score(item, req, content.DefaultFeedConfig())
	// recency 25 + university 5 + relevance 15, each *0.25*4.
	expected := 25.0 + 5.0 + 15.0
	if math.Abs(got-expected) > 0.0001 {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
