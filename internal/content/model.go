package content

import (
	"encoding/json"
	"errors"
	"time"
)

type Type string

const (
	TypePost    Type = "post"
	TypeProject Type = "project"
)

type Visibility string

const (
	VisibilityPrivate    Visibility = "private"
	VisibilityUniversity Visibility = "university"
	VisibilityPublic     Visibility = "public"
)

type Scope string

const (
	ScopeHome       Scope = "home"
	ScopeUniversity Scope = "university"
	ScopePublic     Scope = "public"
)

var (
	ErrInvalidScope      = errors.New("invalid feed scope")
	ErrSourceUnavailable = errors.New("content source unavailable")
	ErrNotFound          = errors.New("content not found")
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeHome, ScopeUniversity, ScopePublic:
		return Scope(s), nil
	}
	return "", ErrInvalidScope
}

// Item is a candidate post or project normalized for scoring. Raw keeps
// the source payload untouched so feed responses can pass it through.
type Item struct {
	Type         Type
	ID           string
	AuthorID     string
	UniversityID string
	Visibility   Visibility
	CreatedAt    time.Time
	Likes        int
	Comments     int
	OpenNeeds    int
	Raw          json.RawMessage
}

// Ref identifies a piece of content without carrying its body.
type Ref struct {
	Type Type   `json:"content_type"`
	ID   string `json:"content_id"`
}

// Requester is the identity the feed is curated for.
type Requester struct {
	ID           string
	UniversityID string
	Follows      map[string]struct{}
}

func (r Requester) FollowsAuthor(authorID string) bool {
	_, ok := r.Follows[authorID]
	return ok
}

// FeedConfig holds the per-user scoring weights. Weights live in [0,1]
// and need not sum to 1.
type FeedConfig struct {
	RecencyWeight    float64 `json:"recency_weight"`
	EngagementWeight float64 `json:"engagement_weight"`
	UniversityWeight float64 `json:"university_weight"`
	RelevanceWeight  float64 `json:"relevance_weight"`
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		RecencyWeight:    0.25,
		EngagementWeight: 0.25,
		UniversityWeight: 0.25,
		RelevanceWeight:  0.25,
	}
}

// SourceLimits caps each sub-source of a fetch so one noisy source
// cannot crowd out the rest.
type SourceLimits struct {
	FollowedPosts      int
	UniversityPosts    int
	PublicPosts        int
	UniversityProjects int
	PublicProjects     int
}

func DefaultSourceLimits() SourceLimits {
	return SourceLimits{
		FollowedPosts:      40,
		UniversityPosts:    40,
		PublicPosts:        30,
		UniversityProjects: 25,
		PublicProjects:     25,
	}
}
