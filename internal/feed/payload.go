package feed

import (
	"encoding/json"
	"time"
)

// FeedItemView is one slot of a feed page: the cached reference plus
// the hydrated content body when available.
type FeedItemView struct {
	ContentType string          `json:"content_type"`
	ContentID   string          `json:"content_id"`
	Score       float64         `json:"score"`
	Content     json.RawMessage `json:"content,omitempty"`
}

type FeedPage struct {
	Items    []FeedItemView `json:"items"`
	Count    int            `json:"count"`
	HasNext  bool           `json:"has_next"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type TrackInteractionRequest struct {
	FeedItemID string `json:"feed_item_id"`
	Action     string `json:"action"`
}

// InteractionEvent is the best-effort telemetry record published to
// Kafka for each tracked interaction.
type InteractionEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	FeedItemID string    `json:"feed_item_id"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}
