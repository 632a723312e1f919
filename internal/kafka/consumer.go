package kafka

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	kf "github.com/segmentio/kafka-go"
)

// InvalidateEvent asks for one cached timeline to be dropped. An empty
// FeedType clears every scope for the user.
type InvalidateEvent struct {
	UserID   string `json:"user_id"`
	FeedType string `json:"feed_type,omitempty"`
}

type InvalidateHandler func(ctx context.Context, ev InvalidateEvent) error

func StartConsumer(ctx context.Context, bootstrap, topic, groupID string, handle InvalidateHandler) error {
	r := kf.NewReader(kf.ReaderConfig{
		Brokers:  strings.Split(bootstrap, ","),
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
		MaxWait:  2 * time.Second,
	})
	defer r.Close()

	log.Printf("kafka consumer started group=%s topic=%s", groupID, topic)

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			return err
		}
		var ev InvalidateEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Printf("kafka: bad payload: %v", err)
			continue
		}
		if err := handle(ctx, ev); err != nil {
			log.Printf("handle invalidate event: %v", err)
		}
	}
}
