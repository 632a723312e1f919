package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_cache_hits_total",
		Help: "Feed requests served from the timeline cache.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_cache_misses_total",
		Help: "Feed requests that had to rebuild the timeline.",
	})
	FeedBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_feed_builds_total",
		Help: "Timeline rebuilds by feed scope.",
	}, []string{"scope"})
	StaleServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_stale_entries_served_total",
		Help: "Expired cache entries served because sources were down.",
	})
	SourceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_source_errors_total",
		Help: "Content source fetches that failed outright.",
	})
	InteractionsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_interactions_published_total",
		Help: "Interaction events published to Kafka.",
	})
)
