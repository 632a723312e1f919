package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"timeline-service/configs"
	"timeline-service/internal/content"
	"timeline-service/internal/feed"
	"timeline-service/internal/kafka"
	"timeline-service/internal/ratelimit"
	"timeline-service/internal/shared/httpx"
	"timeline-service/internal/shared/redisx"
	"timeline-service/internal/timeline"
	producer "timeline-service/pkg/kafka"
)

func initOTEL(ctx context.Context) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "otel-collector:4318"
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		log.Fatalf("otel exporter: %v", err)
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(os.Getenv("OTEL_SERVICE_NAME")),
		attribute.String("deployment.environment", os.Getenv("ENV")),
	))
	ratio := 1.0
	if s := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f >= 0 && f <= 1 {
			ratio = f
		}
	}
	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown
}

func main() {
	ctx := context.Background()
	cfg := configs.LoadConfig()

	shutdown := initOTEL(ctx)
	defer func() {
		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = shutdown(c)
	}()

	// Redis
	rdb := redisx.Open(cfg)
	defer func(rdb *redis.Client) { _ = rdb.Close() }(rdb)

	// Rate limiter (Redis-backed)
	limiter := ratelimit.New(rdb)
	rebuildLimit := func(next http.Handler) http.Handler {
		return limiter.LimitHTTP(1, 60*time.Second, func(r *http.Request) (string, error) {
			return httpx.UserFromCtx(r)
		}, next)
	}

	// Content sources
	source := content.NewClient(
		content.WithPostServiceBase(cfg.PostServiceURL),
		content.WithProjectServiceBase(cfg.ProjectServiceURL),
		content.WithUserServiceBase(cfg.UserServiceURL),
	)

	// Interaction events producer
	interactions := producer.NewProducer(cfg.KafkaBrokers, cfg.InteractionTopic)
	defer interactions.Close()

	// Repo & Service
	repo := timeline.NewRepository(rdb, cfg.CacheTTL, cfg.CacheStaleFactor)
	svc := feed.NewService(
		repo, source,
		feed.WithProducer(interactions),
	)

	// Kafka consumer: admin feed invalidation events
	go func() {
		err := kafka.StartConsumer(ctx, cfg.KafkaBrokers, cfg.InvalidationTopic, cfg.KafkaGroupID,
			func(ctx context.Context, ev kafka.InvalidateEvent) error {
				if ev.FeedType == "" {
					return svc.InvalidateAll(ctx, ev.UserID)
				}
				return svc.Invalidate(ctx, ev.UserID, ev.FeedType)
			})
		if err != nil {
			log.Printf("kafka consumer stopped: %v", err)
		}
	}()

	// HTTP
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	h := feed.NewHandler(svc, cfg.DefaultPageSize, cfg.MaxPageSize)

	protect := func(pattern string, handler http.Handler) {
		mux.Handle(pattern, httpx.AuthMiddleware(handler))
	}
	protect("GET /feed", httpx.Wrap(h.GetFeed))
	protect("POST /feed/interactions", httpx.Wrap(h.TrackInteraction))
	protect("POST /feed/rebuild", rebuildLimit(httpx.Wrap(h.Rebuild)))
	protect("DELETE /users/{user_id}/feed", httpx.Wrap(h.InvalidateFeed))

	protect("GET /whoami", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := httpx.UserFromCtx(r)
		if err != nil {
			httpx.WriteJSON(w, map[string]any{"error": err.Error()}, http.StatusUnauthorized)
			return
		}
		httpx.WriteJSON(w, map[string]any{"user_id": uid}, http.StatusOK)
	}))

	srv := &http.Server{
		Addr:              cfg.AppPort,
		Handler:           otelhttp.NewHandler(mux, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	log.Printf("timeline-service listening on %s", cfg.AppPort)
	log.Fatal(srv.ListenAndServe())
}
