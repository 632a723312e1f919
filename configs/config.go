package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort string

	RedisHost string
	RedisPort string
	RedisPass string

	KafkaBrokers      string
	KafkaGroupID      string
	InvalidationTopic string
	InteractionTopic  string

	PostServiceURL    string
	ProjectServiceURL string
	UserServiceURL    string

	CacheTTL         time.Duration
	CacheStaleFactor int
	DefaultPageSize  int
	MaxPageSize      int
}

func LoadConfig() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", ":8083"),

		RedisHost: getEnv("REDIS_HOST", "redis-feed"),
		RedisPort: getEnv("REDIS_PORT", "6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		KafkaBrokers:      getEnv("KAFKA_BOOTSTRAP_SERVERS", "kafka:9092"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "timeline-service"),
		InvalidationTopic: getEnv("FEEDS_INVALIDATE_TOPIC", "feeds.invalidate"),
		InteractionTopic:  getEnv("FEED_INTERACTIONS_TOPIC", "feed.interactions"),

		PostServiceURL:    getEnv("POST_SERVICE_URL", "http://post-service:8081"),
		ProjectServiceURL: getEnv("PROJECT_SERVICE_URL", "http://project-service:8082"),
		UserServiceURL:    getEnv("USER_SERVICE_URL", "http://users-service:8080"),

		CacheTTL:         time.Duration(atoiDef(os.Getenv("FEED_CACHE_TTL_SECONDS"), 3600)) * time.Second,
		CacheStaleFactor: atoiDef(os.Getenv("FEED_CACHE_STALE_FACTOR"), 24),
		DefaultPageSize:  atoiDef(os.Getenv("FEED_DEFAULT_PAGE_SIZE"), 20),
		MaxPageSize:      atoiDef(os.Getenv("FEED_MAX_PAGE_SIZE"), 100),
	}
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func atoiDef(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
