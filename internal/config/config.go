// Package config loads runtime settings from environment variables.
// All values have sensible defaults for local development; production
// deployments override them per service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Kafka holds domain-event log and status topic settings.
type Kafka struct {
	BootstrapServers  []string
	DomainEventsTopic string
	DeliveryTopic     string
}

// LoadKafka loads Kafka configuration.
// Environment variables:
//   - KAFKA_BOOTSTRAP_SERVERS: comma-separated broker list (default: localhost:9092)
//   - KAFKA_DOMAIN_EVENTS_TOPIC: inbound domain events (default: domain.events)
//   - KAFKA_DELIVERY_EVENTS_TOPIC: outbound status events (default: notification.delivery)
func LoadKafka() Kafka {
	return Kafka{
		BootstrapServers:  splitCSV(envOr("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")),
		DomainEventsTopic: envOr("KAFKA_DOMAIN_EVENTS_TOPIC", "domain.events"),
		DeliveryTopic:     envOr("KAFKA_DELIVERY_EVENTS_TOPIC", "notification.delivery"),
	}
}

// Postgres holds relational store connection settings.
type Postgres struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// LoadPostgres loads Postgres configuration from POSTGRES_* variables.
func LoadPostgres() Postgres {
	return Postgres{
		Host:     envOr("POSTGRES_HOST", "localhost"),
		Port:     envInt("POSTGRES_PORT", 5432),
		Database: envOr("POSTGRES_DATABASE", "notifications"),
		User:     envOr("POSTGRES_USER", "postgres"),
		Password: envOr("POSTGRES_PASSWORD", "postgres"),
		SSLMode:  envOr("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN renders a lib/pq connection URL.
func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(p.User), url.QueryEscape(p.Password),
		p.Host, p.Port, p.Database, p.SSLMode)
}

// Redis holds rate-limit store and work-queue endpoint settings.
type Redis struct {
	Host string
	Port int
	DB   int
}

// LoadRedis loads Redis configuration from REDIS_* variables.
func LoadRedis() Redis {
	return Redis{
		Host: envOr("REDIS_HOST", "localhost"),
		Port: envInt("REDIS_PORT", 6379),
		DB:   envInt("REDIS_DB", 0),
	}
}

// Addr returns host:port for the go-redis client.
func (r Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RateLimit holds per-channel sliding-window limits.
type RateLimit struct {
	EmailPerMinute int
	SMSPerMinute   int
	PushPerMinute  int
	WindowSeconds  int
}

// LoadRateLimit loads rate-limit configuration.
// Environment variables:
//   - RATE_LIMIT_EMAIL_PER_MINUTE (default: 100)
//   - RATE_LIMIT_SMS_PER_MINUTE (default: 50)
//   - RATE_LIMIT_PUSH_PER_MINUTE (default: 200)
//   - RATE_LIMIT_WINDOW_SECONDS (default: 60)
func LoadRateLimit() RateLimit {
	return RateLimit{
		EmailPerMinute: envInt("RATE_LIMIT_EMAIL_PER_MINUTE", 100),
		SMSPerMinute:   envInt("RATE_LIMIT_SMS_PER_MINUTE", 50),
		PushPerMinute:  envInt("RATE_LIMIT_PUSH_PER_MINUTE", 200),
		WindowSeconds:  envInt("RATE_LIMIT_WINDOW_SECONDS", 60),
	}
}

// Window returns the sliding-window length as a duration.
func (r RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Delivery holds Delivery Engine tunables.
type Delivery struct {
	ProviderTimeout     time.Duration
	RetryBackoff        []time.Duration
	RateLimitRetryDelay time.Duration
	SweepInterval       time.Duration
	StalePendingAge     time.Duration
	Concurrency         int
}

// LoadDelivery loads delivery configuration.
// Environment variables:
//   - DELIVERY_PROVIDER_TIMEOUT_SECONDS (default: 30)
//   - DELIVERY_RETRY_BACKOFF_SECONDS: comma-separated schedule (default: 60,300,900)
//   - DELIVERY_SWEEP_INTERVAL_SECONDS: retry sweeper period (default: 60)
//   - DELIVERY_STALE_PENDING_SECONDS: age before an unqueued pending row is
//     requeued by the sweeper (default: 300)
//   - DELIVERY_WORKER_CONCURRENCY: concurrent delivery goroutines (default: 8)
func LoadDelivery() Delivery {
	return Delivery{
		ProviderTimeout:     time.Duration(envInt("DELIVERY_PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		RetryBackoff:        envBackoff("DELIVERY_RETRY_BACKOFF_SECONDS", []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}),
		RateLimitRetryDelay: 10 * time.Second,
		SweepInterval:       time.Duration(envInt("DELIVERY_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		StalePendingAge:     time.Duration(envInt("DELIVERY_STALE_PENDING_SECONDS", 300)) * time.Second,
		Concurrency:         envInt("DELIVERY_WORKER_CONCURRENCY", 8),
	}
}

// Processor holds Event Processor tunables.
type Processor struct {
	GroupID             string
	PoisonPillThreshold int
}

// LoadProcessor loads processor configuration.
// Environment variables:
//   - PROCESSOR_GROUP_ID: Kafka consumer group (default: notification-service)
//   - PROCESSOR_POISON_PILL_THRESHOLD: consecutive failures before an offset
//     is skipped (default: 3)
func LoadProcessor() Processor {
	return Processor{
		GroupID:             envOr("PROCESSOR_GROUP_ID", "notification-service"),
		PoisonPillThreshold: envInt("PROCESSOR_POISON_PILL_THRESHOLD", 3),
	}
}

// Gateway holds HTTP ingestion settings.
type Gateway struct {
	Addr string
}

// LoadGateway loads gateway configuration (GATEWAY_ADDR, default :8080).
func LoadGateway() Gateway {
	return Gateway{Addr: envOr("GATEWAY_ADDR", ":8080")}
}

// LogLevel returns the configured log level (LOG_LEVEL, default info).
func LogLevel() string {
	return envOr("LOG_LEVEL", "info")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBackoff(key string, fallback []time.Duration) []time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var schedule []time.Duration
	for _, part := range splitCSV(v) {
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return fallback
		}
		schedule = append(schedule, time.Duration(n)*time.Second)
	}
	if len(schedule) == 0 {
		return fallback
	}
	return schedule
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
