// The worker service drains the delivery work queue, attempts physical
// delivery through channel providers, and publishes status events.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/database"
	"github.com/akiraliebert/event-driven-notification-system/internal/delivery"
	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
	"github.com/akiraliebert/event-driven-notification-system/internal/provider"
	"github.com/akiraliebert/event-driven-notification-system/internal/queue"
	"github.com/akiraliebert/event-driven-notification-system/internal/ratelimit"
	"github.com/akiraliebert/event-driven-notification-system/internal/status"
	"github.com/akiraliebert/event-driven-notification-system/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	logger := telemetry.NewLogger("worker", telemetry.DefaultLogConfig(config.LogLevel()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.WaitForConnection(ctx, config.LoadPostgres().DSN(), 30, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer func() { _ = db.Close() }()

	redisCfg := config.LoadRedis()
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisCfg.Addr(),
		DB:   redisCfg.DB,
	})
	workQueue := queue.NewRedisQueue(redisClient)
	defer func() { _ = workQueue.Close() }()

	publisher, err := status.NewKafkaPublisher(config.LoadKafka(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create status publisher")
	}
	defer func() { _ = publisher.Close() }()

	deliveryCfg := config.LoadDelivery()
	repo := notification.NewRepository(db)
	limiter := ratelimit.NewLimiter(redisClient, config.LoadRateLimit(), logger)
	registry := provider.NewDefaultRegistry(logger)

	engine := delivery.NewEngine(repo, limiter, registry, workQueue, publisher, deliveryCfg, logger)
	sweeper := delivery.NewSweeper(repo, workQueue, deliveryCfg, logger)
	worker := delivery.NewWorker(engine, workQueue, deliveryCfg, logger)

	go sweeper.Run(ctx)
	worker.Run(ctx)

	logger.Info("Worker shut down")
}
