// The processor service consumes domain events and fans them out into
// per-channel notifications and delivery work items.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/database"
	"github.com/akiraliebert/event-driven-notification-system/internal/processor"
	"github.com/akiraliebert/event-driven-notification-system/internal/queue"
	"github.com/akiraliebert/event-driven-notification-system/internal/status"
	"github.com/akiraliebert/event-driven-notification-system/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	logger := telemetry.NewLogger("processor", telemetry.DefaultLogConfig(config.LogLevel()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.WaitForConnection(ctx, config.LoadPostgres().DSN(), 30, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer func() { _ = db.Close() }()

	redisCfg := config.LoadRedis()
	workQueue := queue.NewRedisQueue(redis.NewClient(&redis.Options{
		Addr: redisCfg.Addr(),
		DB:   redisCfg.DB,
	}))
	defer func() { _ = workQueue.Close() }()

	kafkaCfg := config.LoadKafka()
	publisher, err := status.NewKafkaPublisher(kafkaCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create status publisher")
	}
	defer func() { _ = publisher.Close() }()

	handler := processor.NewHandler(db, workQueue, publisher, logger)
	consumer, err := processor.NewConsumer(kafkaCfg, config.LoadProcessor(), handler, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create event consumer")
	}
	defer func() { _ = consumer.Close() }()

	if err := consumer.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Event consumer failed")
	}
	logger.Info("Processor shut down")
}
