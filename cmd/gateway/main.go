// The gateway service accepts domain events over HTTP and appends them
// to the domain-event log.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/gateway"
	"github.com/akiraliebert/event-driven-notification-system/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	logger := telemetry.NewLogger("gateway", telemetry.DefaultLogConfig(config.LogLevel()))

	producer, err := gateway.NewKafkaProducer(config.LoadKafka(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create event producer")
	}
	defer func() { _ = producer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := gateway.NewServer(producer, nil, logger)
	if err := server.Run(ctx, config.LoadGateway().Addr); err != nil {
		logger.WithError(err).Fatal("Gateway server failed")
	}
	logger.Info("Gateway shut down")
}
