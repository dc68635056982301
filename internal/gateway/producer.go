// Package gateway exposes the HTTP ingestion surface. External producers
// POST domain events; the gateway validates them and appends them to the
// domain-event log, where the processor picks them up asynchronously.
package gateway

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/events"
)

// Producer appends domain events to the log.
type Producer interface {
	Publish(event *events.Event) error
	Close() error
}

// KafkaProducer implements Producer on a synchronous, idempotent Kafka
// producer. Records are keyed by recipient user id so one user's events
// stay ordered within a partition.
type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Entry
}

// NewKafkaProducer creates a domain-event producer.
func NewKafkaProducer(cfg config.Kafka, logger *logrus.Entry) (*KafkaProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Compression = sarama.CompressionLZ4
	saramaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event producer: %w", err)
	}

	return &KafkaProducer{
		producer: producer,
		topic:    cfg.DomainEventsTopic,
		logger:   logger,
	}, nil
}

// Publish appends one event to the domain-event log.
func (p *KafkaProducer) Publish(event *events.Event) error {
	value, err := event.Encode()
	if err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Payload.RecipientID().String()),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":   event.Metadata.EventID,
		"event_type": event.Metadata.EventType,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
