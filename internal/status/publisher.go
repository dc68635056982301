// Package status publishes notification lifecycle events to the delivery
// status topic. Publication is at-least-once with producer-side
// idempotence enabled; downstream consumers deduplicate.
package status

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

// Record is the wire form of one status event, partitioned by
// notification_id.
type Record struct {
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
	EventType      string `json:"event_type"`
	Channel        string `json:"channel"`
	UserID         string `json:"user_id"`
}

// Publisher emits status records for notification transitions.
type Publisher interface {
	PublishStatus(n *notification.Notification) error
	Close() error
}

// KafkaPublisher implements Publisher on a synchronous, idempotent Kafka
// producer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Entry
}

// NewKafkaPublisher creates a status publisher. The producer requires
// acks from all in-sync replicas and enables idempotence, so broker-side
// retries cannot duplicate records within a partition.
func NewKafkaPublisher(cfg config.Kafka, logger *logrus.Entry) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Compression = sarama.CompressionLZ4
	saramaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create status producer: %w", err)
	}

	return &KafkaPublisher{
		producer: producer,
		topic:    cfg.DeliveryTopic,
		logger:   logger,
	}, nil
}

// PublishStatus emits one record for the notification's current status,
// keyed by notification_id so all transitions of one notification land on
// the same partition.
func (p *KafkaPublisher) PublishStatus(n *notification.Notification) error {
	record := Record{
		NotificationID: n.ID.String(),
		Status:         string(n.Status),
		EventType:      n.SourceEventType,
		Channel:        string(n.Channel),
		UserID:         n.UserID.String(),
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status record: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(record.NotificationID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"notification_id": record.NotificationID,
		"status":          record.Status,
		"channel":         record.Channel,
	}).Debug("Status published")
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
