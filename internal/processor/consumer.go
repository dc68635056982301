package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/events"
)

// eventHandler processes one raw domain-event record.
type eventHandler interface {
	Handle(ctx context.Context, raw []byte) error
}

// Consumer reads the domain events topic as part of a consumer group and
// feeds each record to the Handler. Offsets are committed manually, only
// after the handler finishes, so a crash mid-record causes redelivery
// rather than loss.
type Consumer struct {
	group     sarama.ConsumerGroup
	topic     string
	handler   eventHandler
	threshold int
	logger    *logrus.Entry

	// failures counts consecutive transient handler failures per record
	// so a poison pill cannot wedge its partition forever. Guarded by mu:
	// sarama runs ConsumeClaim on one goroutine per claimed partition.
	mu       sync.Mutex
	failures map[string]int
}

// NewConsumer creates a consumer group member for the domain events topic.
func NewConsumer(kafka config.Kafka, proc config.Processor, handler *Handler, logger *logrus.Entry) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = false
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(kafka.BootstrapServers, proc.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		group:     group,
		topic:     kafka.DomainEventsTopic,
		handler:   handler,
		threshold: proc.PoisonPillThreshold,
		logger:    logger,
		failures:  make(map[string]int),
	}, nil
}

// Run consumes until ctx is cancelled. Consume returns whenever a
// session ends (rebalance, broker hiccup, or a deliberate error from
// ConsumeClaim after a transient failure); the loop rejoins and resumes
// from the last committed offset, which is what redelivers failed
// records.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("Consumer group error")
		}
	}()

	c.logger.WithField("topic", c.topic).Info("Event consumer started")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.WithError(err).Warn("Consumer session ended, rejoining")
		}
	}
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() error {
	return c.group.Close()
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.WithField("claims", session.Claims()).Info("Consumer session started")
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes one partition's records sequentially. Each
// record is committed individually:
//
//   - success: commit and move on
//   - invalid event (malformed, unknown type): log and commit; retrying
//     cannot fix a bad payload
//   - transient failure: return an error to end the session, forcing
//     redelivery from the committed offset; after threshold consecutive
//     failures the record is treated as a poison pill and committed past
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			logger := c.logger.WithFields(logrus.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})

			key := recordKey(message)

			err := c.handler.Handle(session.Context(), message.Value)
			if err == nil {
				c.clearFailures(key)
				session.MarkMessage(message, "")
				session.Commit()
				continue
			}

			if errors.Is(err, events.ErrInvalidEvent) {
				logger.WithError(err).Error("Skipping invalid event")
				session.MarkMessage(message, "")
				session.Commit()
				continue
			}

			attempts := c.recordFailure(key)
			if attempts >= c.threshold {
				logger.WithError(err).WithField("attempts", attempts).
					Error("Poison pill exceeded failure threshold, committing past record")
				c.clearFailures(key)
				session.MarkMessage(message, "")
				session.Commit()
				continue
			}

			logger.WithError(err).WithField("attempts", attempts).
				Warn("Event processing failed, forcing redelivery")
			return fmt.Errorf("failed to process record at offset %d: %w", message.Offset, err)
		}
	}
}

func (c *Consumer) recordFailure(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[key]++
	return c.failures[key]
}

func (c *Consumer) clearFailures(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, key)
}

func recordKey(m *sarama.ConsumerMessage) string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}
