package status

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

func newMockPublisher(t *testing.T) (*KafkaPublisher, *mocks.SyncProducer) {
	t.Helper()

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return &KafkaPublisher{
		producer: producer,
		topic:    "notification.delivery",
		logger:   logger.WithField("test", t.Name()),
	}, producer
}

func TestPublishStatusRecord(t *testing.T) {
	publisher, producer := newMockPublisher(t)

	n := &notification.Notification{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Channel:         notification.ChannelEmail,
		Status:          notification.StatusDelivered,
		SourceEventType: "order.completed",
	}

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var record Record
		if err := json.Unmarshal(value, &record); err != nil {
			return err
		}
		assert.Equal(t, n.ID.String(), record.NotificationID)
		assert.Equal(t, "delivered", record.Status)
		assert.Equal(t, "order.completed", record.EventType)
		assert.Equal(t, "email", record.Channel)
		assert.Equal(t, n.UserID.String(), record.UserID)
		return nil
	})

	require.NoError(t, publisher.PublishStatus(n))
	require.NoError(t, publisher.Close())
}

func TestPublishStatusBrokerFailure(t *testing.T) {
	publisher, producer := newMockPublisher(t)

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := publisher.PublishStatus(&notification.Notification{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Channel: notification.ChannelSMS,
		Status:  notification.StatusPending,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish status")
	require.NoError(t, publisher.Close())
}
