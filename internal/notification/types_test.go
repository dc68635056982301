package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		attempts int
		want     bool
	}{
		{"pending", StatusPending, 0, false},
		{"sending", StatusSending, 1, false},
		{"delivered", StatusDelivered, 1, true},
		{"failed with retries left", StatusFailed, 1, false},
		{"failed exhausted", StatusFailed, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Notification{Status: tt.status, Attempts: tt.attempts, MaxAttempts: 3}
			assert.Equal(t, tt.want, n.Terminal())
		})
	}
}

func TestChannelValid(t *testing.T) {
	for _, ch := range AllChannels {
		assert.True(t, ch.Valid())
	}
	assert.False(t, Channel("carrier-pigeon").Valid())
}

func TestChannelSetRoundTrip(t *testing.T) {
	set := ChannelSet{ChannelEmail, ChannelPush}

	value, err := set.Value()
	require.NoError(t, err)

	var scanned ChannelSet
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, set, scanned)

	assert.True(t, scanned.Contains(ChannelEmail))
	assert.True(t, scanned.Contains(ChannelPush))
	assert.False(t, scanned.Contains(ChannelSMS))
}

func TestTimeOfDayString(t *testing.T) {
	assert.Equal(t, "08:05:00", TimeOfDay{Hour: 8, Minute: 5}.String())
	assert.Equal(t, "22:00:00", TimeOfDay{Hour: 22}.String())
}

func TestTimeOfDayScan(t *testing.T) {
	var fromString TimeOfDay
	require.NoError(t, fromString.Scan("22:30:00"))
	assert.Equal(t, TimeOfDay{Hour: 22, Minute: 30}, fromString)

	var fromBytes TimeOfDay
	require.NoError(t, fromBytes.Scan([]byte("08:00:00")))
	assert.Equal(t, TimeOfDay{Hour: 8}, fromBytes)

	var fromTime TimeOfDay
	require.NoError(t, fromTime.Scan(time.Date(2026, 8, 1, 7, 45, 0, 0, time.UTC)))
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 45}, fromTime)

	var invalid TimeOfDay
	require.Error(t, invalid.Scan(42))
}
