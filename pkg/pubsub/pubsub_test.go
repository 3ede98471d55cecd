package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopicAndKey(t *testing.T) {
	tests := []struct {
		channel string
		topic   string
		key     string
		wantErr bool
	}{
		{channel: RoomEventsChannel("lobby"), topic: "relay-events", key: "lobby"},
		{channel: RoomEventsChannel("a:b:c"), topic: "relay-events", key: "a:b:c"},
		{channel: "relay:room:lobby:member_events", topic: "relay-member-events", key: "lobby"},
		{channel: "relay:room::events", wantErr: true},
		{channel: "relay:room:events", wantErr: true},
		{channel: "lobby", wantErr: true},
		{channel: ":room:lobby:events", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			topic, key, err := channelToTopicAndKey(tt.channel)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.topic, topic)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestNewPubSub_None(t *testing.T) {
	for _, driver := range []string{DriverNone, ""} {
		ps, err := NewPubSub(Config{Driver: driver})
		require.NoError(t, err)
		assert.Nil(t, ps)
	}
}

func TestNewPubSub_UnknownDriver(t *testing.T) {
	ps, err := NewPubSub(Config{Driver: "nats"})
	assert.Error(t, err)
	assert.Nil(t, ps)
}

func TestEventPayload(t *testing.T) {
	evt, err := NewEvent(EventRoomClosed, "lobby", RoomClosedPayload{
		RoomName: "lobby",
		Reason:   CloseReasonHostLeft,
		Members:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, EventRoomClosed, evt.Type)
	assert.False(t, evt.Timestamp.IsZero())

	var got RoomClosedPayload
	require.NoError(t, evt.UnmarshalPayload(&got))
	assert.Equal(t, CloseReasonHostLeft, got.Reason)
	assert.Equal(t, 3, got.Members)
}
