package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*pubsub.Event
	err    error
	block  chan struct{}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Handle(ctx context.Context, event *pubsub.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{err: errors.New("sink down")}
	d := NewDispatcher("relay-1", 16, first, second)

	go d.Run(context.Background())

	d.Emit(pubsub.EventRoomCreated, "lobby", pubsub.RoomCreatedPayload{RoomName: "lobby", HostName: "alice"})
	d.Emit(pubsub.EventMemberJoined, "lobby", pubsub.MemberPayload{RoomName: "lobby", UserName: "bob"})
	d.Emit(pubsub.EventRoomClosed, "lobby", pubsub.RoomClosedPayload{RoomName: "lobby", Reason: pubsub.CloseReasonHostLeft, Members: 2})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	want := []string{pubsub.EventRoomCreated, pubsub.EventMemberJoined, pubsub.EventRoomClosed}
	assert.Equal(t, want, first.types())
	assert.Equal(t, want, second.types())

	var payload pubsub.RoomCreatedPayload
	require.NoError(t, first.events[0].UnmarshalPayload(&payload))
	assert.Equal(t, "alice", payload.HostName)
	assert.Equal(t, "relay-1", first.events[0].InstanceID)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher("relay-1", 1, sink)

	go d.Run(context.Background())

	for i := 0; i < 10; i++ {
		d.Emit(pubsub.EventMemberJoined, "lobby", pubsub.MemberPayload{RoomName: "lobby"})
	}
	assert.Greater(t, d.Dropped(), uint64(0))

	close(sink.block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatcher_EmitAfterClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher("relay-1", 4, sink)
	go d.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	require.NoError(t, d.Close(ctx))

	assert.NotPanics(t, func() {
		d.Emit(pubsub.EventRoomCreated, "lobby", nil)
	})
	assert.Empty(t, sink.types())
}

func TestPubSubSink_Channel(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewPubSubSink(pub, pubsub.DriverRedis)

	evt, err := pubsub.NewEvent(pubsub.EventRoomCreated, "lobby", nil)
	require.NoError(t, err)
	require.NoError(t, sink.Handle(context.Background(), evt))

	assert.Equal(t, []string{"relay:room:lobby:events"}, pub.channels)
	assert.Equal(t, "pubsub:redis", sink.Name())
}
