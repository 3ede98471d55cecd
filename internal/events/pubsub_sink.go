package events

import (
	"context"
	"fmt"

	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

// PubSubSink publishes every event on the room's lifecycle channel.
type PubSubSink struct {
	publisher pubsub.Publisher
	driver    string
}

// NewPubSubSink wraps a publisher.
func NewPubSubSink(publisher pubsub.Publisher, driver string) *PubSubSink {
	return &PubSubSink{publisher: publisher, driver: driver}
}

func (s *PubSubSink) Name() string {
	return "pubsub:" + s.driver
}

func (s *PubSubSink) Handle(ctx context.Context, event *pubsub.Event) error {
	if err := s.publisher.Publish(ctx, pubsub.RoomEventsChannel(event.RoomName), event); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}
