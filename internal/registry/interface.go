package registry

import (
	"context"
	"errors"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/events"
)

var ErrRoomNotRegistered = errors.New("room not registered")

// Directory maps live rooms to the control address of the instance that
// hosts them, so a front door can route clients between relays. It keeps
// itself current by consuming room events.
type Directory interface {
	events.Sink

	Register(ctx context.Context, roomName string) error
	Deregister(ctx context.Context, roomName string) error
	Lookup(ctx context.Context, roomName string) (string, error)
	StartHeartbeat(ctx context.Context) error
	StopHeartbeat()
	Close() error
}

var _ Directory = (*RedisDirectory)(nil)
