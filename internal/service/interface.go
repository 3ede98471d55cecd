package service

import (
	"context"
	"net/netip"
	"time"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/domain"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/protocol"
)

// RoomService handles control-channel requests.
type RoomService interface {
	// Validate is the check behind the acknowledgement frame.
	Validate(ctx context.Context, frame *protocol.ControlFrame) error
	CreateRoom(ctx context.Context, roomName, userName, password string, addr netip.AddrPort) (string, error)
	JoinRoom(ctx context.Context, roomName, userName, password string, addr netip.AddrPort) (string, error)
	ListRooms(ctx context.Context) ([]string, error)
	GetRoom(ctx context.Context, roomName string) (domain.RoomSummary, error)
	Snapshot(ctx context.Context) []domain.RoomSummary
}

// RelayService handles data-channel traffic and membership expiry.
type RelayService interface {
	HandleDatagram(ctx context.Context, data []byte, from netip.AddrPort)
	Sweep(ctx context.Context, now time.Time) int
	CloseRoom(ctx context.Context, roomName, reason string) (int, error)
	NotifyShutdown(ctx context.Context) int
}

// TokenValidator checks the shape of a session token without a store
// lookup.
type TokenValidator interface {
	Validate(tok string) (bool, string)
}

// Sender delivers one datagram. Implementations must be safe for concurrent
// use.
type Sender interface {
	Send(frame []byte, addr netip.AddrPort) error
}
