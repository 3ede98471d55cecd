package pubsub

import "fmt"

// ChannelRoomEvents is the channel carrying lifecycle events of one room.
const ChannelRoomEvents = "relay:room:%s:events"

// Room lifecycle event types.
const (
	EventRoomCreated    = "room_created"
	EventMemberJoined   = "member_joined"
	EventMemberLeft     = "member_left"
	EventMemberTimedOut = "member_timed_out"
	EventRoomClosed     = "room_closed"
)

// Reasons carried by RoomClosedPayload.
const (
	CloseReasonHostLeft     = "host_left"
	CloseReasonHostTimedOut = "host_timed_out"
	CloseReasonEmpty        = "empty"
	CloseReasonAdmin        = "admin"
	CloseReasonShutdown     = "shutdown"
)

// RoomEventsChannel returns the lifecycle channel for a room.
func RoomEventsChannel(roomName string) string {
	return fmt.Sprintf(ChannelRoomEvents, roomName)
}

// RoomCreatedPayload is published when a host creates a room.
type RoomCreatedPayload struct {
	RoomName string `json:"room_name"`
	HostName string `json:"host_name"`
}

// MemberPayload is published when a member joins, leaves or times out.
type MemberPayload struct {
	RoomName string `json:"room_name"`
	UserName string `json:"user_name"`
	IsHost   bool   `json:"is_host"`
}

// RoomClosedPayload is published when a room is removed.
type RoomClosedPayload struct {
	RoomName string `json:"room_name"`
	Reason   string `json:"reason"`
	Members  int    `json:"members"`
}
