package domain

import (
	"net/netip"
	"time"
)

// SweepReason says why a member was removed by the inactivity sweep.
type SweepReason int

const (
	// ReasonTimedOut is reported for a member whose own lastAccess expired.
	ReasonTimedOut SweepReason = iota
	// ReasonRoomClosed is reported for an active member whose host expired.
	ReasonRoomClosed
)

func (r SweepReason) String() string {
	if r == ReasonRoomClosed {
		return "room_closed"
	}
	return "timed_out"
}

// MemberAddress is where a member's datagrams are delivered.
type MemberAddress struct {
	Token    string
	UserName string
	Address  netip.AddrPort
	IsHost   bool
}

// SweptMember is one member removed by SweepInactive.
type SweptMember struct {
	RoomName string
	Token    string
	UserName string
	Address  netip.AddrPort
	IsHost   bool
	Reason   SweepReason
}

// LeaveResult describes what a Leave removed.
type LeaveResult struct {
	RoomName string
	UserName string
	WasHost  bool
	// Remaining holds the other members of a room closed by its host leaving.
	Remaining []MemberAddress
	// RoomDeleted is set when the room no longer exists after the leave.
	RoomDeleted bool
}

// MemberSummary is a read-only view of a member. Tokens are never exposed.
type MemberSummary struct {
	UserName   string    `json:"userName"`
	Address    string    `json:"address"`
	IsHost     bool      `json:"isHost"`
	LastAccess time.Time `json:"lastAccess"`
}

// RoomSummary is a read-only view of a room.
type RoomSummary struct {
	Name      string          `json:"name"`
	Host      string          `json:"host"`
	CreatedAt time.Time       `json:"createdAt"`
	Members   []MemberSummary `json:"members"`
}
