package store

import (
	"net/netip"
	"time"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/domain"
)

// SessionStore is the authoritative registry of rooms, members and tokens.
// Every method is atomic with respect to every other.
type SessionStore interface {
	CreateRoom(roomName, userName, password string, hostAddr netip.AddrPort) (string, error)
	JoinRoom(roomName, userName, password string, guestAddr netip.AddrPort) (string, error)
	CheckPassword(roomName, password string) error
	ListRooms() ([]string, error)

	MigrateAddress(roomName, token string, newAddr netip.AddrPort) error
	Authenticate(roomName, token string, sender netip.AddrPort) bool
	Touch(roomName, token string) error
	MemberAddresses(roomName string) ([]domain.MemberAddress, error)
	IsHost(roomName, token string) (bool, error)

	RemoveMember(roomName, token string) error
	RemoveRoom(roomName string) ([]domain.MemberAddress, error)
	Leave(roomName, token string) (domain.LeaveResult, error)
	SweepInactive(timeout time.Duration, now time.Time) []domain.SweptMember

	AllAddresses() []domain.MemberAddress
	Snapshot() []domain.RoomSummary
	Room(roomName string) (domain.RoomSummary, error)
}
