package service

import (
	"context"
	"errors"
	"net/netip"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/audit"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/domain"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/events"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/protocol"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/store"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

// roomServiceImpl implements RoomService interface.
type roomServiceImpl struct {
	store   store.SessionStore
	emitter events.Emitter
}

// NewRoomService creates a new room service.
func NewRoomService(s store.SessionStore, emitter events.Emitter) RoomService {
	return &roomServiceImpl{
		store:   s,
		emitter: emitter,
	}
}

// Validate accepts create, list and join requests. A join must carry the
// right password for an existing room; a missing room is left for JoinRoom
// to report.
func (s *roomServiceImpl) Validate(ctx context.Context, frame *protocol.ControlFrame) error {
	switch frame.Kind() {
	case protocol.RequestCreateRoom, protocol.RequestListRooms:
		return nil
	case protocol.RequestJoinRoom:
		if err := s.store.CheckPassword(frame.RoomName, frame.Payload.Password); err != nil {
			audit.LogWithDetail(ctx, audit.ActionJoinRejected, frame.RoomName, frame.Payload.UserName, err.Error(), "join rejected")
			return err
		}
		return nil
	default:
		return domain.ErrUnknownRequest
	}
}

// CreateRoom creates a room with the caller as host.
func (s *roomServiceImpl) CreateRoom(ctx context.Context, roomName, userName, password string, addr netip.AddrPort) (string, error) {
	l := log.Ctx(ctx)

	tok, err := s.store.CreateRoom(roomName, userName, password, addr)
	if err != nil {
		if !isSessionError(err) {
			l.Error().Err(err).Str(log.FieldRoom, roomName).Msg("failed to create room")
		}
		return "", err
	}

	audit.Log(ctx, audit.ActionCreateRoom, roomName, userName, "room created")
	s.emitter.Emit(pubsub.EventRoomCreated, roomName, pubsub.RoomCreatedPayload{
		RoomName: roomName,
		HostName: userName,
	})
	return tok, nil
}

// JoinRoom adds the caller to an existing room as a guest.
func (s *roomServiceImpl) JoinRoom(ctx context.Context, roomName, userName, password string, addr netip.AddrPort) (string, error) {
	l := log.Ctx(ctx)

	tok, err := s.store.JoinRoom(roomName, userName, password, addr)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPassword):
			audit.LogWithDetail(ctx, audit.ActionJoinRejected, roomName, userName, err.Error(), "join rejected")
		case !isSessionError(err):
			l.Error().Err(err).Str(log.FieldRoom, roomName).Msg("failed to join room")
		}
		return "", err
	}

	audit.Log(ctx, audit.ActionJoinRoom, roomName, userName, "member joined")
	s.emitter.Emit(pubsub.EventMemberJoined, roomName, pubsub.MemberPayload{
		RoomName: roomName,
		UserName: userName,
	})
	return tok, nil
}

// ListRooms returns every room name in sorted order.
func (s *roomServiceImpl) ListRooms(ctx context.Context) ([]string, error) {
	return s.store.ListRooms()
}

func (s *roomServiceImpl) GetRoom(ctx context.Context, roomName string) (domain.RoomSummary, error) {
	return s.store.Room(roomName)
}

func (s *roomServiceImpl) Snapshot(ctx context.Context) []domain.RoomSummary {
	return s.store.Snapshot()
}

// ErrorMessage is the errorMessage sent to a client for err. Server faults
// are not described.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if isSessionError(err) {
		return err.Error()
	}
	return "internal server error"
}

// isSessionError reports errors that are a normal answer to the client
// rather than a server fault.
func isSessionError(err error) bool {
	for _, target := range []error{
		domain.ErrRoomAlreadyExists,
		domain.ErrRoomNotFound,
		domain.ErrInvalidPassword,
		domain.ErrNoRoomsAvailable,
		domain.ErrMemberNotFound,
		domain.ErrInvalidRoomName,
		domain.ErrPasswordTooLong,
		domain.ErrUnknownRequest,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
