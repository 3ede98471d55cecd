package service

import (
	"context"
	"net/netip"
	"time"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/audit"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/domain"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/events"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/protocol"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/store"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

// relayServiceImpl implements RelayService interface.
type relayServiceImpl struct {
	store          store.SessionStore
	tokens         TokenValidator
	sender         Sender
	emitter        events.Emitter
	sessionTimeout time.Duration
}

// NewRelayService creates a new relay service. Members idle for longer than
// sessionTimeout are removed by Sweep. Datagrams whose token fails tokens
// are dropped before the store is consulted.
func NewRelayService(s store.SessionStore, tokens TokenValidator, sender Sender, emitter events.Emitter, sessionTimeout time.Duration) RelayService {
	return &relayServiceImpl{
		store:          s,
		tokens:         tokens,
		sender:         sender,
		emitter:        emitter,
		sessionTimeout: sessionTimeout,
	}
}

// HandleDatagram decodes one datagram and acts on it. Nothing is ever sent
// back to an unauthenticated sender.
func (s *relayServiceImpl) HandleDatagram(ctx context.Context, data []byte, from netip.AddrPort) {
	l := log.Ctx(ctx)

	frame, err := protocol.DecodeDataFrame(data)
	if err != nil {
		l.Debug().Err(err).Str(log.FieldRemoteAddr, from.String()).Int("bytes", len(data)).Msg("dropping undecodable datagram")
		return
	}

	if ok, reason := s.tokens.Validate(frame.Token); !ok {
		l.Debug().
			Str(log.FieldRemoteAddr, from.String()).
			Str("reason", reason).
			Msg("dropping datagram with malformed token")
		return
	}

	switch frame.Content.Status {
	case protocol.StatusInitial:
		s.handleInitial(ctx, frame, from)
	case protocol.StatusChat:
		s.handleChat(ctx, frame, from)
	case protocol.StatusLeave:
		s.handleLeave(ctx, frame, from)
	default:
		l.Debug().
			Str(log.FieldRemoteAddr, from.String()).
			Str(log.FieldMsgType, frame.Content.Status.String()).
			Msg("dropping datagram with unexpected status")
	}
}

func (s *relayServiceImpl) handleInitial(ctx context.Context, frame *protocol.DataFrame, from netip.AddrPort) {
	if err := s.store.MigrateAddress(frame.RoomName, frame.Token, from); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldRoom, frame.RoomName).Str(log.FieldRemoteAddr, from.String()).Msg("initial message rejected")
		return
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoom, frame.RoomName).Str(log.FieldRemoteAddr, from.String()).Msg("data address registered")
}

func (s *relayServiceImpl) handleChat(ctx context.Context, frame *protocol.DataFrame, from netip.AddrPort) {
	l := log.Ctx(ctx)

	if err := s.store.MigrateAddress(frame.RoomName, frame.Token, from); err != nil {
		l.Debug().Err(err).Str(log.FieldRoom, frame.RoomName).Str(log.FieldRemoteAddr, from.String()).Msg("chat message rejected")
		return
	}
	if err := s.store.Touch(frame.RoomName, frame.Token); err != nil {
		l.Debug().Err(err).Str(log.FieldRoom, frame.RoomName).Msg("chat message rejected")
		return
	}
	if !s.store.Authenticate(frame.RoomName, frame.Token, from) {
		l.Debug().Str(log.FieldRoom, frame.RoomName).Str(log.FieldRemoteAddr, from.String()).Msg("authentication failed")
		return
	}

	members, err := s.store.MemberAddresses(frame.RoomName)
	if err != nil {
		// The room closed between authentication and fan-out.
		return
	}

	userName := frame.Content.UserName
	for _, m := range members {
		if m.Token == frame.Token {
			userName = m.UserName
			break
		}
	}

	relay, err := protocol.NewRelayMessage(userName, frame.Content.ChatText)
	if err != nil {
		l.Error().Err(err).Msg("failed to encode relay message")
		return
	}

	sent := 0
	for _, m := range members {
		if m.Token == frame.Token {
			continue
		}
		if s.send(ctx, relay, m.Address) {
			sent++
		}
	}

	l.Debug().Str(log.FieldRoom, frame.RoomName).Str(log.FieldUsername, userName).Int("recipients", sent).Msg("relayed chat message")
}

func (s *relayServiceImpl) handleLeave(ctx context.Context, frame *protocol.DataFrame, from netip.AddrPort) {
	l := log.Ctx(ctx)

	if err := s.store.MigrateAddress(frame.RoomName, frame.Token, from); err != nil {
		l.Debug().Err(err).Str(log.FieldRoom, frame.RoomName).Str(log.FieldRemoteAddr, from.String()).Msg("leave message rejected")
		return
	}
	if !s.store.Authenticate(frame.RoomName, frame.Token, from) {
		l.Debug().Str(log.FieldRoom, frame.RoomName).Str(log.FieldRemoteAddr, from.String()).Msg("authentication failed")
		return
	}

	res, err := s.store.Leave(frame.RoomName, frame.Token)
	if err != nil {
		// A concurrent sweep or close got there first.
		l.Debug().Err(err).Str(log.FieldRoom, frame.RoomName).Msg("leave found nothing to remove")
		return
	}

	audit.Log(ctx, audit.ActionLeaveRoom, res.RoomName, res.UserName, "member left")
	s.emitter.Emit(pubsub.EventMemberLeft, res.RoomName, pubsub.MemberPayload{
		RoomName: res.RoomName,
		UserName: res.UserName,
		IsHost:   res.WasHost,
	})

	if res.WasHost {
		s.notifyClosed(ctx, res.Remaining)
		s.roomClosed(ctx, res.RoomName, res.UserName, pubsub.CloseReasonHostLeft, len(res.Remaining)+1)
		return
	}
	if res.RoomDeleted {
		s.roomClosed(ctx, res.RoomName, res.UserName, pubsub.CloseReasonEmpty, 1)
	}
}

// Sweep removes members idle for longer than the session timeout and tells
// each of them why. It returns the number of members removed.
func (s *relayServiceImpl) Sweep(ctx context.Context, now time.Time) int {
	swept := s.store.SweepInactive(s.sessionTimeout, now)
	if len(swept) == 0 {
		return 0
	}

	timeoutFrame, err := protocol.NewTimeoutMessage()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to encode timeout message")
		return len(swept)
	}
	closeFrame, err := protocol.NewCloseMessage()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to encode close message")
		return len(swept)
	}

	closedRooms := make(map[string]int)
	hostOf := make(map[string]string)
	for _, m := range swept {
		switch m.Reason {
		case domain.ReasonTimedOut:
			s.send(ctx, timeoutFrame, m.Address)
			audit.Log(ctx, audit.ActionMemberTimedOut, m.RoomName, m.UserName, "member timed out")
			s.emitter.Emit(pubsub.EventMemberTimedOut, m.RoomName, pubsub.MemberPayload{
				RoomName: m.RoomName,
				UserName: m.UserName,
				IsHost:   m.IsHost,
			})
		case domain.ReasonRoomClosed:
			s.send(ctx, closeFrame, m.Address)
		}

		if m.IsHost {
			hostOf[m.RoomName] = m.UserName
			closedRooms[m.RoomName] = 0
		}
	}
	for _, m := range swept {
		if _, ok := closedRooms[m.RoomName]; ok {
			closedRooms[m.RoomName]++
		}
	}
	for roomName, members := range closedRooms {
		s.roomClosed(ctx, roomName, hostOf[roomName], pubsub.CloseReasonHostTimedOut, members)
	}

	l := log.Ctx(ctx)
	l.Info().Int("removed", len(swept)).Int("rooms_closed", len(closedRooms)).Msg("inactivity sweep")
	return len(swept)
}

// CloseRoom removes a room and sends CLOSE to all of its members.
func (s *relayServiceImpl) CloseRoom(ctx context.Context, roomName, reason string) (int, error) {
	members, err := s.store.RemoveRoom(roomName)
	if err != nil {
		return 0, err
	}

	s.notifyClosed(ctx, members)

	var host string
	for _, m := range members {
		if m.IsHost {
			host = m.UserName
		}
	}
	s.roomClosed(ctx, roomName, host, reason, len(members))
	return len(members), nil
}

// NotifyShutdown sends STOP to every registered address once. Rooms stay in
// the store; the process is about to exit.
func (s *relayServiceImpl) NotifyShutdown(ctx context.Context) int {
	l := log.Ctx(ctx)

	stop, err := protocol.NewStopMessage()
	if err != nil {
		l.Error().Err(err).Msg("failed to encode stop message")
		return 0
	}

	seen := make(map[netip.AddrPort]struct{})
	for _, m := range s.store.AllAddresses() {
		if _, dup := seen[m.Address]; dup {
			continue
		}
		seen[m.Address] = struct{}{}
		s.send(ctx, stop, m.Address)
	}

	for _, room := range s.store.Snapshot() {
		s.emitter.Emit(pubsub.EventRoomClosed, room.Name, pubsub.RoomClosedPayload{
			RoomName: room.Name,
			Reason:   pubsub.CloseReasonShutdown,
			Members:  len(room.Members),
		})
	}

	l.Info().Int("addresses", len(seen)).Msg("sent stop notification")
	return len(seen)
}

func (s *relayServiceImpl) notifyClosed(ctx context.Context, members []domain.MemberAddress) {
	if len(members) == 0 {
		return
	}
	closeFrame, err := protocol.NewCloseMessage()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to encode close message")
		return
	}
	for _, m := range members {
		s.send(ctx, closeFrame, m.Address)
	}
}

func (s *relayServiceImpl) roomClosed(ctx context.Context, roomName, host, reason string, members int) {
	audit.LogWithDetail(ctx, audit.ActionCloseRoom, roomName, host, reason, "room closed")
	s.emitter.Emit(pubsub.EventRoomClosed, roomName, pubsub.RoomClosedPayload{
		RoomName: roomName,
		Reason:   reason,
		Members:  members,
	})
}

// send reports whether the datagram left. Failures are logged and never
// interrupt the caller's loop.
func (s *relayServiceImpl) send(ctx context.Context, frame []byte, addr netip.AddrPort) bool {
	if err := s.sender.Send(frame, addr); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRemoteAddr, addr.String()).Msg("failed to send datagram")
		return false
	}
	return true
}
