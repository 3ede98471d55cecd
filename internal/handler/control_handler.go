package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/protocol"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/service"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
)

// ControlServer accepts control-channel connections and answers each
// request with an acknowledgement followed, when accepted, by a result.
type ControlServer struct {
	listener    net.Listener
	rooms       service.RoomService
	idleTimeout time.Duration
	maxPayload  int

	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing atomic.Bool
}

// NewControlServer binds addr. idleTimeout of zero disables the idle read
// deadline.
func NewControlServer(addr string, rooms service.RoomService, idleTimeout time.Duration, maxPayload int) (*ControlServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &ControlServer{
		listener:    lis,
		rooms:       rooms,
		idleTimeout: idleTimeout,
		maxPayload:  maxPayload,
		conns:       make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *ControlServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or Shutdown is called.
// Cancelling ctx stops accepting and unblocks idle readers; it does not
// wait for in-flight requests.
func (s *ControlServer) Serve(ctx context.Context) error {
	l := log.L()
	l.Info().Str("address", s.listener.Addr().String()).Msg("control server listening")

	served := make(chan struct{})
	defer close(served)
	go func() {
		select {
		case <-ctx.Done():
			s.stopAccepting()
		case <-served:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.Warn().Err(err).Msg("temporary accept error")
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("control accept: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *ControlServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *ControlServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Shutdown stops accepting, unblocks idle readers and waits for handlers to
// finish their current request, bounded by ctx.
func (s *ControlServer) Shutdown(ctx context.Context) error {
	err := s.stopAccepting()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// stopAccepting closes the listener once and wakes every blocked reader.
func (s *ControlServer) stopAccepting() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing.Swap(true) {
		return nil
	}
	err := s.listener.Close()
	for conn := range s.conns {
		conn.SetReadDeadline(time.Now())
	}
	return err
}

func (s *ControlServer) handleConn(ctx context.Context, conn net.Conn) {
	peer := peerAddr(conn.RemoteAddr())
	ctx = log.WithFields(ctx,
		log.FieldConnID, uuid.New().String(),
		log.FieldRemoteAddr, peer.String(),
		log.FieldTransport, "tcp",
	)
	l := log.Ctx(ctx)
	l.Debug().Msg("control connection opened")
	defer func() {
		l.Debug().Msg("control connection closed")
	}()

	for {
		if s.closing.Load() {
			return
		}
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		frame, err := protocol.ReadControlFrame(conn, s.maxPayload)
		if err != nil {
			s.logReadError(ctx, err)
			return
		}
		if s.closing.Load() {
			return
		}

		if err := s.serveRequest(ctx, conn, frame, peer); err != nil {
			l.Debug().Err(err).Msg("control request ended the connection")
			return
		}
	}
}

// serveRequest answers one request. A non-nil error closes the connection.
func (s *ControlServer) serveRequest(ctx context.Context, conn net.Conn, frame *protocol.ControlFrame, peer netip.AddrPort) error {
	l := log.Ctx(ctx)
	kind := frame.Kind()
	l.Debug().Str(log.FieldMsgType, kind.String()).Str(log.FieldRoom, frame.RoomName).Msg("control request")

	validationErr := s.rooms.Validate(ctx, frame)
	ack, err := protocol.NewAckFrame(service.ErrorMessage(validationErr))
	if err != nil {
		return fmt.Errorf("encode ack: %w", err)
	}
	if _, err := conn.Write(ack); err != nil {
		return fmt.Errorf("write ack: %w", err)
	}
	if validationErr != nil {
		return validationErr
	}

	var result []byte
	switch kind {
	case protocol.RequestCreateRoom:
		tok, err := s.rooms.CreateRoom(ctx, frame.RoomName, frame.Payload.UserName, frame.Payload.Password, peer)
		result, err = protocol.NewTokenFrame(tok, service.ErrorMessage(err))
		if err != nil {
			return fmt.Errorf("encode token result: %w", err)
		}
	case protocol.RequestJoinRoom:
		tok, err := s.rooms.JoinRoom(ctx, frame.RoomName, frame.Payload.UserName, frame.Payload.Password, peer)
		result, err = protocol.NewTokenFrame(tok, service.ErrorMessage(err))
		if err != nil {
			return fmt.Errorf("encode token result: %w", err)
		}
	case protocol.RequestListRooms:
		rooms, err := s.rooms.ListRooms(ctx)
		result, err = protocol.NewRoomListFrame(rooms, service.ErrorMessage(err))
		if err != nil {
			return fmt.Errorf("encode room list: %w", err)
		}
	default:
		return fmt.Errorf("unexpected request kind %s", kind)
	}

	if _, err := conn.Write(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func (s *ControlServer) logReadError(ctx context.Context, err error) {
	l := log.Ctx(ctx)
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		l.Debug().Msg("peer closed control connection")
	case errors.Is(err, io.ErrUnexpectedEOF):
		l.Debug().Msg("peer closed control connection mid-frame")
	case errors.As(err, &ne) && ne.Timeout():
		if !s.closing.Load() {
			l.Debug().Dur("idle_timeout", s.idleTimeout).Msg("closing idle control connection")
		}
	case errors.Is(err, net.ErrClosed):
		// Shutdown closed the socket.
	case errors.Is(err, protocol.ErrMalformedFrame), errors.Is(err, protocol.ErrPayloadTooLarge):
		l.Warn().Err(err).Msg("protocol error on control connection")
	default:
		l.Warn().Err(err).Msg("control read failed")
	}
}

// peerAddr converts a socket address to netip form. IPv4-mapped IPv6
// addresses are unmapped so both channels agree on the representation.
func peerAddr(addr net.Addr) netip.AddrPort {
	var ap netip.AddrPort
	switch a := addr.(type) {
	case *net.TCPAddr:
		ap = a.AddrPort()
	case *net.UDPAddr:
		ap = a.AddrPort()
	default:
		parsed, err := netip.ParseAddrPort(addr.String())
		if err != nil {
			return netip.AddrPort{}
		}
		ap = parsed
	}
	return unmap(ap)
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
