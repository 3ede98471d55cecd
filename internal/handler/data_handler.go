package handler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/service"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
)

// DefaultReadBufferSize is the largest datagram read in one call.
const DefaultReadBufferSize = 4096

// DataServer owns the data-channel UDP socket. It implements
// service.Sender so the relay can write through the same socket clients
// send to.
type DataServer struct {
	conn          *net.UDPConn
	readBufSize   int
	sweepInterval time.Duration
	closing       atomic.Bool
}

// NewDataServer binds addr.
func NewDataServer(addr string, readBufSize int, sweepInterval time.Duration) (*DataServer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if readBufSize <= 0 {
		readBufSize = DefaultReadBufferSize
	}
	return &DataServer{
		conn:          conn,
		readBufSize:   readBufSize,
		sweepInterval: sweepInterval,
	}, nil
}

// Addr returns the bound address.
func (s *DataServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Send implements service.Sender.
func (s *DataServer) Send(frame []byte, addr netip.AddrPort) error {
	if !addr.IsValid() {
		return fmt.Errorf("invalid destination address")
	}
	_, err := s.conn.WriteToUDPAddrPort(frame, addr)
	return err
}

// Serve runs the receive loop and the sweep loop until ctx is cancelled or
// Close is called.
func (s *DataServer) Serve(ctx context.Context, relay service.RelayService) error {
	l := log.L()
	l.Info().
		Str("address", s.conn.LocalAddr().String()).
		Dur("sweep_interval", s.sweepInterval).
		Msg("data server listening")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	go s.sweepLoop(ctx, relay)

	ctx = log.WithFields(ctx, log.FieldTransport, "udp")
	buf := make([]byte, s.readBufSize)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// ICMP errors from earlier writes surface here on some
			// platforms; they say nothing about this socket.
			l.Debug().Err(err).Msg("data read failed")
			continue
		}

		relay.HandleDatagram(ctx, buf[:n], unmap(from))
	}
}

func (s *DataServer) sweepLoop(ctx context.Context, relay service.RelayService) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			relay.Sweep(ctx, now)
		}
	}
}

// Close releases the socket and stops Serve.
func (s *DataServer) Close() error {
	if s.closing.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
