package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/events"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/password"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/protocol"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/service"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/store"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/token"
)

type stack struct {
	control *ControlServer
	data    *DataServer
	store   *store.MemoryStore
	rooms   service.RoomService
	relay   service.RelayService
}

func startStack(t *testing.T, sessionTimeout, sweepInterval time.Duration) *stack {
	t.Helper()

	gen, err := token.NewNanoIDGenerator(token.DefaultSize)
	require.NoError(t, err)
	st := store.NewMemoryStore(gen, password.NewBcryptHasher(bcrypt.MinCost))
	dispatcher := events.NewDispatcher("test", 16)

	data, err := NewDataServer("127.0.0.1:0", DefaultReadBufferSize, sweepInterval)
	require.NoError(t, err)

	rooms := service.NewRoomService(st, dispatcher)
	relay := service.NewRelayService(st, gen, data, dispatcher, sessionTimeout)

	control, err := NewControlServer("127.0.0.1:0", rooms, 0, 1<<16)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go control.Serve(ctx)
	go data.Serve(ctx, relay)

	t.Cleanup(func() {
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		control.Shutdown(sctx)
		data.Close()
	})

	return &stack{control: control, data: data, store: st, rooms: rooms, relay: relay}
}

type controlClient struct {
	t    *testing.T
	conn net.Conn
}

func dialControl(t *testing.T, s *stack) *controlClient {
	t.Helper()
	conn, err := net.Dial("tcp", s.control.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return &controlClient{t: t, conn: conn}
}

// roundTrip sends a request and returns the ack and, when the ack is
// positive, the result.
func (c *controlClient) roundTrip(req []byte, err error) (*protocol.ControlFrame, *protocol.ControlFrame) {
	c.t.Helper()
	require.NoError(c.t, err)
	_, err = c.conn.Write(req)
	require.NoError(c.t, err)

	ack, err := protocol.ReadControlFrame(c.conn, 0)
	require.NoError(c.t, err)
	require.Equal(c.t, protocol.OpResponse, ack.Operation)
	require.Equal(c.t, protocol.StateAck, ack.State)
	if !ack.Payload.AuthOK {
		return ack, nil
	}

	result, err := protocol.ReadControlFrame(c.conn, 0)
	require.NoError(c.t, err)
	require.Equal(c.t, protocol.StateResult, result.State)
	return ack, result
}

type dataClient struct {
	t    *testing.T
	conn *net.UDPConn
	srv  *net.UDPAddr
}

func dialData(t *testing.T, s *stack) *dataClient {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &dataClient{t: t, conn: conn, srv: s.data.Addr().(*net.UDPAddr)}
}

func (c *dataClient) send(b []byte, err error) {
	c.t.Helper()
	require.NoError(c.t, err)
	_, err = c.conn.WriteToUDP(b, c.srv)
	require.NoError(c.t, err)
}

func (c *dataClient) recv(timeout time.Duration) (*protocol.DataFrame, bool) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(timeout)))
	buf := make([]byte, DefaultReadBufferSize)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, false
	}
	f, err := protocol.DecodeDataFrame(buf[:n])
	require.NoError(c.t, err)
	return f, true
}

// waitRegistered blocks until the relay has moved tok to c's address.
func (c *dataClient) waitRegistered(s *stack, roomName, tok string) {
	c.t.Helper()
	local := c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	require.Eventually(c.t, func() bool {
		return s.store.Authenticate(roomName, tok, local)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScenario_LobbyChat(t *testing.T) {
	s := startStack(t, time.Minute, time.Minute)

	a := dialControl(t, s)
	ack, res := a.roundTrip(protocol.NewCreateRoomRequest("lobby", "A", "p"))
	require.True(t, ack.Payload.AuthOK)
	require.NotNil(t, res)
	require.True(t, res.Payload.AuthOK)
	t1 := res.Payload.Token
	require.NotEmpty(t, t1)

	b := dialControl(t, s)
	_, res = b.roundTrip(protocol.NewListRoomsRequest())
	require.NotNil(t, res)
	assert.Equal(t, []string{"lobby"}, res.Payload.RoomList)

	// Same connection, second request.
	_, res = b.roundTrip(protocol.NewJoinRoomRequest("lobby", "B", "p"))
	require.NotNil(t, res)
	t2 := res.Payload.Token
	require.NotEmpty(t, t2)
	assert.NotEqual(t, t1, t2)

	aData := dialData(t, s)
	bData := dialData(t, s)
	aData.send(protocol.NewInitialMessage("lobby", t1, "A"))
	bData.send(protocol.NewInitialMessage("lobby", t2, "B"))
	aData.waitRegistered(s, "lobby", t1)
	bData.waitRegistered(s, "lobby", t2)

	bData.send(protocol.NewChatMessage("lobby", t2, "B", "hi"))

	got, ok := aData.recv(2 * time.Second)
	require.True(t, ok, "A received nothing")
	assert.Equal(t, protocol.StatusChat, got.Content.Status)
	assert.Equal(t, "B", got.Content.UserName)
	assert.Equal(t, "hi", got.Content.ChatText)

	_, ok = aData.recv(200 * time.Millisecond)
	assert.False(t, ok, "A received an extra datagram")
	_, ok = bData.recv(200 * time.Millisecond)
	assert.False(t, ok, "sender received its own message")
}

func TestHostLeave_SendsClose(t *testing.T) {
	s := startStack(t, time.Minute, time.Minute)

	a := dialControl(t, s)
	_, res := a.roundTrip(protocol.NewCreateRoomRequest("lobby", "A", "p"))
	require.NotNil(t, res)
	t1 := res.Payload.Token

	b := dialControl(t, s)
	_, res = b.roundTrip(protocol.NewJoinRoomRequest("lobby", "B", "p"))
	require.NotNil(t, res)
	t2 := res.Payload.Token

	aData := dialData(t, s)
	bData := dialData(t, s)
	aData.send(protocol.NewInitialMessage("lobby", t1, "A"))
	bData.send(protocol.NewInitialMessage("lobby", t2, "B"))
	bData.waitRegistered(s, "lobby", t2)
	aData.send(protocol.NewLeaveMessage("lobby", t1))

	got, ok := bData.recv(2 * time.Second)
	require.True(t, ok, "guest received nothing")
	assert.Equal(t, protocol.StatusClose, got.Content.Status)

	_, ok = bData.recv(200 * time.Millisecond)
	assert.False(t, ok, "guest received more than one CLOSE")

	_, res = b.roundTrip(protocol.NewListRoomsRequest())
	require.NotNil(t, res)
	assert.False(t, res.Payload.AuthOK)
	assert.Equal(t, "no rooms available", res.Payload.ErrorMessage)
}

func TestSweep_TimesOutIdleMembers(t *testing.T) {
	s := startStack(t, 100*time.Millisecond, 50*time.Millisecond)

	a := dialControl(t, s)
	_, res := a.roundTrip(protocol.NewCreateRoomRequest("lobby", "A", "p"))
	require.NotNil(t, res)

	aData := dialData(t, s)
	aData.send(protocol.NewInitialMessage("lobby", res.Payload.Token, "A"))

	got, ok := aData.recv(2 * time.Second)
	require.True(t, ok, "host received nothing")
	assert.Equal(t, protocol.StatusTimeout, got.Content.Status)

	_, err := s.store.ListRooms()
	assert.Error(t, err)
}

func TestControl_ValidationFailureClosesConnection(t *testing.T) {
	s := startStack(t, time.Minute, time.Minute)

	a := dialControl(t, s)
	_, res := a.roundTrip(protocol.NewCreateRoomRequest("lobby", "A", "p"))
	require.NotNil(t, res)

	b := dialControl(t, s)
	ack, res := b.roundTrip(protocol.NewJoinRoomRequest("lobby", "B", "wrong"))
	assert.False(t, ack.Payload.AuthOK)
	assert.Equal(t, "invalid password", ack.Payload.ErrorMessage)
	assert.Nil(t, res)

	_, err := protocol.ReadControlFrame(b.conn, 0)
	assert.Error(t, err, "connection should be closed after a rejected request")
}

func TestControl_DuplicateRoom(t *testing.T) {
	s := startStack(t, time.Minute, time.Minute)

	a := dialControl(t, s)
	_, res := a.roundTrip(protocol.NewCreateRoomRequest("lobby", "A", "p"))
	require.NotNil(t, res)

	_, res = a.roundTrip(protocol.NewCreateRoomRequest("lobby", "A", "p"))
	require.NotNil(t, res)
	assert.False(t, res.Payload.AuthOK)
	assert.Empty(t, res.Payload.Token)
	assert.Equal(t, "room already exists", res.Payload.ErrorMessage)
}

func TestControl_MalformedFrameClosesConnection(t *testing.T) {
	s := startStack(t, time.Minute, time.Minute)

	c := dialControl(t, s)
	header := make([]byte, protocol.ControlHeaderSize)
	header[3] = 0xff // payload length overflow
	_, err := c.conn.Write(header)
	require.NoError(t, err)

	_, err = protocol.ReadControlFrame(c.conn, 0)
	assert.Error(t, err)
}

func TestShutdown_SendsStop(t *testing.T) {
	s := startStack(t, time.Minute, time.Minute)

	a := dialControl(t, s)
	_, res := a.roundTrip(protocol.NewCreateRoomRequest("lobby", "A", "p"))
	require.NotNil(t, res)

	aData := dialData(t, s)
	aData.send(protocol.NewInitialMessage("lobby", res.Payload.Token, "A"))

	aData.waitRegistered(s, "lobby", res.Payload.Token)

	assert.Equal(t, 1, s.relay.NotifyShutdown(context.Background()))

	got, ok := aData.recv(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, protocol.StatusStop, got.Content.Status)
}
