package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// Control frame layout:
//
//	roomNameLen(1) | operation(1) | state(1) | payloadLen(29) | roomName | payload(JSON)
//
// All size fields are unsigned big-endian.
const (
	ControlHeaderSize = 32

	payloadLenOffset = 3
	payloadLenSize   = ControlHeaderSize - payloadLenOffset

	// MaxRoomNameBytes is bounded by the one-byte length field.
	MaxRoomNameBytes = 255

	// MaxControlPayloadBytes is the protocol ceiling for a control payload.
	MaxControlPayloadBytes = 1 << 29
)

// ControlPayload is the JSON body of a control frame. Which fields are set
// depends on the message kind. roomList is always written so that an empty
// list result ([]) stays distinct from a frame that carries no list (null).
type ControlPayload struct {
	UserName     string   `json:"userName,omitempty"`
	Password     string   `json:"password,omitempty"`
	Mode         Mode     `json:"mode,omitempty"`
	AuthOK       bool     `json:"authOk"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	Token        string   `json:"token,omitempty"`
	RoomList     []string `json:"roomList"`
}

// ControlFrame is a decoded control-channel frame.
type ControlFrame struct {
	RoomName  string
	Operation Operation
	State     State
	Payload   ControlPayload
}

// Kind resolves what a request frame asks for.
func (f *ControlFrame) Kind() RequestKind {
	if f.State != StateRequest {
		return RequestUnknown
	}
	switch f.Operation {
	case OpCreateRoom:
		return RequestCreateRoom
	case OpJoinOrList:
		switch f.Payload.Mode {
		case ModeGet:
			return RequestListRooms
		case ModeJoin:
			return RequestJoinRoom
		}
	}
	return RequestUnknown
}

// EncodeControlFrame builds a control frame. No bytes are produced when a
// size limit is exceeded.
func EncodeControlFrame(roomName string, op Operation, state State, payload ControlPayload) ([]byte, error) {
	if len(roomName) > MaxRoomNameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrRoomNameTooLong, len(roomName))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal control payload: %w", err)
	}
	if len(body) > MaxControlPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(body))
	}

	buf := make([]byte, ControlHeaderSize, ControlHeaderSize+len(roomName)+len(body))
	buf[0] = byte(len(roomName))
	buf[1] = byte(op)
	buf[2] = byte(state)
	binary.BigEndian.PutUint64(buf[ControlHeaderSize-8:], uint64(len(body)))

	buf = append(buf, roomName...)
	buf = append(buf, body...)
	return buf, nil
}

// DecodeControlFrame decodes one complete control frame. The buffer must
// hold exactly the header plus the declared body.
func DecodeControlFrame(b []byte) (*ControlFrame, error) {
	if len(b) < ControlHeaderSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrMalformedFrame, len(b))
	}

	roomLen, payloadLen, err := parseControlHeader(b[:ControlHeaderSize])
	if err != nil {
		return nil, err
	}
	if want := ControlHeaderSize + roomLen + payloadLen; len(b) != want {
		return nil, fmt.Errorf("%w: declared %d bytes, got %d", ErrMalformedFrame, want, len(b))
	}

	return decodeControlBody(b[:ControlHeaderSize], b[ControlHeaderSize:], roomLen)
}

// ReadControlFrame reads exactly one frame from r. A peer that closes
// before a full frame arrives yields io.EOF (nothing read) or
// io.ErrUnexpectedEOF (partial frame). Declared payloads above maxPayload
// are rejected before the body is read.
func ReadControlFrame(r io.Reader, maxPayload int) (*ControlFrame, error) {
	if maxPayload <= 0 || maxPayload > MaxControlPayloadBytes {
		maxPayload = MaxControlPayloadBytes
	}

	header := make([]byte, ControlHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	roomLen, payloadLen, err := parseControlHeader(header)
	if err != nil {
		return nil, err
	}
	if payloadLen > maxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, payloadLen)
	}

	body := make([]byte, roomLen+payloadLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return decodeControlBody(header, body, roomLen)
}

func parseControlHeader(h []byte) (roomLen, payloadLen int, err error) {
	// Only the low 8 bytes of the 29-byte field can carry a legal value.
	for _, c := range h[payloadLenOffset : ControlHeaderSize-8] {
		if c != 0 {
			return 0, 0, fmt.Errorf("%w: payload length overflow", ErrMalformedFrame)
		}
	}
	n := binary.BigEndian.Uint64(h[ControlHeaderSize-8:])
	if n > MaxControlPayloadBytes {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	return int(h[0]), int(n), nil
}

func decodeControlBody(header, body []byte, roomLen int) (*ControlFrame, error) {
	name := body[:roomLen]
	if !utf8.Valid(name) {
		return nil, fmt.Errorf("%w: room name is not valid UTF-8", ErrMalformedFrame)
	}

	var payload ControlPayload
	if err := json.Unmarshal(body[roomLen:], &payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedFrame, err)
	}

	return &ControlFrame{
		RoomName:  string(name),
		Operation: Operation(header[1]),
		State:     State(header[2]),
		Payload:   payload,
	}, nil
}

// NewCreateRoomRequest builds a create-room request.
func NewCreateRoomRequest(roomName, userName, password string) ([]byte, error) {
	return EncodeControlFrame(roomName, OpCreateRoom, StateRequest, ControlPayload{
		UserName: userName,
		Password: password,
	})
}

// NewJoinRoomRequest builds a join-room request.
func NewJoinRoomRequest(roomName, userName, password string) ([]byte, error) {
	return EncodeControlFrame(roomName, OpJoinOrList, StateRequest, ControlPayload{
		UserName: userName,
		Password: password,
		Mode:     ModeJoin,
	})
}

// NewListRoomsRequest builds a list-rooms request.
func NewListRoomsRequest() ([]byte, error) {
	return EncodeControlFrame("", OpJoinOrList, StateRequest, ControlPayload{Mode: ModeGet})
}

// NewAckFrame builds the acknowledgement sent after request validation.
// An empty errMsg means the request was accepted.
func NewAckFrame(errMsg string) ([]byte, error) {
	return EncodeControlFrame("", OpResponse, StateAck, ControlPayload{
		AuthOK:       errMsg == "",
		ErrorMessage: errMsg,
	})
}

// NewTokenFrame builds the result of a create or join request.
func NewTokenFrame(token, errMsg string) ([]byte, error) {
	return EncodeControlFrame("", OpResponse, StateResult, ControlPayload{
		AuthOK:       errMsg == "",
		Token:        token,
		ErrorMessage: errMsg,
	})
}

// NewRoomListFrame builds the result of a list request. A nil rooms is sent
// as an empty list.
func NewRoomListFrame(rooms []string, errMsg string) ([]byte, error) {
	if rooms == nil {
		rooms = []string{}
	}
	return EncodeControlFrame("", OpResponse, StateResult, ControlPayload{
		AuthOK:       errMsg == "",
		RoomList:     rooms,
		ErrorMessage: errMsg,
	})
}
