package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Data frame layout (one frame per datagram):
//
//	roomNameLen(1) | tokenLen(1) | roomName | token | content(JSON)
const (
	DataHeaderSize = 2

	// MaxTokenBytes is bounded by the one-byte length field.
	MaxTokenBytes = 255
)

// Notification texts carried in server-originated frames.
const (
	closeText   = "The room has been closed."
	timeoutText = "You have been disconnected due to inactivity."
	stopText    = "The server is shutting down for maintenance."
)

// DataContent is the JSON body of a data frame.
type DataContent struct {
	Status   Status `json:"status"`
	UserName string `json:"userName"`
	ChatText string `json:"chatText"`
}

// DataFrame is a decoded data-channel frame.
type DataFrame struct {
	RoomName string
	Token    string
	Content  DataContent
}

// EncodeDataFrame builds a data frame. No bytes are produced when a size
// limit is exceeded or status is not a defined value.
func EncodeDataFrame(roomName, token string, status Status, userName, chatText string) ([]byte, error) {
	if len(roomName) > MaxRoomNameBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrRoomNameTooLong, len(roomName))
	}
	if len(token) > MaxTokenBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTokenTooLong, len(token))
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(status))
	}

	content, err := json.Marshal(DataContent{
		Status:   status,
		UserName: userName,
		ChatText: chatText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data content: %w", err)
	}

	buf := make([]byte, 0, DataHeaderSize+len(roomName)+len(token)+len(content))
	buf = append(buf, byte(len(roomName)), byte(len(token)))
	buf = append(buf, roomName...)
	buf = append(buf, token...)
	buf = append(buf, content...)
	return buf, nil
}

// DecodeDataFrame decodes one datagram.
func DecodeDataFrame(b []byte) (*DataFrame, error) {
	if len(b) < DataHeaderSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrMalformedFrame, len(b))
	}

	roomLen, tokenLen := int(b[0]), int(b[1])
	bodyStart := DataHeaderSize + roomLen + tokenLen
	if len(b) < bodyStart {
		return nil, fmt.Errorf("%w: declared %d header bytes, got %d", ErrMalformedFrame, bodyStart, len(b))
	}

	name := b[DataHeaderSize : DataHeaderSize+roomLen]
	token := b[DataHeaderSize+roomLen : bodyStart]
	if !utf8.Valid(name) || !utf8.Valid(token) {
		return nil, fmt.Errorf("%w: room name or token is not valid UTF-8", ErrMalformedFrame)
	}

	var content DataContent
	if err := json.Unmarshal(b[bodyStart:], &content); err != nil {
		return nil, fmt.Errorf("%w: content: %v", ErrMalformedFrame, err)
	}

	return &DataFrame{
		RoomName: string(name),
		Token:    string(token),
		Content:  content,
	}, nil
}

// NewInitialMessage is sent by a client right after entering a room so the
// server learns its data-channel address.
func NewInitialMessage(roomName, token, userName string) ([]byte, error) {
	return EncodeDataFrame(roomName, token, StatusInitial, userName, "")
}

// NewChatMessage is a chat line sent by a client.
func NewChatMessage(roomName, token, userName, text string) ([]byte, error) {
	return EncodeDataFrame(roomName, token, StatusChat, userName, text)
}

// NewLeaveMessage is sent by a client leaving its room.
func NewLeaveMessage(roomName, token string) ([]byte, error) {
	return EncodeDataFrame(roomName, token, StatusLeave, "", "")
}

// NewRelayMessage is the frame fanned out to the other members of a room.
// It never carries the sender's token.
func NewRelayMessage(userName, text string) ([]byte, error) {
	return EncodeDataFrame("", "", StatusChat, userName, text)
}

// NewCloseMessage tells a member its room no longer exists.
func NewCloseMessage() ([]byte, error) {
	return EncodeDataFrame("", "", StatusClose, "", closeText)
}

// NewTimeoutMessage tells a member it was removed for inactivity.
func NewTimeoutMessage() ([]byte, error) {
	return EncodeDataFrame("", "", StatusTimeout, "", timeoutText)
}

// NewStopMessage tells a member the server is going away.
func NewStopMessage() ([]byte, error) {
	return EncodeDataFrame("", "", StatusStop, "", stopText)
}
