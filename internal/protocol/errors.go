package protocol

import "errors"

var (
	// ErrMalformedFrame is returned for any frame that cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")

	ErrRoomNameTooLong = errors.New("room name exceeds maximum size")
	ErrTokenTooLong    = errors.New("token exceeds maximum size")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
	ErrInvalidStatus   = errors.New("invalid status")
)
