package domain

import "errors"

// Session errors. Their messages are sent verbatim to clients as errorMessage.
var (
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrNoRoomsAvailable  = errors.New("no rooms available")
	ErrMemberNotFound    = errors.New("member not found")
	ErrInvalidRoomName   = errors.New("invalid room name")
	ErrPasswordTooLong   = errors.New("password too long")
	ErrUnknownRequest    = errors.New("unknown request")
)
