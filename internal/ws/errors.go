package ws

import "errors"

// Protocol errors reported to a single connection as an error frame. None of
// them close the connection.
var (
	ErrRoomRequired   = errors.New("roomId required")
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotAMember     = errors.New("not a member of this room")
	ErrRoomPrivate    = errors.New("room is private")
	ErrNoRoom         = errors.New("join a room first")
	ErrMessageTooLong = errors.New("message too long")
)
