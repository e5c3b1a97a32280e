package signaling

import "errors"

var (
	// ErrRoomFull is returned when a join would push a room past capacity.
	ErrRoomFull = errors.New("room is full")

	ErrAlreadyInRoom = errors.New("member already in a room")
	ErrNotMember     = errors.New("member is not in the room")
	ErrInvalidRoomID = errors.New("room id is required")
)
