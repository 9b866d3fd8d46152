package session

import "errors"

var (
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomLocked    = errors.New("room is locked")
	ErrNoActiveRound = errors.New("no active round")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrAlreadyInRoom = errors.New("connection already occupies a room")
	ErrNotInRoom     = errors.New("connection is not a member of this room")
)
