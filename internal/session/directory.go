package session

import (
	"fmt"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ROOM DIRECTORY
// =============================================================================

// CreateRoom registers code with the requesting connection as owner and sole
// member. A colliding code leaves the existing room untouched.
func (s *Store) CreateRoom(connID, code, ownerName, roomName string) (*internal.Room, error) {
	if _, exists := s.rooms[code]; exists {
		return nil, fmt.Errorf("create room %s: %w", code, ErrRoomExists)
	}
	if current, ok := s.registry.Room(connID); ok {
		return nil, fmt.Errorf("create room %s (conn in %s): %w", code, current, ErrAlreadyInRoom)
	}

	now := s.now()
	owner := &internal.Member{
		ConnID:   connID,
		Name:     ownerName,
		IsOwner:  true,
		JoinedAt: now,
	}
	room := &internal.Room{
		Code:      code,
		Name:      roomName,
		OwnerConn: connID,
		OwnerName: ownerName,
		CreatedAt: now,
		Members:   []*internal.Member{owner},
	}

	s.rooms[code] = room
	// cannot fail: the connection was checked above
	_ = s.registry.Bind(connID, code)

	s.log.WithFields(logrus.Fields{"room": code, "conn": connID}).
		Debugf("[CreateRoom] room %q created by %s", roomName, ownerName)
	return room, nil
}

func (s *Store) Lookup(code string) (*internal.Room, error) {
	room, ok := s.rooms[code]
	if !ok {
		return nil, fmt.Errorf("lookup room %s: %w", code, ErrRoomNotFound)
	}
	return room, nil
}

// ToggleLock flips the lock flag and returns the new state.
func (s *Store) ToggleLock(code string) (bool, error) {
	room, err := s.Lookup(code)
	if err != nil {
		return false, err
	}
	room.Locked = !room.Locked
	s.log.WithField("room", code).Debugf("[ToggleLock] locked=%t", room.Locked)
	return room.Locked, nil
}

// Teardown removes the room, its membership and any round, unbinds every
// member connection and cancels the room's pending deferred tasks. It returns
// the connections that were still members so the caller can notify them.
func (s *Store) Teardown(code string) []string {
	room, ok := s.rooms[code]
	if !ok {
		return nil
	}

	remaining := room.ConnIDs("")
	for _, m := range room.Members {
		if !m.Simulated {
			s.registry.Unbind(m.ConnID)
		}
	}
	cancelled := s.scheduler.CancelRoom(code)

	room.Members = nil
	room.Round = nil
	delete(s.rooms, code)

	s.log.WithFields(logrus.Fields{"room": code, "cancelled_tasks": cancelled}).
		Debug("[Teardown] room removed")
	return remaining
}
