package session

import (
	"fmt"
	"slices"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/utils"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// MEMBERSHIP TABLE
// =============================================================================

// Departure describes the effect of removing one member.
type Departure struct {
	Code      string
	Member    internal.Member
	Room      *internal.Room
	Empty     bool
	OwnerLeft bool
	Round     RoundChange
}

// TearsDown reports whether the room must be torn down after this departure.
func (d Departure) TearsDown() bool {
	return d.Empty || d.OwnerLeft
}

// AddMember appends a live connection to the room in arrival order.
func (s *Store) AddMember(code, connID, name string) (*internal.Member, error) {
	room, err := s.Lookup(code)
	if err != nil {
		return nil, err
	}
	if current, ok := s.registry.Room(connID); ok {
		return nil, fmt.Errorf("join room %s (conn in %s): %w", code, current, ErrAlreadyInRoom)
	}
	if room.Locked {
		return nil, fmt.Errorf("join room %s: %w", code, ErrRoomLocked)
	}

	member := &internal.Member{
		ConnID:   connID,
		Name:     name,
		JoinedAt: s.now(),
	}
	room.Members = append(room.Members, member)
	if err := s.registry.Bind(connID, code); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"room": code, "conn": connID}).
		Debugf("[AddMember] %s joined, members=%d", name, len(room.Members))
	return member, nil
}

// AddSimulatedMember appends a member with no live connection.
func (s *Store) AddSimulatedMember(code, name string) (*internal.Member, error) {
	room, err := s.Lookup(code)
	if err != nil {
		return nil, err
	}
	if room.Locked {
		return nil, fmt.Errorf("simulated join room %s: %w", code, ErrRoomLocked)
	}

	member := &internal.Member{
		ConnID:    utils.GenerateSimulatedID(),
		Name:      name,
		Simulated: true,
		JoinedAt:  s.now(),
	}
	room.Members = append(room.Members, member)
	return member, nil
}

// ReserveSimulatedJoins reserves up to want pending simulated joins so that
// simulated members plus pending joins never exceed limit. It returns how
// many were granted and the guest number of the first one.
func (s *Store) ReserveSimulatedJoins(code string, want, limit int) (int, int, error) {
	room, err := s.Lookup(code)
	if err != nil {
		return 0, 0, err
	}
	simulated := 0
	for _, m := range room.Members {
		if m.Simulated {
			simulated++
		}
	}
	granted := min(want, limit-simulated-room.PendingJoins)
	if granted <= 0 {
		return 0, 0, nil
	}
	first := room.GuestSeq + 1
	room.GuestSeq += granted
	room.PendingJoins += granted
	return granted, first, nil
}

// ReleaseSimulatedJoin gives back one reservation when its join fires.
func (s *Store) ReleaseSimulatedJoin(code string) {
	if room, ok := s.rooms[code]; ok && room.PendingJoins > 0 {
		room.PendingJoins--
	}
}

// RemoveMember removes connID from room code. It is a no-op when the
// connection is not a member. Teardown is left to the caller so the
// membership delta can be broadcast first.
func (s *Store) RemoveMember(code, connID string) (Departure, bool) {
	room, ok := s.rooms[code]
	if !ok {
		return Departure{}, false
	}
	idx, member := room.MemberByConn(connID)
	if member == nil {
		return Departure{}, false
	}

	room.Members = slices.Delete(room.Members, idx, idx+1)
	if !member.Simulated {
		s.registry.Unbind(connID)
	}

	departure := Departure{
		Code:      code,
		Member:    *member,
		Room:      room,
		Empty:     room.IsEmpty(),
		OwnerLeft: room.OwnerConn == connID,
	}
	if !departure.TearsDown() {
		departure.Round = s.dropFromRound(room, connID)
	}

	s.log.WithFields(logrus.Fields{"room": code, "conn": connID}).
		Debugf("[RemoveMember] %s left, members=%d owner_left=%t", member.Name, len(room.Members), departure.OwnerLeft)
	return departure, true
}

// Disconnect removes a connection from whichever room it occupies.
func (s *Store) Disconnect(connID string) (Departure, bool) {
	code, ok := s.registry.Room(connID)
	if !ok {
		return Departure{}, false
	}
	departure, removed := s.RemoveMember(code, connID)
	if !removed {
		// registry pointed at a room that no longer lists the connection
		s.registry.Unbind(connID)
	}
	return departure, removed
}
