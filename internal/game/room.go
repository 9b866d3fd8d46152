package game

import (
	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/session"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ROOM MANAGEMENT
// =============================================================================

const (
	closeReasonOwnerLeft = "owner left the room"
	closeReasonEmpty     = "room is empty"
)

func (r *Router) createRoom(connID string, p *CreateRoomPayload) error {
	code := string(p.Code)
	room, err := r.store.CreateRoom(connID, code, p.Owner, p.Name)
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"room": code, "conn": connID}).
		Infof("[CreateRoom] room %q created by %s", room.Name, room.OwnerName)

	r.sendTo(connID, EventRoomCreated, internal.RoomSnapshotData{
		Details:     room.Details(),
		UsersInRoom: room.Snapshot(),
	})
	return nil
}

func (r *Router) joinRoom(connID string, p *JoinRoomPayload) error {
	code := string(p.Code)
	member, err := r.store.AddMember(code, connID, p.Username)
	if err != nil {
		return err
	}
	room, err := r.store.Lookup(code)
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"room": code, "conn": connID}).
		Infof("[JoinRoom] %s joined, members=%d", member.Name, len(room.Members))

	r.sendTo(connID, EventRoomJoined, internal.RoomSnapshotData{
		Details:     room.Details(),
		UsersInRoom: room.Snapshot(),
	})
	r.broadcastToRoom(room, EventUserJoined, internal.UserJoinedData{
		Username:    member.Name,
		UsersInRoom: room.Snapshot(),
	})
	return nil
}

func (r *Router) leaveRoom(connID string, p *RoomPayload) error {
	code := string(p.Code)
	if _, err := r.requireMember(connID, code); err != nil {
		return err
	}
	departure, ok := r.store.RemoveMember(code, connID)
	if ok {
		r.depart(departure)
	}
	return nil
}

func (r *Router) toggleLock(connID string, p *RoomPayload) error {
	code := string(p.Code)
	room, err := r.requireMember(connID, code)
	if err != nil {
		return err
	}
	locked, err := r.store.ToggleLock(code)
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"room": code, "conn": connID}).Infof("[ToggleLock] locked=%t", locked)
	r.broadcastToRoom(room, EventRoomLockedToggled, internal.LockToggledData{Code: code, Locked: locked})
	return nil
}

// Disconnect removes the connection from whatever room it occupies. It is
// called by the transport once the connection is gone.
func (r *Router) Disconnect(connID string) {
	departure, ok := r.store.Disconnect(connID)
	if ok {
		r.depart(departure)
	}
	r.refreshGauges()
}

// depart broadcasts the membership delta to the remaining members, then
// tears the room down if it is empty or the owner left. Otherwise it
// announces the turn change a mid-round departure may have caused.
func (r *Router) depart(d session.Departure) {
	log := r.log.WithFields(logrus.Fields{"room": d.Code, "conn": d.Member.ConnID})
	log.Infof("[depart] %s left, members=%d owner_left=%t", d.Member.Name, len(d.Room.Members), d.OwnerLeft)

	r.broadcastToRoom(d.Room, EventUserLeft, internal.UserLeftData{
		Username:    d.Member.Name,
		UsersInRoom: d.Room.Snapshot(),
	})

	if d.TearsDown() {
		reason := closeReasonEmpty
		if d.OwnerLeft {
			reason = closeReasonOwnerLeft
		}
		remaining := r.store.Teardown(d.Code)
		log.Infof("[depart] room torn down: %s", reason)
		for _, connID := range remaining {
			r.sendTo(connID, EventRoomClosed, internal.RoomClosedData{Code: d.Code, Reason: reason})
		}
		return
	}

	r.announceRoundChange(d.Room, d.Round)
}
