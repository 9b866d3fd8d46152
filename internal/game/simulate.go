package game

import (
	"fmt"
	"time"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/session"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// BULK-JOIN SIMULATION
// =============================================================================

// simulateJoins schedules simulated members to join one after another. Each
// join is a deferred task owned by the room, so teardown cancels the ones
// still pending; the task itself re-checks the room before mutating.
// Simulated members plus pending joins never exceed SimMaxJoins per room;
// a zero limit disables simulation.
func (r *Router) simulateJoins(connID string, p *SimulateJoinsPayload) error {
	code := string(p.Code)
	room, err := r.requireMember(connID, code)
	if err != nil {
		return err
	}
	if r.opts.SimMaxJoins <= 0 {
		return fmt.Errorf("simulated joins are disabled: %w", ErrBadRequest)
	}
	if room.Locked {
		return fmt.Errorf("simulate joins in room %s: %w", code, session.ErrRoomLocked)
	}

	granted, first, err := r.store.ReserveSimulatedJoins(code, p.Count, r.opts.SimMaxJoins)
	if err != nil {
		return err
	}
	if granted == 0 {
		return fmt.Errorf("room %s already has %d simulated members or pending joins: %w",
			code, r.opts.SimMaxJoins, ErrBadRequest)
	}

	delay := r.opts.SimJoinDelay
	if p.DelayMS > 0 {
		delay = time.Duration(p.DelayMS) * time.Millisecond
	}

	r.log.WithFields(logrus.Fields{"room": code, "conn": connID}).
		Infof("[SimulateJoins] scheduling %d of %d joins every %v", granted, p.Count, delay)

	for i := 0; i < granted; i++ {
		name := fmt.Sprintf("Guest %d", first+i)
		r.store.Scheduler().After(code, time.Duration(i+1)*delay, func() {
			r.simulatedJoin(code, name)
		})
	}
	return nil
}

func (r *Router) simulatedJoin(code, name string) {
	log := r.log.WithField("room", code)
	r.store.ReleaseSimulatedJoin(code)

	member, err := r.store.AddSimulatedMember(code, name)
	if err != nil {
		log.Debugf("[simulatedJoin] dropped %s: %v", name, err)
		return
	}
	room, err := r.store.Lookup(code)
	if err != nil {
		return
	}

	log.Infof("[simulatedJoin] %s joined, members=%d", member.Name, len(room.Members))
	r.broadcastToRoom(room, EventUserJoined, internal.UserJoinedData{
		Username:    member.Name,
		UsersInRoom: room.Snapshot(),
	})
	r.refreshGauges()
}

// scheduleSimulatedVote lets a simulated member vote once its turn comes.
// The task is dropped if the round moved on in the meantime.
func (r *Router) scheduleSimulatedVote(code string, roundNumber int, slot internal.TurnSlot) {
	choice := "?"
	if len(r.opts.SimChoices) > 0 {
		choice = r.opts.SimChoices[slot.Index%len(r.opts.SimChoices)]
	}

	r.store.Scheduler().After(code, r.opts.SimVoteDelay, func() {
		active, round, err := r.store.ActiveTurn(code)
		if err != nil || round.Number != roundNumber || active.ConnID != slot.ConnID {
			return
		}
		outcome, err := r.store.RecordVote(code, slot.ConnID, choice)
		if err != nil {
			r.log.WithField("room", code).Debugf("[simulatedVote] dropped: %v", err)
			return
		}
		room, err := r.store.Lookup(code)
		if err != nil {
			return
		}
		r.announceRoundChange(room, outcome.RoundChange)
	})
}

func (r *Router) refreshGauges() {
	r.observer.SetRooms(r.store.RoomCount())
	r.observer.SetMembers(r.store.MemberCount())
}
