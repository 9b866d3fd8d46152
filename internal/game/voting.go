package game

import (
	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/session"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// GAME FLOW - ROUND MANAGEMENT
// =============================================================================

// startRound assigns the turn order, locks the room and announces the order.
func (r *Router) startRound(connID string, p *RoomPayload) error {
	code := string(p.Code)
	if _, err := r.requireMember(connID, code); err != nil {
		return err
	}
	round, lockChanged, err := r.store.StartRound(code)
	if err != nil {
		return err
	}
	room, err := r.store.Lookup(code)
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"room": code, "conn": connID, "round": round.Number}).
		Infof("[StartRound] turn order assigned for %d members", len(round.Order))

	if lockChanged {
		r.broadcastToRoom(room, EventRoomLockedToggled, internal.LockToggledData{Code: code, Locked: true})
	}
	r.broadcastToRoom(room, EventRoundStarted, internal.RoundStartedData{
		Code:        code,
		RoundNumber: round.Number,
		Order:       append([]internal.TurnSlot(nil), round.Order...),
	})

	if active, ok := round.Active(); ok && active.Simulated {
		r.scheduleSimulatedVote(code, round.Number, active)
	}
	return nil
}

// beginVoting re-sends the turn notifications for the open round: is-voting
// to the member holding the turn and is-not-voting to everyone else. It does
// not change any state.
func (r *Router) beginVoting(connID string, p *RoomPayload) error {
	code := string(p.Code)
	room, err := r.requireMember(connID, code)
	if err != nil {
		return err
	}
	active, round, err := r.store.ActiveTurn(code)
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"room": code, "conn": connID, "round": round.Number}).
		Infof("[BeginVoting] %s holds the turn", active.Name)
	r.notifyTurn(room, round.Number, active)
	return nil
}

// submitVote records the sender's vote. The voter is always the sending
// connection.
func (r *Router) submitVote(connID string, p *SubmitVotePayload) error {
	code := string(p.Code)
	room, err := r.requireMember(connID, code)
	if err != nil {
		return err
	}
	outcome, err := r.store.RecordVote(code, connID, p.choice)
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{"room": code, "conn": connID, "round": outcome.RoundNumber}).
		Infof("[SubmitVote] %s voted", outcome.Vote.Name)
	r.announceRoundChange(room, outcome.RoundChange)
	return nil
}

// notifyTurn marks exactly one member as voting and every other member as
// not voting.
func (r *Router) notifyTurn(room *internal.Room, roundNumber int, active internal.TurnSlot) {
	data := internal.VotingTurnData{
		Code:        room.Code,
		RoundNumber: roundNumber,
		Active:      active,
	}
	if !active.Simulated {
		r.sendTo(active.ConnID, EventIsVoting, data)
	}
	r.broadcastToRoomExcept(room, EventIsNotVoting, data, active.ConnID)
}

// announceRoundChange publishes the effect of a vote or a mid-round departure.
func (r *Router) announceRoundChange(room *internal.Room, change session.RoundChange) {
	switch {
	case change.Next != nil:
		r.notifyTurn(room, change.RoundNumber, *change.Next)
		if change.Next.Simulated {
			r.scheduleSimulatedVote(room.Code, change.RoundNumber, *change.Next)
		}
	case change.Revealed:
		r.reveal(room, change)
	}
}

func (r *Router) reveal(room *internal.Room, change session.RoundChange) {
	r.log.WithFields(logrus.Fields{"room": room.Code, "round": change.RoundNumber}).
		Infof("[reveal] all %d votes in", len(change.Votes))

	r.broadcastToRoom(room, EventVotesRevealed, internal.VotesRevealedData{
		Code:        room.Code,
		RoundNumber: change.RoundNumber,
		Votes:       change.Votes,
	})
	r.observer.RoundRevealed()

	if r.archive == nil {
		return
	}
	if result, ok := r.store.Result(room.Code); ok {
		r.archive.Archive(result)
	}
}
