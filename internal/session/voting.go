package session

import (
	"fmt"
	"slices"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/utils"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// VOTING COORDINATOR
// =============================================================================

// RoundChange is what happened to the open round after a vote or departure.
// At most one of Next and Revealed is set.
type RoundChange struct {
	RoundNumber int
	Next        *internal.TurnSlot
	Revealed    bool
	Votes       []internal.Vote
}

func (c RoundChange) Changed() bool {
	return c.Next != nil || c.Revealed
}

type VoteOutcome struct {
	Vote internal.Vote
	RoundChange
}

// StartRound snapshots the membership, assigns a uniformly random turn order
// and opens voting at cursor 0. The room is locked as a side effect;
// lockChanged reports whether it was unlocked before. An open round is
// discarded and replaced.
func (s *Store) StartRound(code string) (*internal.Round, bool, error) {
	room, err := s.Lookup(code)
	if err != nil {
		return nil, false, err
	}

	number := 1
	if room.Round != nil {
		number = room.Round.Number + 1
	}
	round := &internal.Round{
		Number:    number,
		Phase:     internal.PhaseOrdering,
		StartedAt: s.now(),
	}

	members := slices.Clone(room.Members)
	utils.ShuffleOrder(s.rng, members)

	for _, m := range room.Members {
		m.ResetRoundState()
	}
	round.Order = make([]internal.TurnSlot, 0, len(members))
	for i, m := range members {
		m.AssignTurn(i)
		round.Order = append(round.Order, internal.TurnSlot{
			Index:     i,
			ConnID:    m.ConnID,
			Name:      m.Name,
			Simulated: m.Simulated,
		})
	}

	lockChanged := !room.Locked
	room.Locked = true

	round.Phase = internal.PhaseVoting
	round.Cursor = 0
	round.Votes = make([]internal.Vote, 0, len(round.Order))
	room.Round = round

	s.log.WithFields(logrus.Fields{"room": code, "round": number}).
		Debugf("[StartRound] order assigned for %d members", len(round.Order))
	return round, lockChanged, nil
}

// ActiveTurn returns the member expected to vote next.
func (s *Store) ActiveTurn(code string) (internal.TurnSlot, *internal.Round, error) {
	room, err := s.Lookup(code)
	if err != nil {
		return internal.TurnSlot{}, nil, err
	}
	active, ok := room.Round.Active()
	if !ok {
		return internal.TurnSlot{}, nil, fmt.Errorf("active turn in room %s: %w", code, ErrNoActiveRound)
	}
	return active, room.Round, nil
}

// RecordVote appends the vote of connID, which must hold the current turn,
// and advances the cursor.
func (s *Store) RecordVote(code, connID, choice string) (VoteOutcome, error) {
	room, err := s.Lookup(code)
	if err != nil {
		return VoteOutcome{}, err
	}
	round := room.Round
	active, ok := round.Active()
	if !ok {
		return VoteOutcome{}, fmt.Errorf("vote in room %s: %w", code, ErrNoActiveRound)
	}
	if active.ConnID != connID {
		return VoteOutcome{}, fmt.Errorf("vote in room %s by %s (turn of %s): %w", code, connID, active.ConnID, ErrNotYourTurn)
	}

	vote := internal.Vote{Voter: active.ConnID, Name: active.Name, Choice: choice}
	round.Votes = append(round.Votes, vote)
	round.Cursor++

	change := s.advance(room)
	s.log.WithFields(logrus.Fields{"room": code, "conn": connID, "round": round.Number}).
		Debugf("[RecordVote] %d/%d votes, revealed=%t", len(round.Votes), len(round.Order), change.Revealed)
	return VoteOutcome{Vote: vote, RoundChange: change}, nil
}

// advance reports the next active slot, or reveals the round when the cursor
// has passed the last member.
func (s *Store) advance(room *internal.Room) RoundChange {
	round := room.Round
	if next, ok := round.Active(); ok {
		return RoundChange{RoundNumber: round.Number, Next: &next}
	}
	round.Phase = internal.PhaseRevealed
	return RoundChange{
		RoundNumber: round.Number,
		Revealed:    true,
		Votes:       slices.Clone(round.Votes),
	}
}

// dropFromRound applies the mid-round departure policy: a member who has not
// voted yet leaves the order. If they held the turn, the next member takes it;
// if nobody is left to vote, the round is revealed. Votes already cast stay.
func (s *Store) dropFromRound(room *internal.Room, connID string) RoundChange {
	round := room.Round
	if round == nil || round.Phase != internal.PhaseVoting {
		return RoundChange{}
	}
	idx := slices.IndexFunc(round.Order, func(slot internal.TurnSlot) bool {
		return slot.ConnID == connID
	})
	if idx < round.Cursor {
		// not in the order, or already voted
		return RoundChange{}
	}

	round.Order = slices.Delete(round.Order, idx, idx+1)
	renumberFrom(room, idx)
	if idx != round.Cursor && round.Cursor < len(round.Order) {
		return RoundChange{}
	}
	return s.advance(room)
}

// renumberFrom keeps slot indices equal to their position in the order, on
// both the slots and the members holding them.
func renumberFrom(room *internal.Room, start int) {
	for i := start; i < len(room.Round.Order); i++ {
		room.Round.Order[i].Index = i
		if _, m := room.MemberByConn(room.Round.Order[i].ConnID); m != nil {
			m.AssignTurn(i)
		}
	}
}

// Result builds the archive record of a revealed round.
func (s *Store) Result(code string) (internal.RoundResult, bool) {
	room, ok := s.rooms[code]
	if !ok || room.Round == nil || room.Round.Phase != internal.PhaseRevealed {
		return internal.RoundResult{}, false
	}
	return internal.RoundResult{
		RoomCode:   room.Code,
		RoomName:   room.Name,
		Round:      room.Round.Number,
		Votes:      slices.Clone(room.Round.Votes),
		StartedAt:  room.Round.StartedAt,
		RevealedAt: s.now(),
	}, true
}
