package internal

import (
	"time"
)

type RoundPhase string

const (
	PhaseIdle     RoundPhase = "idle"
	PhaseOrdering RoundPhase = "ordering"
	PhaseVoting   RoundPhase = "voting"
	PhaseRevealed RoundPhase = "revealed"
)

const (
	MaxNameLength   = 64
	MaxChoiceLength = 64
	MaxCodeLength   = 32
)

type Room struct {
	Code      string
	Name      string
	OwnerConn string
	OwnerName string
	Locked    bool
	CreatedAt time.Time

	// Members in arrival order; seeds the turn order of each round.
	Members []*Member

	// Round is nil until the first start-round.
	Round *Round

	// PendingJoins counts simulated joins scheduled but not yet fired;
	// GuestSeq numbers simulated members so names never repeat.
	PendingJoins int
	GuestSeq     int
}

type Member struct {
	ConnID    string    `json:"id"`
	Name      string    `json:"username"`
	IsOwner   bool      `json:"is_owner"`
	TurnIndex *int      `json:"turn_index,omitempty"`
	Simulated bool      `json:"simulated,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

type TurnSlot struct {
	Index     int    `json:"index"`
	ConnID    string `json:"id"`
	Name      string `json:"username"`
	Simulated bool   `json:"simulated,omitempty"`
}

type Vote struct {
	Voter  string `json:"voter"`
	Name   string `json:"username"`
	Choice string `json:"choice"`
}

type Round struct {
	Number    int
	Phase     RoundPhase
	Order     []TurnSlot
	Cursor    int
	Votes     []Vote
	StartedAt time.Time
}

// RoundResult is a revealed round as handed to the archive.
type RoundResult struct {
	RoomCode   string    `json:"room_code"`
	RoomName   string    `json:"room_name"`
	Round      int       `json:"round"`
	Votes      []Vote    `json:"votes"`
	StartedAt  time.Time `json:"started_at"`
	RevealedAt time.Time `json:"revealed_at"`
}

type RoomStatus struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Locked      bool       `json:"locked"`
	MemberCount int        `json:"member_count"`
	Phase       RoundPhase `json:"phase"`
	RoundNumber int        `json:"round_number"`
}
