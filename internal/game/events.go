package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/scythe504/voting-rooms/internal"
)

// Inbound events.
const (
	EventCreateRoom         = "create-room"
	EventJoinRoom           = "join-room"
	EventLeaveRoom          = "leave-room"
	EventToggleRoomLock     = "toggle-room-lock"
	EventStartRound         = "start-round"
	EventRequestVotingStart = "request-voting-start"
	EventSubmitVote         = "submit-vote"
	EventSimulateJoins      = "simulate-joins"
)

// Outbound events.
const (
	EventRoomCreated       = "room-created"
	EventRoomJoined        = "room-joined"
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventRoomLockedToggled = "room-locked-toggled"
	EventRoundStarted      = "round-started"
	EventIsVoting          = "is-voting"
	EventIsNotVoting       = "is-not-voting"
	EventVotesRevealed     = "votes-revealed"
	EventRoomClosed        = "room-closed"

	EventRoomExists    = "room-exists"
	EventRoomNotFound  = "room-not-found"
	EventRoomLocked    = "room-locked"
	EventNoActiveRound = "no-active-round"
	EventNotYourTurn   = "not-your-turn"
	EventAlreadyInRoom = "already-in-room"
	EventNotInRoom     = "not-in-room"
	EventBadRequest    = "bad-request"
)

var ErrBadRequest = errors.New("bad request")

// RoomCode accepts both JSON strings and numbers; clients historically sent
// either. Numbers must be integral and are normalised to plain decimal.
type RoomCode string

func (c *RoomCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = RoomCode(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("room code must be a string or number: %w", err)
	}
	code, err := canonicalInteger(n)
	if err != nil {
		return err
	}
	*c = RoomCode(code)
	return nil
}

// canonicalInteger renders an integral JSON number in plain decimal, so 42,
// 42.0 and 4.2e1 name the same room. Fractions are rejected.
func canonicalInteger(n json.Number) (string, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactInteger {
		return "", fmt.Errorf("room code %s is not an integer: %w", n, ErrBadRequest)
	}
	return strconv.FormatInt(int64(f), 10), nil
}

// maxExactInteger is the largest integer a float64 represents exactly.
const maxExactInteger = 1 << 53

type validator interface {
	validate() error
}

type CreateRoomPayload struct {
	Code  RoomCode `json:"code"`
	Owner string   `json:"owner"`
	Name  string   `json:"name"`
}

func (p *CreateRoomPayload) validate() error {
	p.Owner = strings.TrimSpace(p.Owner)
	p.Name = strings.TrimSpace(p.Name)
	if err := validateCode(p.Code); err != nil {
		return err
	}
	if err := validateText("owner", p.Owner, internal.MaxNameLength); err != nil {
		return err
	}
	return validateText("name", p.Name, internal.MaxNameLength)
}

type JoinRoomPayload struct {
	Code     RoomCode `json:"code"`
	Username string   `json:"username"`
}

func (p *JoinRoomPayload) validate() error {
	p.Username = strings.TrimSpace(p.Username)
	if err := validateCode(p.Code); err != nil {
		return err
	}
	return validateText("username", p.Username, internal.MaxNameLength)
}

// RoomPayload carries only a room code: leave, lock toggle, round start and
// voting start.
type RoomPayload struct {
	Code RoomCode `json:"code"`
}

func (p *RoomPayload) validate() error {
	return validateCode(p.Code)
}

// SubmitVotePayload has no voter field: the voter is always the connection
// that sent the event.
type SubmitVotePayload struct {
	Code   RoomCode        `json:"code"`
	Choice json.RawMessage `json:"choice"`

	choice string
}

func (p *SubmitVotePayload) validate() error {
	if err := validateCode(p.Code); err != nil {
		return err
	}
	choice, err := decodeChoice(p.Choice)
	if err != nil {
		return err
	}
	p.choice = choice
	return validateText("choice", p.choice, internal.MaxChoiceLength)
}

// MaxSimJoinDelayMS bounds the spacing between simulated joins.
const MaxSimJoinDelayMS = 60_000

type SimulateJoinsPayload struct {
	Code    RoomCode `json:"code"`
	Count   int      `json:"count"`
	DelayMS int      `json:"delay_ms"`
}

func (p *SimulateJoinsPayload) validate() error {
	if err := validateCode(p.Code); err != nil {
		return err
	}
	if p.Count <= 0 {
		return fmt.Errorf("count must be positive: %w", ErrBadRequest)
	}
	if p.DelayMS < 0 || p.DelayMS > MaxSimJoinDelayMS {
		return fmt.Errorf("delay_ms must be between 0 and %d: %w", MaxSimJoinDelayMS, ErrBadRequest)
	}
	return nil
}

// decodePayload unmarshals data into v and validates it. Missing or
// malformed payloads fail closed with ErrBadRequest.
func decodePayload[T any, P interface {
	*T
	validator
}](data json.RawMessage) (*T, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, fmt.Errorf("missing payload: %w", ErrBadRequest)
	}
	payload := new(T)
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("decode payload: %v: %w", err, ErrBadRequest)
	}
	if err := P(payload).validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

// decodeChoice accepts a string or a number as the vote value.
func decodeChoice(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("choice is required: %w", ErrBadRequest)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("choice: %v: %w", err, ErrBadRequest)
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("choice must be a string or number: %w", ErrBadRequest)
	}
	return n.String(), nil
}

func validateCode(code RoomCode) error {
	return validateText("code", string(code), internal.MaxCodeLength)
}

func validateText(field, value string, max int) error {
	if value == "" {
		return fmt.Errorf("%s is required: %w", field, ErrBadRequest)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%s exceeds %d characters: %w", field, max, ErrBadRequest)
	}
	return nil
}
