package internal

type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

type RoomDetails struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Owner  string `json:"owner"`
	Locked bool   `json:"locked"`
}

type RoomSnapshotData struct {
	Details     RoomDetails      `json:"details"`
	UsersInRoom []MemberSnapshot `json:"users_in_room"`
}

type UserJoinedData struct {
	Username    string           `json:"username"`
	UsersInRoom []MemberSnapshot `json:"users_in_room"`
}

type UserLeftData struct {
	Username    string           `json:"username"`
	UsersInRoom []MemberSnapshot `json:"users_in_room"`
}

type LockToggledData struct {
	Code   string `json:"code"`
	Locked bool   `json:"locked"`
}

type RoundStartedData struct {
	Code        string     `json:"code"`
	RoundNumber int        `json:"round_number"`
	Order       []TurnSlot `json:"order"`
}

// VotingTurnData goes out as is-voting to the active member and is-not-voting
// to everyone else.
type VotingTurnData struct {
	Code        string   `json:"code"`
	RoundNumber int      `json:"round_number"`
	Active      TurnSlot `json:"active"`
}

type VotesRevealedData struct {
	Code        string `json:"code"`
	RoundNumber int    `json:"round_number"`
	Votes       []Vote `json:"votes"`
}

type RoomClosedData struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type RejectionData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type Response struct {
	StatusCode    int   `json:"status_code"`
	RespStartTime int64 `json:"resp_time_start_ms"`
	RespEndTime   int64 `json:"resp_time_end_ms"`
	NetRespTime   int64 `json:"net_resp_time_ms"`
	Data          any   `json:"data"`
}
