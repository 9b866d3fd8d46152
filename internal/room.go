package internal

// Methods (Room Struct)
func (r *Room) MemberByConn(connID string) (int, *Member) {
	for i, m := range r.Members {
		if m.ConnID == connID {
			return i, m
		}
	}
	return -1, nil
}

func (r *Room) HasMember(connID string) bool {
	idx, _ := r.MemberByConn(connID)
	return idx >= 0
}

func (r *Room) IsEmpty() bool {
	return len(r.Members) == 0
}

func (r *Room) Details() RoomDetails {
	return RoomDetails{
		Code:   r.Code,
		Name:   r.Name,
		Owner:  r.OwnerName,
		Locked: r.Locked,
	}
}

func (r *Room) Snapshot() []MemberSnapshot {
	snapshot := make([]MemberSnapshot, 0, len(r.Members))
	for _, m := range r.Members {
		snapshot = append(snapshot, CreateMemberSnapshot(m))
	}
	return snapshot
}

// ConnIDs lists the connections of every member except the excluded one.
// Simulated members have no connection and are skipped.
func (r *Room) ConnIDs(exclude string) []string {
	ids := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		if m.Simulated || m.ConnID == exclude {
			continue
		}
		ids = append(ids, m.ConnID)
	}
	return ids
}

func (r *Room) Phase() RoundPhase {
	if r.Round == nil {
		return PhaseIdle
	}
	return r.Round.Phase
}

func (r *Room) Status() RoomStatus {
	status := RoomStatus{
		Code:        r.Code,
		Name:        r.Name,
		Locked:      r.Locked,
		MemberCount: len(r.Members),
		Phase:       r.Phase(),
	}
	if r.Round != nil {
		status.RoundNumber = r.Round.Number
	}
	return status
}

// Active returns the slot whose turn it is, if the round is still open.
func (rd *Round) Active() (TurnSlot, bool) {
	if rd == nil || rd.Phase != PhaseVoting || rd.Cursor >= len(rd.Order) {
		return TurnSlot{}, false
	}
	return rd.Order[rd.Cursor], true
}

func (rd *Round) HasVoted(connID string) bool {
	for _, v := range rd.Votes {
		if v.Voter == connID {
			return true
		}
	}
	return false
}
