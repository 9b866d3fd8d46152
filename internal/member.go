package internal

type MemberSnapshot struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	IsOwner   bool   `json:"is_owner"`
	TurnIndex *int   `json:"turn_index,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

func CreateMemberSnapshot(m *Member) MemberSnapshot {
	snapshot := MemberSnapshot{
		ID:        m.ConnID,
		Username:  m.Name,
		IsOwner:   m.IsOwner,
		Simulated: m.Simulated,
	}
	if m.TurnIndex != nil {
		idx := *m.TurnIndex
		snapshot.TurnIndex = &idx
	}
	return snapshot
}

// ResetRoundState clears the turn assignment from a previous round.
func (m *Member) ResetRoundState() {
	m.TurnIndex = nil
}

func (m *Member) AssignTurn(index int) {
	m.TurnIndex = &index
}
