package session

import "fmt"

// Registry maps a connection to the room it occupies. It is the only source
// of truth for "which room is this connection in"; disconnects resolve
// through it instead of scanning rooms.
type Registry struct {
	rooms map[string]string
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]string)}
}

// Bind records that connID occupies code. Rebinding to the same room is a no-op.
func (r *Registry) Bind(connID, code string) error {
	if current, ok := r.rooms[connID]; ok && current != code {
		return fmt.Errorf("bind %s to room %s (in %s): %w", connID, code, current, ErrAlreadyInRoom)
	}
	r.rooms[connID] = code
	return nil
}

func (r *Registry) Room(connID string) (string, bool) {
	code, ok := r.rooms[connID]
	return code, ok
}

func (r *Registry) Unbind(connID string) {
	delete(r.rooms, connID)
}

func (r *Registry) Len() int {
	return len(r.rooms)
}
