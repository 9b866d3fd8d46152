// Package game validates inbound room events against the session store and
// emits the resulting outbound events. The router keeps no room state of its
// own; everything lives in the injected *session.Store.
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/session"
	"github.com/sirupsen/logrus"
)

// Emitter delivers one outbound message to one connection. Unknown
// connections are dropped silently.
type Emitter interface {
	Send(connID string, msg internal.Message[any])
}

// Observer receives counters from the router; metrics.Collector implements it.
type Observer interface {
	EventReceived(event string)
	Rejected(kind string)
	RoundRevealed()
	SetRooms(n int)
	SetMembers(n int)
}

// Archiver receives revealed rounds. Implementations must not block.
type Archiver interface {
	Archive(result internal.RoundResult)
}

type Options struct {
	SimJoinDelay time.Duration
	SimMaxJoins  int
	SimVoteDelay time.Duration
	SimChoices   []string
}

func DefaultOptions() Options {
	return Options{
		SimJoinDelay: 2 * time.Second,
		SimMaxJoins:  10,
		SimVoteDelay: time.Second,
		SimChoices:   []string{"1", "2", "3", "5", "8", "13"},
	}
}

type Router struct {
	store    *session.Store
	out      Emitter
	log      *logrus.Entry
	observer Observer
	archive  Archiver
	opts     Options
}

type RouterOption func(*Router)

func WithLogger(log *logrus.Entry) RouterOption {
	return func(r *Router) { r.log = log }
}

func WithObserver(o Observer) RouterOption {
	return func(r *Router) { r.observer = o }
}

func WithArchiver(a Archiver) RouterOption {
	return func(r *Router) { r.archive = a }
}

func WithOptions(opts Options) RouterOption {
	return func(r *Router) { r.opts = opts }
}

func NewRouter(store *session.Store, out Emitter, opts ...RouterOption) *Router {
	r := &Router{
		store: store,
		out:   out,
		opts:  DefaultOptions(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		r.log = logrus.NewEntry(silent)
	}
	r.log = r.log.WithField("component", "router")
	if r.observer == nil {
		r.observer = noopObserver{}
	}
	return r
}

// Handle decodes a raw frame and dispatches it. Panics inside a handler are
// contained to the offending event.
func (r *Router) Handle(connID string, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("conn", connID).Errorf("[Handle] panic while handling event: %v", rec)
			r.reject(connID, "", fmt.Errorf("internal error: %w", ErrBadRequest))
		}
	}()

	var msg internal.Message[json.RawMessage]
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.log.WithField("conn", connID).Debugf("[Handle] failed to parse frame: %v", err)
		r.reject(connID, "", fmt.Errorf("malformed frame: %w", ErrBadRequest))
		return
	}
	r.Dispatch(connID, msg)
}

// Dispatch routes one inbound event. It must be called from the dispatch goroutine.
func (r *Router) Dispatch(connID string, msg internal.Message[json.RawMessage]) {
	r.observer.EventReceived(eventLabel(msg.Type))
	r.log.WithFields(logrus.Fields{"conn": connID, "event": msg.Type}).Debug("[Dispatch] received event")

	switch msg.Type {
	case EventCreateRoom:
		withPayload[CreateRoomPayload](r, connID, msg.Data, r.createRoom)
	case EventJoinRoom:
		withPayload[JoinRoomPayload](r, connID, msg.Data, r.joinRoom)
	case EventLeaveRoom:
		withPayload[RoomPayload](r, connID, msg.Data, r.leaveRoom)
	case EventToggleRoomLock:
		withPayload[RoomPayload](r, connID, msg.Data, r.toggleLock)
	case EventStartRound:
		withPayload[RoomPayload](r, connID, msg.Data, r.startRound)
	case EventRequestVotingStart:
		withPayload[RoomPayload](r, connID, msg.Data, r.beginVoting)
	case EventSubmitVote:
		withPayload[SubmitVotePayload](r, connID, msg.Data, r.submitVote)
	case EventSimulateJoins:
		withPayload[SimulateJoinsPayload](r, connID, msg.Data, r.simulateJoins)
	default:
		r.reject(connID, "", fmt.Errorf("unknown event %q: %w", msg.Type, ErrBadRequest))
	}

	r.refreshGauges()
}

func withPayload[T any, P interface {
	*T
	validator
}](r *Router, connID string, data json.RawMessage, handle func(connID string, payload *T) error) {
	payload, err := decodePayload[T, P](data)
	if err != nil {
		r.reject(connID, "", err)
		return
	}
	if err := handle(connID, payload); err != nil {
		r.reject(connID, codeOf(payload), err)
	}
}

// eventLabel keeps client-chosen event names out of metric labels.
func eventLabel(event string) string {
	switch event {
	case EventCreateRoom, EventJoinRoom, EventLeaveRoom, EventToggleRoomLock,
		EventStartRound, EventRequestVotingStart, EventSubmitVote, EventSimulateJoins:
		return event
	}
	return "unknown"
}

func codeOf(payload any) string {
	switch p := payload.(type) {
	case *CreateRoomPayload:
		return string(p.Code)
	case *JoinRoomPayload:
		return string(p.Code)
	case *RoomPayload:
		return string(p.Code)
	case *SubmitVotePayload:
		return string(p.Code)
	case *SimulateJoinsPayload:
		return string(p.Code)
	}
	return ""
}

// rejectionEvent maps an error to the outbound rejection sent to the caller.
func rejectionEvent(err error) string {
	switch {
	case errors.Is(err, session.ErrRoomExists):
		return EventRoomExists
	case errors.Is(err, session.ErrRoomNotFound):
		return EventRoomNotFound
	case errors.Is(err, session.ErrRoomLocked):
		return EventRoomLocked
	case errors.Is(err, session.ErrNoActiveRound):
		return EventNoActiveRound
	case errors.Is(err, session.ErrNotYourTurn):
		return EventNotYourTurn
	case errors.Is(err, session.ErrAlreadyInRoom):
		return EventAlreadyInRoom
	case errors.Is(err, session.ErrNotInRoom):
		return EventNotInRoom
	default:
		return EventBadRequest
	}
}

// reject answers the originating connection only; rejections are never broadcast.
func (r *Router) reject(connID, code string, err error) {
	event := rejectionEvent(err)
	r.observer.Rejected(event)
	r.log.WithFields(logrus.Fields{"conn": connID, "room": code, "rejection": event}).
		Infof("[reject] %v", err)
	r.out.Send(connID, internal.Message[any]{
		Type: event,
		Data: internal.RejectionData{Code: code, Message: err.Error()},
	})
}

// requireMember resolves a room the sender must belong to.
func (r *Router) requireMember(connID, code string) (*internal.Room, error) {
	room, err := r.store.Lookup(code)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(connID) {
		return nil, fmt.Errorf("room %s: %w", code, session.ErrNotInRoom)
	}
	return room, nil
}

// =============================================================================
// FAN-OUT
// =============================================================================

func (r *Router) sendTo(connID string, msgType string, data any) {
	r.out.Send(connID, internal.Message[any]{Type: msgType, Data: data})
}

// broadcastToRoom sends to every live member of the room.
func (r *Router) broadcastToRoom(room *internal.Room, msgType string, data any) {
	r.broadcastToRoomExcept(room, msgType, data, "")
}

func (r *Router) broadcastToRoomExcept(room *internal.Room, msgType string, data any, exclude string) {
	msg := internal.Message[any]{Type: msgType, Data: data}
	for _, connID := range room.ConnIDs(exclude) {
		r.out.Send(connID, msg)
	}
}

type noopObserver struct{}

func (noopObserver) EventReceived(string) {}
func (noopObserver) Rejected(string)      {}
func (noopObserver) RoundRevealed()       {}
func (noopObserver) SetRooms(int)         {}
func (noopObserver) SetMembers(int)       {}
