package game_test

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/game"
	"github.com/scythe504/voting-rooms/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures every outbound message per connection.
type recorder struct {
	sent map[string][]internal.Message[any]
}

func newRecorder() *recorder {
	return &recorder{sent: make(map[string][]internal.Message[any])}
}

func (r *recorder) Send(connID string, msg internal.Message[any]) {
	r.sent[connID] = append(r.sent[connID], msg)
}

func (r *recorder) types(connID string) []string {
	var out []string
	for _, msg := range r.sent[connID] {
		out = append(out, msg.Type)
	}
	return out
}

func (r *recorder) last(connID string) internal.Message[any] {
	msgs := r.sent[connID]
	if len(msgs) == 0 {
		return internal.Message[any]{}
	}
	return msgs[len(msgs)-1]
}

func (r *recorder) find(connID, msgType string) (internal.Message[any], bool) {
	for _, msg := range r.sent[connID] {
		if msg.Type == msgType {
			return msg, true
		}
	}
	return internal.Message[any]{}, false
}

func (r *recorder) reset() {
	r.sent = make(map[string][]internal.Message[any])
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) fire() {
	if t.stopped || t.fired {
		return
	}
	t.fired = true
	t.fn()
}

type fakeTimers struct {
	pending []*fakeTimer
}

func (f *fakeTimers) after(d time.Duration, fn func()) func() bool {
	t := &fakeTimer{delay: d, fn: fn}
	f.pending = append(f.pending, t)
	return func() bool {
		wasPending := !t.stopped && !t.fired
		t.stopped = true
		return wasPending
	}
}

// fireAll runs pending timers, including ones scheduled while firing.
func (f *fakeTimers) fireAll() {
	for len(f.pending) > 0 {
		batch := f.pending
		f.pending = nil
		for _, t := range batch {
			t.fire()
		}
	}
}

type archived struct {
	results []internal.RoundResult
}

func (a *archived) Archive(result internal.RoundResult) {
	a.results = append(a.results, result)
}

type fixture struct {
	store   *session.Store
	router  *game.Router
	out     *recorder
	timers  *fakeTimers
	archive *archived
}

func newFixture(t *testing.T, opts ...game.RouterOption) *fixture {
	t.Helper()
	timers := &fakeTimers{}
	store := session.NewStore(
		session.WithScheduler(session.NewScheduler(nil, timers.after)),
		session.WithRand(rand.New(rand.NewSource(42))),
	)
	out := newRecorder()
	arch := &archived{}
	router := game.NewRouter(store, out, append([]game.RouterOption{game.WithArchiver(arch)}, opts...)...)
	return &fixture{store: store, router: router, out: out, timers: timers, archive: arch}
}

func (f *fixture) send(t *testing.T, connID, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": event, "data": data})
	require.NoError(t, err)
	f.router.Handle(connID, raw)
}

func (f *fixture) names(t *testing.T, code string) []string {
	t.Helper()
	room, err := f.store.Lookup(code)
	require.NoError(t, err)
	var names []string
	for _, m := range room.Members {
		names = append(names, m.Name)
	}
	return names
}

func TestSingleMemberRoundRevealsImmediately(t *testing.T) {
	f := newFixture(t)

	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "42", "owner": "Alice", "name": "Solo"})
	assert.Equal(t, game.EventRoomCreated, f.out.last("alice").Type)

	f.send(t, "alice", game.EventStartRound, map[string]any{"code": "42"})
	started, ok := f.out.find("alice", game.EventRoundStarted)
	require.True(t, ok)
	order := started.Data.(internal.RoundStartedData).Order
	require.Len(t, order, 1)
	assert.Equal(t, "alice", order[0].ConnID)

	f.send(t, "alice", game.EventSubmitVote, map[string]any{"code": "42", "choice": 5})

	revealed := f.out.last("alice")
	require.Equal(t, game.EventVotesRevealed, revealed.Type)
	votes := revealed.Data.(internal.VotesRevealedData).Votes
	require.Len(t, votes, 1)
	assert.Equal(t, internal.Vote{Voter: "alice", Name: "Alice", Choice: "5"}, votes[0])

	status, err := f.store.Status("42")
	require.NoError(t, err)
	assert.Equal(t, internal.PhaseRevealed, status.Phase)

	require.Len(t, f.archive.results, 1)
	assert.Equal(t, "42", f.archive.results[0].RoomCode)
}

func TestLockedRoomRejectsJoin(t *testing.T) {
	f := newFixture(t)

	// numeric codes are accepted and normalised
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": 7, "owner": "Alice", "name": "Lucky"})
	f.send(t, "bob", game.EventJoinRoom, map[string]any{"code": "7", "username": "Bob"})
	f.send(t, "cleo", game.EventJoinRoom, map[string]any{"code": 7, "username": "Cleo"})
	assert.Equal(t, []string{"Alice", "Bob", "Cleo"}, f.names(t, "7"))

	f.send(t, "alice", game.EventToggleRoomLock, map[string]any{"code": "7"})
	for _, conn := range []string{"alice", "bob", "cleo"} {
		msg := f.out.last(conn)
		require.Equal(t, game.EventRoomLockedToggled, msg.Type, conn)
		assert.True(t, msg.Data.(internal.LockToggledData).Locked)
	}

	f.send(t, "dex", game.EventJoinRoom, map[string]any{"code": "7", "username": "Dex"})
	assert.Equal(t, []string{game.EventRoomLocked}, f.out.types("dex"))
	assert.Equal(t, []string{"Alice", "Bob", "Cleo"}, f.names(t, "7"))

	// rejections are never broadcast
	assert.Equal(t, game.EventRoomLockedToggled, f.out.last("bob").Type)
}

func TestCreateRoomTwiceLeavesOriginal(t *testing.T) {
	f := newFixture(t)

	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "abc", "owner": "Alice", "name": "First"})
	f.send(t, "mallory", game.EventCreateRoom, map[string]any{"code": "abc", "owner": "Mallory", "name": "Second"})

	assert.Equal(t, []string{game.EventRoomExists}, f.out.types("mallory"))
	room, err := f.store.Lookup("abc")
	require.NoError(t, err)
	assert.Equal(t, "First", room.Name)
	assert.Equal(t, []string{"Alice"}, f.names(t, "abc"))
}

func TestTurnSequencing(t *testing.T) {
	f := newFixture(t)

	conns := []string{"alice", "bob", "cleo", "dex"}
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})
	for _, c := range conns[1:] {
		f.send(t, c, game.EventJoinRoom, map[string]any{"code": "r1", "username": c})
	}

	f.send(t, "bob", game.EventStartRound, map[string]any{"code": "r1"})
	f.send(t, "bob", game.EventRequestVotingStart, map[string]any{"code": "r1"})

	voted := map[string]bool{}
	for i := 0; i < len(conns); i++ {
		var active []string
		for _, c := range conns {
			switch f.out.last(c).Type {
			case game.EventIsVoting:
				active = append(active, c)
			case game.EventIsNotVoting:
			default:
				t.Fatalf("%s has no turn state after %d votes: %v", c, i, f.out.types(c))
			}
		}
		require.Len(t, active, 1, "exactly one member holds the turn")
		require.False(t, voted[active[0]], "member voted twice")

		// anyone else voting out of turn is rejected without state change
		for _, c := range conns {
			if c != active[0] {
				f.send(t, c, game.EventSubmitVote, map[string]any{"code": "r1", "choice": "3"})
				require.Equal(t, game.EventNotYourTurn, f.out.last(c).Type)
				f.out.sent[c] = f.out.sent[c][:len(f.out.sent[c])-1]
				break
			}
		}

		voted[active[0]] = true
		f.send(t, active[0], game.EventSubmitVote, map[string]any{"code": "r1", "choice": "3"})
	}

	for _, c := range conns {
		msg := f.out.last(c)
		require.Equal(t, game.EventVotesRevealed, msg.Type)
		votes := msg.Data.(internal.VotesRevealedData).Votes
		require.Len(t, votes, len(conns))
		seen := map[string]bool{}
		for _, v := range votes {
			assert.False(t, seen[v.Voter])
			seen[v.Voter] = true
		}
	}
}

func TestVoteWithoutRound(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})

	f.send(t, "alice", game.EventSubmitVote, map[string]any{"code": "r1", "choice": "8"})
	assert.Equal(t, game.EventNoActiveRound, f.out.last("alice").Type)

	f.send(t, "alice", game.EventRequestVotingStart, map[string]any{"code": "r1"})
	assert.Equal(t, game.EventNoActiveRound, f.out.last("alice").Type)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)

	f.router.Handle("alice", []byte("{not json"))
	assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type)

	f.send(t, "alice", "dance", map[string]any{})
	assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type)

	f.send(t, "alice", game.EventCreateRoom, nil)
	assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type)

	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "", "owner": "Alice", "name": "x"})
	assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type)

	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": true, "owner": "Alice", "name": "x"})
	assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type)

	assert.Zero(t, f.store.RoomCount())
}

func TestRoomEventsRequireMembership(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})

	f.send(t, "eve", game.EventToggleRoomLock, map[string]any{"code": "r1"})
	assert.Equal(t, []string{game.EventNotInRoom}, f.out.types("eve"))

	f.send(t, "eve", game.EventStartRound, map[string]any{"code": "r1"})
	assert.Equal(t, game.EventNotInRoom, f.out.last("eve").Type)

	f.send(t, "eve", game.EventJoinRoom, map[string]any{"code": "missing", "username": "Eve"})
	assert.Equal(t, game.EventRoomNotFound, f.out.last("eve").Type)

	room, err := f.store.Lookup("r1")
	require.NoError(t, err)
	assert.False(t, room.Locked)
	assert.Nil(t, room.Round)
}

func TestSecondJoinFromSameConnection(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "One"})
	f.send(t, "bob", game.EventCreateRoom, map[string]any{"code": "r2", "owner": "Bob", "name": "Two"})

	f.send(t, "alice", game.EventJoinRoom, map[string]any{"code": "r2", "username": "Alice"})
	assert.Equal(t, game.EventAlreadyInRoom, f.out.last("alice").Type)
	assert.Equal(t, []string{"Bob"}, f.names(t, "r2"))
}

func TestOwnerDisconnectClosesRoom(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})
	f.send(t, "bob", game.EventJoinRoom, map[string]any{"code": "r1", "username": "Bob"})
	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 3})
	require.Equal(t, 3, f.store.Scheduler().Pending("r1"))

	f.router.Disconnect("alice")

	assert.Equal(t, []string{
		game.EventRoomJoined, game.EventUserJoined, game.EventUserLeft, game.EventRoomClosed,
	}, f.out.types("bob"))
	closed := f.out.last("bob").Data.(internal.RoomClosedData)
	assert.Equal(t, "r1", closed.Code)

	_, err := f.store.Lookup("r1")
	require.ErrorIs(t, err, session.ErrRoomNotFound)
	assert.Zero(t, f.store.Scheduler().Pending("r1"))
	assert.Zero(t, f.store.Registry().Len())

	// cancelled joins never resurrect the room
	f.timers.fireAll()
	assert.Zero(t, f.store.RoomCount())

	// bob is free to join elsewhere
	f.send(t, "bob", game.EventCreateRoom, map[string]any{"code": "r2", "owner": "Bob", "name": "Next"})
	assert.Equal(t, game.EventRoomCreated, f.out.last("bob").Type)
}

func TestLastMemberLeavingRemovesRoom(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})
	f.send(t, "alice", game.EventStartRound, map[string]any{"code": "r1"})

	f.send(t, "alice", game.EventLeaveRoom, map[string]any{"code": "r1"})

	_, err := f.store.Lookup("r1")
	require.ErrorIs(t, err, session.ErrRoomNotFound)
	_, bound := f.store.Registry().Room("alice")
	assert.False(t, bound)
}

func TestMidRoundDisconnectAdvancesTurn(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})
	f.send(t, "bob", game.EventJoinRoom, map[string]any{"code": "r1", "username": "Bob"})
	f.send(t, "cleo", game.EventJoinRoom, map[string]any{"code": "r1", "username": "Cleo"})
	f.send(t, "alice", game.EventStartRound, map[string]any{"code": "r1"})

	active, _, err := f.store.ActiveTurn("r1")
	require.NoError(t, err)
	if active.ConnID == "alice" {
		f.send(t, "alice", game.EventSubmitVote, map[string]any{"code": "r1", "choice": "1"})
		active, _, err = f.store.ActiveTurn("r1")
		require.NoError(t, err)
	}
	require.NotEqual(t, "alice", active.ConnID)

	f.out.reset()
	f.router.Disconnect(active.ConnID)

	next, round, err := f.store.ActiveTurn("r1")
	if err == nil {
		assert.NotEqual(t, active.ConnID, next.ConnID)
		assert.Equal(t, internal.PhaseVoting, round.Phase)
		assert.Equal(t, game.EventIsVoting, f.out.last(next.ConnID).Type)
		return
	}

	// the departed member was the last one pending
	assert.Equal(t, game.EventVotesRevealed, f.out.last("alice").Type)
}

func TestSimulateJoinsCappedAndCancelledByLock(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})

	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 50, "delay_ms": 10})
	require.Equal(t, game.DefaultOptions().SimMaxJoins, f.store.Scheduler().Pending("r1"))
	assert.Equal(t, 10*time.Millisecond, f.timers.pending[0].delay)
	assert.Equal(t, 20*time.Millisecond, f.timers.pending[1].delay)

	// fire the first two only, then lock
	f.timers.pending[0].fire()
	f.timers.pending[1].fire()
	assert.Equal(t, []string{"Alice", "Guest 1", "Guest 2"}, f.names(t, "r1"))
	assert.Equal(t, game.EventUserJoined, f.out.last("alice").Type)

	f.send(t, "alice", game.EventToggleRoomLock, map[string]any{"code": "r1"})
	f.timers.fireAll()
	assert.Equal(t, []string{"Alice", "Guest 1", "Guest 2"}, f.names(t, "r1"))
}

func TestSimulatedMembersVoteOnTheirTurn(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})
	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 2})
	f.timers.fireAll()
	require.Len(t, f.names(t, "r1"), 3)

	f.send(t, "alice", game.EventStartRound, map[string]any{"code": "r1"})
	for i := 0; i < 3; i++ {
		f.timers.fireAll()
		active, _, err := f.store.ActiveTurn("r1")
		if err != nil {
			break
		}
		if active.ConnID == "alice" {
			f.send(t, "alice", game.EventSubmitVote, map[string]any{"code": "r1", "choice": "13"})
		}
	}

	msg := f.out.last("alice")
	require.Equal(t, game.EventVotesRevealed, msg.Type)
	assert.Len(t, msg.Data.(internal.VotesRevealedData).Votes, 3)
}

func TestSimulateJoinsDisabledWhenLimitIsZero(t *testing.T) {
	opts := game.DefaultOptions()
	opts.SimMaxJoins = 0
	f := newFixture(t, game.WithOptions(opts))
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})

	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 200000})
	assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type)
	assert.Zero(t, f.store.Scheduler().Pending("r1"))
}

func TestSimulateJoinsBoundedAcrossRequests(t *testing.T) {
	f := newFixture(t)
	limit := game.DefaultOptions().SimMaxJoins
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})

	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": limit - 4})
	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": limit})
	assert.Equal(t, limit, f.store.Scheduler().Pending("r1"), "second request only gets what is left")

	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 1})
	assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type)
	assert.Equal(t, limit, f.store.Scheduler().Pending("r1"))

	f.timers.fireAll()
	names := f.names(t, "r1")
	require.Len(t, names, limit+1)
	seen := map[string]bool{}
	for _, name := range names {
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.True(t, seen[fmt.Sprintf("Guest %d", limit)])

	// joined simulated members still count against the limit
	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 1})
	assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type)
	assert.Zero(t, f.store.Scheduler().Pending("r1"))
}

func TestSimulateJoinsLockedJoinsFreeTheirSlots(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})
	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 3})

	f.send(t, "alice", game.EventToggleRoomLock, map[string]any{"code": "r1"})
	f.timers.fireAll()
	f.send(t, "alice", game.EventToggleRoomLock, map[string]any{"code": "r1"})

	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 50})
	assert.Equal(t, game.DefaultOptions().SimMaxJoins, f.store.Scheduler().Pending("r1"))
}

func TestSimulateJoinsDelayBounds(t *testing.T) {
	f := newFixture(t)
	f.send(t, "alice", game.EventCreateRoom, map[string]any{"code": "r1", "owner": "Alice", "name": "Planning"})

	for _, delay := range []int64{game.MaxSimJoinDelayMS + 1, math.MaxInt64 / 1000} {
		f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 3, "delay_ms": delay})
		assert.Equal(t, game.EventBadRequest, f.out.last("alice").Type, "delay_ms=%d", delay)
	}
	assert.Zero(t, f.store.Scheduler().Pending("r1"))

	f.send(t, "alice", game.EventSimulateJoins, map[string]any{"code": "r1", "count": 3, "delay_ms": game.MaxSimJoinDelayMS})
	require.Len(t, f.timers.pending, 3)
	for i, timer := range f.timers.pending {
		assert.Equal(t, time.Duration(i+1)*time.Minute, timer.delay)
	}
}

func TestNumericRoomCodesShareOneRoom(t *testing.T) {
	f := newFixture(t)
	f.router.Handle("alice", []byte(`{"type":"create-room","data":{"code":42,"owner":"Alice","name":"Planning"}}`))
	require.Equal(t, game.EventRoomCreated, f.out.last("alice").Type)

	f.router.Handle("bob", []byte(`{"type":"join-room","data":{"code":4.2e1,"username":"Bob"}}`))
	f.router.Handle("cleo", []byte(`{"type":"join-room","data":{"code":42.0,"username":"Cleo"}}`))
	assert.Equal(t, []string{"Alice", "Bob", "Cleo"}, f.names(t, "42"))

	f.router.Handle("dex", []byte(`{"type":"join-room","data":{"code":4.5,"username":"Dex"}}`))
	assert.Equal(t, []string{game.EventBadRequest}, f.out.types("dex"))
	assert.Equal(t, 1, f.store.RoomCount())
}
