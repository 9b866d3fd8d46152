// Package session holds every in-memory room: the directory of active codes,
// the ordered membership of each room, the connection registry and the
// turn-ordered voting rounds.
//
// A Store is confined to a single goroutine. It has no locks; the transport
// serialises every mutation through one dispatch loop, and deferred work
// re-enters that loop through the Scheduler.
package session

import (
	"io"
	"math/rand"
	"time"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/scythe504/voting-rooms/internal/utils"
	"github.com/sirupsen/logrus"
)

type Store struct {
	rooms     map[string]*internal.Room
	registry  *Registry
	scheduler *Scheduler
	rng       *rand.Rand
	now       func() time.Time
	log       *logrus.Entry
}

type Option func(*Store)

func WithScheduler(s *Scheduler) Option {
	return func(st *Store) { st.scheduler = s }
}

// WithRand fixes the PRNG used for turn order, mainly for tests.
func WithRand(rng *rand.Rand) Option {
	return func(st *Store) { st.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

func WithLogger(log *logrus.Entry) Option {
	return func(st *Store) { st.log = log }
}

func NewStore(opts ...Option) *Store {
	st := &Store{
		rooms:    make(map[string]*internal.Room),
		registry: NewRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.scheduler == nil {
		st.scheduler = NewScheduler(nil, nil)
	}
	if st.rng == nil {
		st.rng = utils.NewRand()
	}
	if st.log == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		st.log = logrus.NewEntry(silent)
	}
	st.log = st.log.WithField("component", "session")
	return st
}

func (s *Store) Registry() *Registry { return s.registry }

func (s *Store) Scheduler() *Scheduler { return s.scheduler }

func (s *Store) RoomCount() int { return len(s.rooms) }

func (s *Store) MemberCount() int {
	total := 0
	for _, room := range s.rooms {
		total += len(room.Members)
	}
	return total
}

// RoomOf resolves the room a connection currently occupies.
func (s *Store) RoomOf(connID string) (*internal.Room, bool) {
	code, ok := s.registry.Room(connID)
	if !ok {
		return nil, false
	}
	room, ok := s.rooms[code]
	return room, ok
}

func (s *Store) Status(code string) (internal.RoomStatus, error) {
	room, err := s.Lookup(code)
	if err != nil {
		return internal.RoomStatus{}, err
	}
	return room.Status(), nil
}
