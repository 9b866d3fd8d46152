package session

import (
	"time"
)

// =============================================================================
// DEFERRED TASKS
// =============================================================================

// TimerFunc starts a timer that calls f after d and returns a function that
// stops it. time.AfterFunc satisfies it through the default adapter.
type TimerFunc func(d time.Duration, f func()) (stop func() bool)

// PostFunc delivers a fired task back onto the dispatch goroutine.
type PostFunc func(task func())

type scheduledTask struct {
	stop func() bool
}

// Scheduler owns deferred tasks keyed by room code. All bookkeeping happens
// on the dispatch goroutine: a timer firing only posts, and the posted
// closure drops tasks whose room was torn down in the meantime.
type Scheduler struct {
	post   PostFunc
	after  TimerFunc
	nextID uint64
	tasks  map[string]map[uint64]*scheduledTask
}

func defaultTimer(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

func runInline(task func()) { task() }

func NewScheduler(post PostFunc, after TimerFunc) *Scheduler {
	if post == nil {
		post = runInline
	}
	if after == nil {
		after = defaultTimer
	}
	return &Scheduler{
		post:  post,
		after: after,
		tasks: make(map[string]map[uint64]*scheduledTask),
	}
}

// After schedules fn for room code. fn runs on the dispatch goroutine, and
// never runs if CancelRoom(code) was called first.
func (s *Scheduler) After(code string, d time.Duration, fn func()) uint64 {
	s.nextID++
	id := s.nextID

	byRoom, ok := s.tasks[code]
	if !ok {
		byRoom = make(map[uint64]*scheduledTask)
		s.tasks[code] = byRoom
	}

	task := &scheduledTask{}
	byRoom[id] = task
	task.stop = s.after(d, func() {
		s.post(func() {
			if !s.take(code, id) {
				return
			}
			fn()
		})
	})
	return id
}

// take removes a pending task and reports whether it was still pending.
func (s *Scheduler) take(code string, id uint64) bool {
	byRoom, ok := s.tasks[code]
	if !ok {
		return false
	}
	if _, ok := byRoom[id]; !ok {
		return false
	}
	delete(byRoom, id)
	if len(byRoom) == 0 {
		delete(s.tasks, code)
	}
	return true
}

// CancelRoom stops every pending task of a room and returns how many were cancelled.
func (s *Scheduler) CancelRoom(code string) int {
	byRoom, ok := s.tasks[code]
	if !ok {
		return 0
	}
	for _, task := range byRoom {
		if task.stop != nil {
			task.stop()
		}
	}
	delete(s.tasks, code)
	return len(byRoom)
}

func (s *Scheduler) Pending(code string) int {
	return len(s.tasks[code])
}
