// Package scheduler runs deferred tasks from the owner's update loop.
//
// Nothing here starts a goroutine or a real timer: tasks become due when the
// injected clock passes their deadline and fire on the next RunDue call. Tests
// drive time with clock.NewMock.
package scheduler

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a pending deferred call.
type Task struct {
	name      string
	due       time.Time
	seq       uint64
	fn        func()
	cancelled bool
	fired     bool
}

func (t *Task) Name() string   { return t.name }
func (t *Task) Due() time.Time { return t.due }
func (t *Task) Pending() bool  { return !t.cancelled && !t.fired }

// Cancel prevents the task from firing. It returns false if the task already
// fired or was cancelled before.
func (t *Task) Cancel() bool {
	if t == nil || !t.Pending() {
		return false
	}
	t.cancelled = true
	return true
}

// Scheduler is not safe for concurrent use; it belongs to one update loop.
type Scheduler struct {
	clock clock.Clock
	tasks []*Task
	seq   uint64
}

func New(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.New()
	}
	return &Scheduler{clock: c}
}

// Now returns the scheduler's notion of the current time.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// After schedules fn to run on the first RunDue at or after now+d.
func (s *Scheduler) After(d time.Duration, name string, fn func()) *Task {
	s.seq++
	t := &Task{name: name, due: s.clock.Now().Add(d), seq: s.seq, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// RunDue fires every due task in deadline order and returns how many ran.
// Tasks scheduled by a firing task are considered on the next call only.
func (s *Scheduler) RunDue() int {
	now := s.clock.Now()

	var due []*Task
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		switch {
		case !t.Pending():
		case !t.due.After(now):
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = kept

	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})

	ran := 0
	for _, t := range due {
		// An earlier task in this batch may have cancelled a later one.
		if !t.Pending() {
			continue
		}
		t.fired = true
		t.fn()
		ran++
	}
	return ran
}

// CancelAll cancels every pending task.
func (s *Scheduler) CancelAll() {
	for _, t := range s.tasks {
		t.Cancel()
	}
	s.tasks = nil
}

// Pending returns the number of tasks that have neither fired nor been
// cancelled.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.tasks {
		if t.Pending() {
			n++
		}
	}
	return n
}
