// Package sched provides cancellable one-shot tasks whose callbacks run on a
// single owner goroutine.
//
// Timers come from a clockwork.Clock so tests can drive them with a FakeClock.
// When a timer fires, the callback is not run directly: it is handed to Post,
// which is expected to enqueue it on the owner's event loop. Cancel must be
// called from that same goroutine; a task that fired but has not yet run when
// Cancel is called will be skipped.
package sched

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Post hands a function to the owner goroutine for execution
type Post func(fn func())

// Scheduler creates tasks bound to one owner loop
type Scheduler struct {
	clock clockwork.Clock
	post  Post
}

// New creates a scheduler
func New(clock clockwork.Clock, post Post) *Scheduler {
	return &Scheduler{clock: clock, post: post}
}

// Clock returns the underlying clock
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// Task is a scheduled callback. The zero value and nil are inactive.
type Task struct {
	timer     clockwork.Timer
	due       time.Time
	cancelled bool
	fired     bool
}

// After schedules fn to run on the owner loop after d
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{due: s.clock.Now().Add(d)}
	t.timer = s.clock.AfterFunc(d, func() {
		s.post(func() {
			if t.cancelled || t.fired {
				return
			}
			t.fired = true
			fn()
		})
	})
	return t
}

// Cancel stops the task. Safe on nil and on tasks that already ran.
func (t *Task) Cancel() {
	if t == nil || t.cancelled {
		return
	}
	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Active reports whether the task is still pending
func (t *Task) Active() bool {
	return t != nil && !t.cancelled && !t.fired
}

// Due is when the task was scheduled to fire
func (t *Task) Due() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.due
}
