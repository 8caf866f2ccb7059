// Copyright 2021 The Stripd Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sched

import (
	"github.com/stripd/stripd/pkg/clock"
	"github.com/stripd/stripd/pkg/tty"
)

// Runner is the single point of behavioral variation between tasks.
// Run must return promptly; the round-robin contract gives every other
// task time only between Run calls.
type Runner interface {
	Run(t *Task)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(t *Task)

// Run implements Runner.Run.
func (f RunnerFunc) Run(t *Task) {
	f(t)
}

// Task is a cooperatively scheduled unit of work. A task belongs to
// exactly one scheduler, occupies one slot of its table, and sits at
// one position of the task tree (left-child/right-sibling).
//
// All fields are owned by the scheduler goroutine; see the concurrency
// note on Scheduler.
type Task struct {
	s      *Scheduler
	runner Runner

	tid  uint8
	name string
	tty  tty.TTY

	active     bool
	background bool
	waits      bool
	deathmark  bool

	// interval is the wakeup period in microseconds; 0 means run on
	// every tick. scheduled is the next wake instant and is meaningful
	// only while interval > 0.
	interval  uint32
	scheduled uint32

	// msCost and msLate are in units of 1024 µs.
	msCost uint32
	msLate uint32

	ref *Ref

	parent    *Task
	child     *Task
	nextChild *Task
}

// TID returns the task's slot index.
func (t *Task) TID() uint8 { return t.tid }

// Name returns the task's human-readable name.
func (t *Task) Name() string { return t.name }

// TTY returns the task's bound TTY.
func (t *Task) TTY() tty.TTY { return t.tty }

// SetTTY rebinds the task to a different TTY.
func (t *Task) SetTTY(tt tty.TTY) { t.tty = tt }

// Active reports whether the task is eligible for scheduling.
func (t *Task) Active() bool { return t.active }

// Background reports whether the task survives its TTY disconnecting.
func (t *Task) Background() bool { return t.background }

// Waits reports whether the task defers to its foreground children.
func (t *Task) Waits() bool { return t.waits }

// Interval returns the wakeup period in microseconds (0 = every tick).
func (t *Task) Interval() uint32 { return t.interval }

// Scheduled returns the next wake instant. Only meaningful while an
// interval is set.
func (t *Task) Scheduled() uint32 { return t.scheduled }

// Parent returns the task's parent, or nil for a top-level task.
func (t *Task) Parent() *Task { return t.parent }

// MSCost returns accumulated (or, for periodic tasks, last-run) runtime
// in units of 1024 µs.
func (t *Task) MSCost() uint32 { return t.msCost }

// MSLate returns the worst observed wakeup delay in units of 1024 µs.
func (t *Task) MSLate() uint32 { return t.msLate }

// Ref returns the task's out-of-band handle. Grab it at spawn time if
// the exit code is of interest; it stays observable after the task is
// destroyed.
func (t *Task) Ref() *Ref { return t.ref }

// SetActive makes the task eligible (or ineligible) for scheduling.
// Activating a periodic task re-arms its wakeup so it does not fire
// immediately with a stale deadline.
func (t *Task) SetActive(active bool) {
	if active && !t.active {
		t.SetInterval(t.interval)
	}
	t.active = active
}

// SetBackground marks the task as surviving TTY disconnection. Default
// false.
func (t *Task) SetBackground(background bool) {
	t.background = background
}

// SetWaits controls whether the task defers its own runs while it has
// active foreground non-periodic children. Default true.
func (t *Task) SetWaits(waits bool) {
	t.waits = waits
}

// SetInterval sets the wakeup interval in microseconds and arms the
// next wakeup. 0 disables periodic wakeups.
func (t *Task) SetInterval(interval uint32) {
	if interval == 0 {
		t.interval = 0
		return
	}
	t.interval = interval
	t.scheduled = t.s.clock.NowMicros() + interval
}

// SetIntervalFPS sets the wakeup interval from a frame rate.
func (t *Task) SetIntervalFPS(fps float64) {
	t.SetInterval(uint32(1000000.0 / fps))
}

// Detach turns the task into a top-level task with no parent.
func (t *Task) Detach() {
	t.detachParent()
}

// Exit records the exit code and marks the task for destruction. The
// scheduler reaps it before its next run; calling Exit from inside the
// task's own Run is the normal way for a task to terminate itself.
func (t *Task) Exit(code uint8) {
	t.ref.trySetExit(code)
	t.deathmark = true
}

// Kill marks the task for destruction without setting an explicit exit
// code (it will report 0).
func (t *Task) Kill() {
	t.deathmark = true
}

func (t *Task) detachParent() {
	if t.parent != nil {
		t.parent.removeChild(t)
	}
}

func (t *Task) removeChild(child *Task) {
	for pp := &t.child; *pp != nil; pp = &(*pp).nextChild {
		if *pp == child {
			*pp = child.nextChild
			child.parent = nil
			child.nextChild = nil
			return
		}
	}
}

func (t *Task) addChild(child *Task) {
	if t == child {
		return
	}
	child.detachParent()
	child.parent = t
	child.nextChild = t.child
	t.child = child
}

func (t *Task) shouldDie() bool {
	return t.deathmark || (!t.background && t.tty != nil && !t.tty.Connected())
}

func (t *Task) shouldRun(now uint32) bool {
	if !t.active {
		return false
	}
	if t.waits {
		for c := t.child; c != nil; c = c.nextChild {
			if c.active && !c.background && c.interval == 0 {
				return false
			}
		}
	}
	if t.interval > 0 && clock.After(t.scheduled, now) {
		return false
	}
	return true
}

// reschedule advances a periodic task's wakeup by whole intervals until
// it is strictly in the future, preserving phase across missed ticks.
func (t *Task) reschedule() {
	if t.interval == 0 {
		return
	}
	now := t.s.clock.NowMicros()
	for {
		t.scheduled += t.interval
		if clock.After(t.scheduled, now) {
			return
		}
	}
}
