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

// Package sched implements the fixed-slot cooperative scheduler. Tasks
// occupy one of 256 table slots, run round-robin within a microsecond
// budget per tick, and form a parent/child tree used for wait and
// reaping semantics. There is no preemption: a task holds the thread
// until its Run returns.
package sched

import (
	"github.com/sirupsen/logrus"

	"github.com/stripd/stripd/pkg/clock"
	"github.com/stripd/stripd/pkg/tty"
)

// MaxTasks is the size of the task table; TIDs are 0..MaxTasks-1.
const MaxTasks = 256

// Scheduler owns the task table and the ambient current-task and
// current-TTY state.
//
// The scheduler and every Task method are confined to a single
// goroutine: the one calling Tick. Tasks spawn, kill and reconfigure
// each other only from inside Run, so no locking is needed anywhere in
// this package.
type Scheduler struct {
	clock clock.Clock

	table [MaxTasks]*Task

	// next is the round-robin cursor. It persists across ticks so the
	// rotation is fair.
	next uint8

	// cur is the ref of the task currently inside Run, nil outside.
	cur *Ref

	// curTTY is the ambient TTY, installed around each Run. Outside a
	// run it is the default TTY.
	curTTY tty.TTY
}

// New returns a scheduler whose ambient TTY defaults to def. Tasks
// constructed outside any run bind to def.
func New(c clock.Clock, def tty.TTY) *Scheduler {
	return &Scheduler{clock: c, curTTY: def}
}

// Clock returns the scheduler's monotonic time base.
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// TTY returns the ambient TTY: the running task's TTY during a run,
// the default otherwise. Command handlers print here.
func (s *Scheduler) TTY() tty.TTY {
	return s.curTTY
}

// Current returns the task currently inside Run, or nil.
func (s *Scheduler) Current() *Task {
	if s.cur != nil {
		return s.cur.task
	}
	return nil
}

// KillCurrent marks the currently running task for destruction.
func (s *Scheduler) KillCurrent() {
	if t := s.Current(); t != nil {
		t.deathmark = true
	}
}

// Get returns the task in slot tid, or nil.
func (s *Scheduler) Get(tid uint8) *Task {
	return s.table[tid]
}

// NewTask registers a task in the table and returns it. If the
// scheduler is inside a run, the running task becomes its parent and
// its TTY is inherited from the ambient TTY. The task starts inactive,
// foreground, waiting.
func (s *Scheduler) NewTask(name string, r Runner) *Task {
	t := &Task{
		s:      s,
		runner: r,
		name:   name,
		tty:    s.curTTY,
		waits:  true,
	}
	t.ref = newRef(t)
	s.push(t)
	if cur := s.Current(); cur != nil {
		cur.addChild(t)
	}
	return t
}

// push places t in the first free slot 1..255. When the table is full
// the occupant of slot 0 is destroyed and t takes its place; losing
// the slot-0 task is the documented overflow behavior, not a quota.
func (s *Scheduler) push(t *Task) {
	for i := 1; i < MaxTasks; i++ {
		if s.table[i] == nil {
			s.table[i] = t
			t.tid = uint8(i)
			return
		}
	}
	if t0 := s.table[0]; t0 != nil {
		logrus.WithFields(logrus.Fields{
			"tid":  0,
			"task": t0.name,
		}).Warn("task table full, evicting slot 0")
		s.table[0] = nil
		s.destroy(t0)
	}
	s.table[0] = t
	t.tid = 0
}

// destroy detaches t from its parent, destroys its children, frees its
// slot, and settles its ref (exit code 0 unless one was recorded).
func (s *Scheduler) destroy(t *Task) {
	t.detachParent()

	for t.child != nil {
		c := t.child
		t.removeChild(c)
		s.destroy(c)
	}

	if s.table[t.tid] == t {
		s.table[t.tid] = nil
	}

	t.ref.trySetExit(0)
}

// Tick runs tasks round-robin for at most budget microseconds. Each
// slot is visited at most once per call: the tick also ends when the
// cursor wraps back to its starting position. Dead tasks are reaped at
// visit time, before they would run.
func (s *Scheduler) Tick(budget uint32) {
	oldTTY := s.curTTY

	start := s.clock.NowMicros()
	now := start
	startTID := s.next

	for {
		task := s.table[s.next]
		s.next++
		if task != nil {
			if task.shouldDie() {
				s.destroy(task)
			} else if task.shouldRun(now) {
				if task.interval > 0 {
					if late := (s.clock.NowMicros() - task.scheduled) >> 10; late > task.msLate {
						task.msLate = late
					}
				}

				s.cur = task.ref
				s.curTTY = task.tty
				task.runner.Run(task)
				task.reschedule()
				s.curTTY = oldTTY
				s.cur = nil

				cost := (s.clock.NowMicros() - now) >> 10
				if task.interval > 0 {
					task.msCost = cost
				} else {
					task.msCost += cost
				}
			}
		}
		now = s.clock.NowMicros()
		if !clock.After(start+budget, now) || startTID == s.next {
			return
		}
	}
}
