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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/stripd/stripd/pkg/clock"
	"github.com/stripd/stripd/pkg/tty"
)

func newTestScheduler() (*Scheduler, *clock.Fake) {
	fake := &clock.Fake{}
	return New(fake, tty.NewBuffer()), fake
}

func noop(*Task) {}

func TestSpawnAssignsLowestFreeSlot(t *testing.T) {
	s, _ := newTestScheduler()

	t1 := s.NewTask("a", RunnerFunc(noop))
	t2 := s.NewTask("b", RunnerFunc(noop))
	if got, want := t1.TID(), uint8(1); got != want {
		t.Errorf("first task got TID %d, want %d", got, want)
	}
	if got, want := t2.TID(), uint8(2); got != want {
		t.Errorf("second task got TID %d, want %d", got, want)
	}

	// Freed slots are reused.
	t1.Kill()
	s.Tick(1000000)
	t3 := s.NewTask("c", RunnerFunc(noop))
	if got, want := t3.TID(), uint8(1); got != want {
		t.Errorf("reused task got TID %d, want %d", got, want)
	}
}

func TestSpawnOutsideRunHasNoParent(t *testing.T) {
	s, _ := newTestScheduler()
	task := s.NewTask("orphan", RunnerFunc(noop))
	if task.Parent() != nil {
		t.Errorf("task spawned outside a run has parent %v, want nil", task.Parent())
	}
}

func TestSpawnInsideRunInheritsParentAndTTY(t *testing.T) {
	s, _ := newTestScheduler()
	parentTTY := tty.NewBuffer()

	var child *Task
	parent := s.NewTask("parent", RunnerFunc(func(pt *Task) {
		child = s.NewTask("child", RunnerFunc(noop))
		pt.SetActive(false)
	}))
	parent.SetTTY(parentTTY)
	parent.SetActive(true)

	s.Tick(1000000)

	if child == nil {
		t.Fatal("parent never ran")
	}
	if got, want := child.Parent(), parent; got != want {
		t.Errorf("child parent = %v, want %v", got, want)
	}
	if got, want := child.TTY(), tty.TTY(parentTTY); got != want {
		t.Errorf("child TTY = %v, want parent's TTY", got)
	}
}

func TestRoundRobinIsFairAcrossTicks(t *testing.T) {
	s, _ := newTestScheduler()

	var order []string
	mk := func(name string) {
		task := s.NewTask(name, RunnerFunc(func(*Task) {
			order = append(order, name)
		}))
		task.SetActive(true)
	}
	mk("a")
	mk("b")
	mk("c")

	s.Tick(1000000)
	s.Tick(1000000)

	want := []string{"a", "b", "c", "a", "b", "c"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}
}

func TestTickVisitsEachSlotAtMostOnce(t *testing.T) {
	s, _ := newTestScheduler()

	runs := 0
	task := s.NewTask("busy", RunnerFunc(func(*Task) {
		runs++
	}))
	task.SetActive(true)

	// The fake clock never advances, so only the cursor wrap can end
	// the tick.
	s.Tick(1 << 30)
	if runs != 1 {
		t.Errorf("task ran %d times in one tick, want 1", runs)
	}
}

func TestBudgetStopsTick(t *testing.T) {
	s, fake := newTestScheduler()

	var order []string
	slow := func(name string) RunnerFunc {
		return func(*Task) {
			order = append(order, name)
			fake.Advance(3000)
		}
	}
	a := s.NewTask("a", slow("a"))
	a.SetActive(true)
	b := s.NewTask("b", slow("b"))
	b.SetActive(true)

	// Task a consumes the whole 2 ms budget, so b waits for the next
	// tick, and the rotation resumes where it stopped.
	s.Tick(2000)
	if diff := cmp.Diff([]string{"a"}, order); diff != "" {
		t.Errorf("first tick (-want +got):\n%s", diff)
	}
	s.Tick(2000)
	if diff := cmp.Diff([]string{"a", "b"}, order); diff != "" {
		t.Errorf("second tick (-want +got):\n%s", diff)
	}
}

func TestIntervalTaskFiresOnSchedule(t *testing.T) {
	s, fake := newTestScheduler()

	runs := 0
	task := s.NewTask("periodic", RunnerFunc(func(*Task) {
		runs++
	}))
	task.SetInterval(1000)
	task.SetActive(true)

	s.Tick(1000000)
	if runs != 0 {
		t.Fatalf("periodic task ran %d times before its deadline", runs)
	}

	fake.Advance(1000)
	s.Tick(1000000)
	if runs != 1 {
		t.Errorf("periodic task ran %d times after one interval, want 1", runs)
	}
}

func TestRescheduleSkipsMissedTicksPreservingPhase(t *testing.T) {
	s, fake := newTestScheduler()

	task := s.NewTask("periodic", RunnerFunc(noop))
	task.SetInterval(1000)
	task.SetActive(true)
	before := task.Scheduled()

	// Miss several periods, then run once.
	fake.Advance(4500)
	s.Tick(1000000)

	got := task.Scheduled()
	if !clock.After(got, fake.NowMicros()) {
		t.Errorf("scheduled %d not in the future (now %d)", got, fake.NowMicros())
	}
	if delta := got - before; delta%1000 != 0 {
		t.Errorf("scheduled advanced by %d, want a multiple of the interval", delta)
	}
	if got != before+4000 {
		t.Errorf("scheduled = %d, want %d (phase preserved)", got, before+4000)
	}
}

func TestMsLateTracksWorstDelay(t *testing.T) {
	s, fake := newTestScheduler()

	task := s.NewTask("periodic", RunnerFunc(noop))
	task.SetInterval(1000)
	task.SetActive(true)

	fake.Advance(1000 + 10*1024)
	s.Tick(1000000)

	if got, want := task.MSLate(), uint32(10); got != want {
		t.Errorf("MSLate = %d, want %d", got, want)
	}
}

func TestMsCostAccumulatesForNonPeriodic(t *testing.T) {
	s, fake := newTestScheduler()

	task := s.NewTask("worker", RunnerFunc(func(*Task) {
		fake.Advance(2048)
	}))
	task.SetActive(true)

	s.Tick(5000)
	s.Tick(5000)
	if got, want := task.MSCost(), uint32(4); got != want {
		t.Errorf("MSCost = %d, want %d (accumulated)", got, want)
	}
}

func TestSetActiveRearmsInterval(t *testing.T) {
	s, fake := newTestScheduler()

	task := s.NewTask("periodic", RunnerFunc(noop))
	task.SetInterval(1000)
	task.SetActive(true)
	task.SetActive(false)

	fake.Advance(10000)
	task.SetActive(true)

	if got, want := task.Scheduled(), fake.NowMicros()+1000; got != want {
		t.Errorf("reactivated task scheduled for %d, want %d", got, want)
	}
}

func TestWaitsDefersToForegroundChildren(t *testing.T) {
	s, _ := newTestScheduler()

	parentRuns := 0
	var child *Task
	parent := s.NewTask("parent", RunnerFunc(func(*Task) {
		parentRuns++
		if child == nil {
			child = s.NewTask("child", RunnerFunc(noop))
			child.SetActive(true)
		}
	}))
	parent.SetActive(true)

	s.Tick(1000000) // parent runs, spawns child
	s.Tick(1000000) // parent waits on the child
	if parentRuns != 1 {
		t.Fatalf("parent ran %d times while child active, want 1", parentRuns)
	}

	// The deathmarked child still blocks the parent until it is
	// reaped at its own slot visit.
	child.Exit(0)
	s.Tick(1000000)
	s.Tick(1000000)
	if parentRuns != 2 {
		t.Errorf("parent ran %d times after child exit, want 2", parentRuns)
	}
}

func TestWaitsIgnoresBackgroundAndIntervalChildren(t *testing.T) {
	s, _ := newTestScheduler()

	parentRuns := 0
	parent := s.NewTask("parent", RunnerFunc(func(pt *Task) {
		parentRuns++
		if parentRuns == 1 {
			bg := s.NewTask("bg", RunnerFunc(noop))
			bg.SetBackground(true)
			bg.SetActive(true)
			periodic := s.NewTask("periodic", RunnerFunc(noop))
			periodic.SetInterval(1000000)
			periodic.SetActive(true)
		}
	}))
	parent.SetActive(true)

	s.Tick(1000000)
	s.Tick(1000000)
	if parentRuns != 2 {
		t.Errorf("parent ran %d times, want 2 (background/interval children do not block)", parentRuns)
	}
}

func TestExitRecordsCodeOnce(t *testing.T) {
	s, _ := newTestScheduler()

	task := s.NewTask("victim", RunnerFunc(noop))
	task.SetActive(true)
	ref := task.Ref()

	task.Exit(7)
	if !ref.Done() {
		t.Error("ref not done immediately after Exit")
	}
	task.Exit(9) // first writer wins
	s.Tick(1000000)

	if got, want := ref.ExitCode(), 7; got != want {
		t.Errorf("exit code = %d, want %d", got, want)
	}
	if s.Get(task.TID()) != nil {
		t.Error("task still in table after reap")
	}
}

func TestDestroyDefaultsExitCodeZero(t *testing.T) {
	s, _ := newTestScheduler()

	task := s.NewTask("victim", RunnerFunc(noop))
	ref := task.Ref()
	task.Kill()
	s.Tick(1000000)

	if got, want := ref.ExitCode(), 0; got != want {
		t.Errorf("exit code = %d, want %d", got, want)
	}
}

func TestTTYDisconnectReapsForeground(t *testing.T) {
	s, _ := newTestScheduler()

	peer := tty.NewBuffer()
	fg := s.NewTask("fg", RunnerFunc(noop))
	fg.SetTTY(peer)
	fg.SetActive(true)
	bg := s.NewTask("bg", RunnerFunc(noop))
	bg.SetTTY(peer)
	bg.SetBackground(true)
	bg.SetActive(true)

	peer.Close()
	s.Tick(1000000)

	if s.Get(fg.TID()) != nil {
		t.Error("foreground task survived TTY disconnect")
	}
	if s.Get(bg.TID()) == nil {
		t.Error("background task did not survive TTY disconnect")
	}
}

func TestDestroyCascadesToChildren(t *testing.T) {
	s, _ := newTestScheduler()

	var child, grandchild *Task
	parent := s.NewTask("parent", RunnerFunc(func(pt *Task) {
		if child != nil {
			return
		}
		child = s.NewTask("child", RunnerFunc(func(*Task) {
			if grandchild == nil {
				grandchild = s.NewTask("grandchild", RunnerFunc(noop))
			}
		}))
		child.SetActive(true)
		child.SetWaits(false)
	}))
	parent.SetActive(true)
	parent.SetWaits(false)

	s.Tick(1000000)
	if child == nil || grandchild == nil {
		t.Fatal("task tree not built")
	}

	parent.Kill()
	s.Tick(1000000)

	for _, tc := range []*Task{parent, child, grandchild} {
		if s.Get(tc.TID()) != nil {
			t.Errorf("task %q survived ancestor destruction", tc.Name())
		}
		if !tc.Ref().Done() {
			t.Errorf("task %q ref not settled", tc.Name())
		}
	}
}

func TestDetachedChildSurvivesParent(t *testing.T) {
	s, _ := newTestScheduler()

	var child *Task
	parent := s.NewTask("parent", RunnerFunc(func(*Task) {
		if child == nil {
			child = s.NewTask("child", RunnerFunc(noop))
			child.Detach()
			child.SetActive(true)
		}
	}))
	parent.SetActive(true)
	parent.SetWaits(false)

	s.Tick(1000000)
	parent.Kill()
	s.Tick(1000000)

	if child.Parent() != nil {
		t.Errorf("detached child still has parent %v", child.Parent())
	}
	if s.Get(child.TID()) == nil {
		t.Error("detached child did not survive parent destruction")
	}
}

func TestSlotExhaustionEvictsSlotZero(t *testing.T) {
	s, _ := newTestScheduler()

	for i := 0; i < MaxTasks-1; i++ {
		s.NewTask("filler", RunnerFunc(noop))
	}

	overflow := s.NewTask("overflow", RunnerFunc(noop))
	if got, want := overflow.TID(), uint8(0); got != want {
		t.Fatalf("256th task got TID %d, want %d", got, want)
	}
	ref := overflow.Ref()

	evictor := s.NewTask("evictor", RunnerFunc(noop))
	if got, want := evictor.TID(), uint8(0); got != want {
		t.Errorf("257th task got TID %d, want %d", got, want)
	}
	if !ref.Done() {
		t.Error("evicted slot-0 task was not destroyed")
	}
	if got, want := s.Get(0), evictor; got != want {
		t.Errorf("slot 0 holds %v, want the newest task", got)
	}
}

func TestKillCurrentReapsOnNextTick(t *testing.T) {
	s, _ := newTestScheduler()

	runs := 0
	task := s.NewTask("suicidal", RunnerFunc(func(*Task) {
		runs++
		s.KillCurrent()
	}))
	task.SetActive(true)

	s.Tick(1000000)
	s.Tick(1000000)

	if runs != 1 {
		t.Errorf("task ran %d times, want 1", runs)
	}
	if s.Get(task.TID()) != nil {
		t.Error("task still in table after killing itself")
	}
}

func TestAmbientTTYRestoredAroundRun(t *testing.T) {
	s, _ := newTestScheduler()
	def := s.TTY()

	taskTTY := tty.NewBuffer()
	var seen tty.TTY
	task := s.NewTask("observer", RunnerFunc(func(tt *Task) {
		seen = s.TTY()
		tt.SetActive(false)
	}))
	task.SetTTY(taskTTY)
	task.SetActive(true)

	s.Tick(1000000)

	if got, want := seen, tty.TTY(taskTTY); got != want {
		t.Errorf("ambient TTY during run = %v, want task's TTY", got)
	}
	if got, want := s.TTY(), def; got != want {
		t.Errorf("ambient TTY after tick = %v, want default", got)
	}
}
