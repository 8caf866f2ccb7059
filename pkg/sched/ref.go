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

// noExit is the exit-code sentinel meaning "still running".
const noExit = -1

// Ref is a task's out-of-band handle. It is created 1:1 with the task
// and shared between the task and any observer; once the task records
// an exit code the back-pointer is dropped and only the code remains.
// The first writer wins.
type Ref struct {
	task     *Task
	exitCode int
}

func newRef(t *Task) *Ref {
	return &Ref{task: t, exitCode: noExit}
}

func (r *Ref) trySetExit(code uint8) {
	if r.exitCode < 0 {
		r.task = nil
		r.exitCode = int(code)
	}
}

// Task returns the referenced task, or nil once it has exited.
func (r *Ref) Task() *Task {
	return r.task
}

// Done reports whether the task has recorded its exit code.
func (r *Ref) Done() bool {
	return r.task == nil
}

// ExitCode returns the recorded exit code, or -1 while none has been
// recorded.
func (r *Ref) ExitCode() int {
	return r.exitCode
}
