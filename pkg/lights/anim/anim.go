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

// Package anim provides the periodic tasks that animate the strip.
// Every animation owns the segment it was spawned with; once a newer
// segment revokes it, the task observes the dead flag on its next
// frame and exits. Preemption between animations needs no scheduler
// support at all.
package anim

import (
	"github.com/stripd/stripd/pkg/lights"
	"github.com/stripd/stripd/pkg/sched"
)

// Animation computes one frame into the segment.
type Animation interface {
	Frame(seg *lights.Segment)
}

// runner adapts an Animation to a task: check the segment, draw, and
// die quietly when revoked.
type runner struct {
	seg  *lights.Segment
	anim Animation
}

// Run implements sched.Runner.Run.
func (r *runner) Run(t *sched.Task) {
	if !r.seg.IsActive() {
		t.Exit(0)
		return
	}
	r.anim.Frame(r.seg)
}

// Spawn requests a fresh segment (revoking the current holder), then
// starts a detached periodic task driving anim at fps frames per
// second.
func Spawn(s *sched.Scheduler, ls *lights.System, name string, fps float64, anim Animation) *sched.Task {
	seg := ls.RequestSegment()
	t := s.NewTask(name, &runner{seg: seg, anim: anim})
	t.Detach()
	t.SetIntervalFPS(fps)
	t.SetActive(true)
	return t
}
