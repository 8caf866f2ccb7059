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

// Package clock provides the time bases used by the scheduler and the
// shell: a 32-bit monotonic microsecond clock that wraps roughly every
// 71 minutes, and a wall clock whose reference can be corrected from an
// external time source.
package clock

import (
	"sync"
	"time"
)

// Clock is a monotonic microsecond time base. The value wraps; callers
// must compare instants with Before/After rather than with <.
type Clock interface {
	// NowMicros returns the current monotonic time in microseconds.
	NowMicros() uint32
}

// Before reports whether instant a is earlier than instant b, treating
// the two as points on the wrapping 32-bit microsecond circle. The
// comparison is valid as long as a and b are less than 2^31 µs (about
// 35 minutes) apart.
func Before(a, b uint32) bool {
	return int32(a-b) < 0
}

// After reports whether instant a is later than instant b.
func After(a, b uint32) bool {
	return int32(a-b) > 0
}

// Monotonic is the real monotonic clock.
type Monotonic struct {
	start time.Time
}

// NewMonotonic returns a Monotonic clock starting near zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// NowMicros implements Clock.NowMicros.
func (m *Monotonic) NowMicros() uint32 {
	return uint32(time.Since(m.start).Microseconds())
}

// Fake is a manually advanced Clock for tests.
type Fake struct {
	now uint32
}

// NowMicros implements Clock.NowMicros.
func (f *Fake) NowMicros() uint32 {
	return f.now
}

// Advance moves the fake clock forward by d microseconds.
func (f *Fake) Advance(d uint32) {
	f.now += d
}

// Set sets the fake clock to an absolute instant.
func (f *Fake) Set(now uint32) {
	f.now = now
}

// Wall is the process wall clock. It tracks an offset from the host
// clock so that an external reference (e.g. an NTP response) can
// correct it without touching host state.
type Wall struct {
	mu     sync.Mutex
	offset time.Duration
}

// Now returns the corrected wall-clock time.
func (w *Wall) Now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Now().Add(w.offset)
}

// SetReference records t as the true current time; subsequent Now calls
// apply the resulting offset.
func (w *Wall) SetReference(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.offset = t.Sub(time.Now())
}

// HMS returns the hour, minute and second of the corrected wall-clock
// time, as shown in the shell prompt.
func (w *Wall) HMS() (h, m, s int) {
	t := w.Now().Unix()
	s = int(t % 60)
	mm := t / 60
	m = int(mm % 60)
	h = int((mm / 60) % 24)
	return h, m, s
}
