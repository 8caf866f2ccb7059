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

// Package lights implements exclusive-access discipline over one
// physical pixel strip. Segments are handed out on request; issuing a
// new segment revokes the previous one, which its holder observes via
// IsActive and uses to terminate itself. There is no registry of
// holders and no callback: revocation is a flag the loser polls.
package lights

import (
	"github.com/sirupsen/logrus"
)

// System owns the output driver and the currently issued segment.
// Pixel count is fixed at construction.
type System struct {
	pixels int
	drv    Driver
	cur    *Segment
}

// NewSystem returns a System of pixels pixels rendered through drv.
func NewSystem(pixels int, drv Driver) *System {
	return &System{pixels: pixels, drv: drv}
}

// Pixels returns the strip length.
func (s *System) Pixels() int {
	return s.pixels
}

// RequestSegment deactivates the current segment, if any, and issues a
// fresh zeroed one. The returned segment is the only active one.
func (s *System) RequestSegment() *Segment {
	if s.cur != nil {
		s.cur.active = false
	}
	s.cur = &Segment{
		active: true,
		buf:    make([]byte, 3*s.pixels),
		sys:    s,
	}
	return s.cur
}

// send pushes a segment's buffer to the driver. With wait=false the
// frame is dropped if the driver is still busy with the previous one.
func (s *System) send(seg *Segment, wait bool) {
	if !seg.active {
		return
	}
	if !wait && !s.drv.Ready() {
		return
	}
	if err := s.drv.Render(seg.buf); err != nil {
		logrus.WithError(err).Warn("lights: render failed")
	}
}

// Segment grants write access to the strip until the next segment is
// issued. All methods are safe on a revoked segment; they just stop
// reaching the hardware.
type Segment struct {
	active bool
	buf    []byte
	sys    *System
}

// IsActive reports whether this is still the issued segment. Animation
// tasks poll this once per frame and exit when it goes false.
func (g *Segment) IsActive() bool {
	return g.active
}

// Len returns the number of pixels in the segment.
func (g *Segment) Len() int {
	return g.sys.pixels
}

// Set sets pixel idx. Out-of-range indices are ignored.
func (g *Segment) Set(idx int, c Color) {
	if idx < 0 || idx >= g.sys.pixels {
		return
	}
	g.buf[3*idx] = c.R
	g.buf[3*idx+1] = c.G
	g.buf[3*idx+2] = c.B
}

// Get returns pixel idx, or black if out of range.
func (g *Segment) Get(idx int) Color {
	if idx < 0 || idx >= g.sys.pixels {
		return Color{}
	}
	return Color{R: g.buf[3*idx], G: g.buf[3*idx+1], B: g.buf[3*idx+2]}
}

// Clear blanks the segment buffer.
func (g *Segment) Clear() {
	for i := range g.buf {
		g.buf[i] = 0
	}
}

// Buffer exposes the raw RGB buffer, pixels in red-green-blue trios.
func (g *Segment) Buffer() []byte {
	return g.buf
}

// Send pushes the segment to the strip if it is still active. With
// wait=false the frame may be skipped under driver backpressure; with
// wait=true the call blocks until the driver takes it.
func (g *Segment) Send(wait bool) {
	g.sys.send(g, wait)
}
