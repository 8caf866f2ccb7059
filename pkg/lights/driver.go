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

package lights

// Driver is the output peripheral behind the strip. Render takes the
// segment's RGB buffer (3 bytes per pixel) and may block until the
// hardware accepts the frame; Ready reports whether a Render call would
// start immediately.
type Driver interface {
	Ready() bool
	Render(rgb []byte) error
}

// Null is a Driver that renders nowhere. It keeps the last frame so
// headless deployments (and tests) can still observe strip state.
type Null struct {
	frame []byte
}

var _ Driver = (*Null)(nil)

// NewNull returns a Null driver for a strip of pixels pixels.
func NewNull(pixels int) *Null {
	return &Null{frame: make([]byte, 3*pixels)}
}

// Ready implements Driver.Ready.
func (*Null) Ready() bool {
	return true
}

// Render implements Driver.Render.
func (d *Null) Render(rgb []byte) error {
	copy(d.frame, rgb)
	return nil
}

// Frame returns the last rendered frame.
func (d *Null) Frame() []byte {
	return d.frame
}
