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

package anim

import (
	"math/rand"

	"github.com/stripd/stripd/pkg/lights"
)

// twinkle ramp rates in color units per frame.
const (
	twinkleUp   = 4
	twinkleDown = 2
)

// Twinkle fades random pixels up to a random hue and back down. Each
// pixel chases a target color: ramp up while below it, decay toward
// black once reached.
type Twinkle struct {
	rng     *rand.Rand
	targets []lights.Color
}

// NewTwinkle returns a Twinkle animation seeded from rng.
func NewTwinkle(rng *rand.Rand) *Twinkle {
	return &Twinkle{rng: rng}
}

// Frame implements Animation.Frame.
func (tw *Twinkle) Frame(seg *lights.Segment) {
	if tw.targets == nil {
		tw.targets = make([]lights.Color, seg.Len())
	}

	for j := 0; j < seg.Len(); j++ {
		c := seg.Get(j)
		target := tw.targets[j]
		if c.R < target.R || c.G < target.G || c.B < target.B {
			c.R = rampUp(c.R, target.R)
			c.G = rampUp(c.G, target.G)
			c.B = rampUp(c.B, target.B)
		} else {
			c.R = rampDown(c.R)
			c.G = rampDown(c.G)
			c.B = rampDown(c.B)
			target = c
		}
		seg.Set(j, c)
		tw.targets[j] = target
	}

	// Three dice give a center-weighted spark rate.
	r := tw.rng.Intn(100) + tw.rng.Intn(100) + tw.rng.Intn(100)
	if r < 150 {
		i := tw.rng.Intn(seg.Len())
		tw.targets[i] = lights.HSB(float64(tw.rng.Intn(1000))/1000.0, 1.0, 1.0)
	}

	seg.Send(false)
}

func rampUp(c, target uint8) uint8 {
	if c >= target {
		return c
	}
	if int(c)+twinkleUp > int(target) {
		return target
	}
	return c + twinkleUp
}

func rampDown(c uint8) uint8 {
	if c < twinkleDown {
		return 0
	}
	return c - twinkleDown
}
