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

// Fire limits; rows outside this range make the flame either vanish or
// dominate the frame budget.
const (
	FireMinRows = 2
	FireMaxRows = 25
)

// Fire runs a heat simulation behind the strip: a stoked bottom row,
// Rows rows of upward diffusion, and the top row mapped through a
// black-red-yellow-white palette onto the pixels.
type Fire struct {
	// Rows is the simulation depth (FireMinRows..FireMaxRows).
	Rows int
	// Decay scales heat at each diffusion step, in [0,1].
	Decay float64
	// Heat is the chance in [0,1] that a bottom cell is re-stoked each
	// frame.
	Heat float64
	// Loss bounds the random heat drained per diffusion step: each step
	// drains 0..Loss-1, so Loss is at least 1.
	Loss int
	// Keep blends the previous frame into the new one, in [0,1).
	Keep float64

	rng  *rand.Rand
	heat [][]uint8
}

// NewFire returns a Fire with clamped parameters, seeded from rng.
func NewFire(rng *rand.Rand, rows int, decay, heat float64, loss int, keep float64) *Fire {
	if rows < FireMinRows {
		rows = FireMinRows
	}
	if rows > FireMaxRows {
		rows = FireMaxRows
	}
	if loss < 1 {
		loss = 1
	}
	return &Fire{
		Rows:  rows,
		Decay: lights.Clamp(decay, 0, 1),
		Heat:  lights.Clamp(heat, 0, 1),
		Loss:  loss,
		Keep:  lights.Clamp(keep, 0, 0.99),
		rng:   rng,
	}
}

// Frame implements Animation.Frame.
func (f *Fire) Frame(seg *lights.Segment) {
	n := seg.Len()
	if f.heat == nil {
		f.heat = make([][]uint8, f.Rows)
		for i := range f.heat {
			f.heat[i] = make([]uint8, n)
		}
	}

	// Stoke the bottom row.
	bottom := f.heat[0]
	for col := 0; col < n; col++ {
		if f.rng.Float64() < f.Heat {
			bottom[col] = uint8(160 + f.rng.Intn(96))
		}
	}

	// Diffuse upward: each cell draws from the three below it, scaled
	// by decay, minus a random loss.
	for row := f.Rows - 1; row >= 1; row-- {
		src := f.heat[row-1]
		dst := f.heat[row]
		for col := 0; col < n; col++ {
			sum := int(src[col]) * 2
			if col > 0 {
				sum += int(src[col-1])
			} else {
				sum += int(src[col])
			}
			if col < n-1 {
				sum += int(src[col+1])
			} else {
				sum += int(src[col])
			}
			h := int(float64(sum/4)*f.Decay) - f.rng.Intn(f.Loss)
			if h < 0 {
				h = 0
			}
			dst[col] = uint8(h)
		}
	}

	// Map the top row onto the strip, blending with the old frame for
	// persistence.
	top := f.heat[f.Rows-1]
	for col := 0; col < n; col++ {
		c := firePalette(top[col])
		if f.Keep > 0 {
			old := seg.Get(col)
			c.R = blend(old.R, c.R, f.Keep)
			c.G = blend(old.G, c.G, f.Keep)
			c.B = blend(old.B, c.B, f.Keep)
		}
		seg.Set(col, c)
	}
	seg.Send(false)
}

// firePalette maps heat to black-red-yellow-white.
func firePalette(h uint8) lights.Color {
	switch {
	case h < 85:
		return lights.Color{R: h * 3}
	case h < 170:
		return lights.Color{R: 255, G: (h - 85) * 3}
	default:
		return lights.Color{R: 255, G: 255, B: (h - 170) * 3}
	}
}

func blend(old, new uint8, keep float64) uint8 {
	v := keep*float64(old) + (1-keep)*float64(new)
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
