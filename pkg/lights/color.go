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

import "math"

// Color is one pixel in 8-bit RGB.
type Color struct {
	R, G, B uint8
}

// RGB builds a Color from float components in [0,1].
func RGB(r, g, b float64) Color {
	return Color{
		R: uint8(Clamp(r, 0, 1) * 255.99),
		G: uint8(Clamp(g, 0, 1) * 255.99),
		B: uint8(Clamp(b, 0, 1) * 255.99),
	}
}

// HSB builds a Color from hue, saturation and brightness, each in
// [0,1]. Hue wraps.
func HSB(h, s, b float64) Color {
	h = h - math.Floor(h)
	s = Clamp(s, 0, 1)
	b = Clamp(b, 0, 1)

	if s == 0 {
		return RGB(b, b, b)
	}

	sector := h * 6
	i := int(sector) % 6
	f := sector - math.Floor(sector)
	p := b * (1 - s)
	q := b * (1 - s*f)
	t := b * (1 - s*(1-f))

	switch i {
	case 0:
		return RGB(b, t, p)
	case 1:
		return RGB(q, b, p)
	case 2:
		return RGB(p, b, t)
	case 3:
		return RGB(p, q, b)
	case 4:
		return RGB(t, p, b)
	default:
		return RGB(b, p, q)
	}
}

// Clamp bounds a to [lo,hi]. NaN clamps to lo.
func Clamp(a, lo, hi float64) float64 {
	if a > hi {
		return hi
	}
	if a <= hi {
		if a < lo {
			return lo
		}
		return a
	}
	return lo
}
