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
	"math"

	"github.com/stripd/stripd/pkg/lights"
)

// Rainbow sweeps the hue wheel along the strip.
type Rainbow struct {
	// Speed is the hue shift per frame, Mul the number of wheel turns
	// laid across the strip. Sat and Bri are HSB components in [0,1].
	Speed float64
	Mul   float64
	Sat   float64
	Bri   float64

	hue float64
}

// Frame implements Animation.Frame.
func (r *Rainbow) Frame(seg *lights.Segment) {
	n := seg.Len()
	for i := 0; i < n; i++ {
		h := math.Mod(r.hue+r.Mul*float64(i)/float64(n), 1.0)
		seg.Set(i, lights.HSB(h, r.Sat, r.Bri))
	}
	seg.Send(false)
	r.hue = math.Mod(r.hue-r.Speed, 1.0)
}
