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

package cmds

import (
	"math/rand"
	"strconv"
	"time"

	"github.com/stripd/stripd/pkg/lights"
	"github.com/stripd/stripd/pkg/lights/anim"
	"github.com/stripd/stripd/pkg/term"
)

const defaultFPS = 30.0

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// atof mirrors the shell's forgiving number parsing: garbage reads as
// zero.
func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func cmdClear(env *term.Env, args []string) int {
	seg := env.Lights.RequestSegment()
	seg.Clear()
	seg.Send(true)
	return 0
}

// cmdStop requests a segment and drops it: the running animation loses
// ownership and exits, while the last frame it sent stays lit until
// something else renders.
func cmdStop(env *term.Env, args []string) int {
	env.Lights.RequestSegment()
	return 0
}

func cmdRGB(env *term.Env, args []string) int {
	if len(args) != 4 {
		env.Printf("%s r g b\n", args[0])
		return 1
	}
	c := lights.RGB(atof(args[1]), atof(args[2]), atof(args[3]))
	seg := env.Lights.RequestSegment()
	for i := 0; i < seg.Len(); i++ {
		seg.Set(i, c)
	}
	seg.Send(true)
	return 0
}

func cmdHSB(env *term.Env, args []string) int {
	if len(args) != 4 {
		env.Printf("%s h s b\n", args[0])
		return 1
	}
	c := lights.HSB(atof(args[1]), atof(args[2]), atof(args[3]))
	seg := env.Lights.RequestSegment()
	for i := 0; i < seg.Len(); i++ {
		seg.Set(i, c)
	}
	seg.Send(true)
	return 0
}

func cmdRainbow(env *term.Env, args []string) int {
	r := &anim.Rainbow{Speed: 0.01, Mul: 1.0, Sat: 1.0, Bri: 1.0}
	for i := 1; i < len(args); i++ {
		flag := args[i]
		i++
		if i >= len(args) {
			env.Printf("%s [-f speed] [-m spatial_multiplier] [-s saturation] [-b brightness]\n", args[0])
			return 1
		}
		switch flag {
		case "-f":
			r.Speed = atof(args[i])
		case "-m":
			r.Mul = atof(args[i])
		case "-s":
			r.Sat = lights.Clamp(atof(args[i]), 0, 1)
		case "-b":
			r.Bri = lights.Clamp(atof(args[i]), 0, 1)
		default:
			env.Printf("%s [-f speed] [-m spatial_multiplier] [-s saturation] [-b brightness]\n", args[0])
			return 1
		}
	}
	anim.Spawn(env.Sched, env.Lights, "rainbow", defaultFPS, r)
	return 0
}

func cmdTwinkle(env *term.Env, args []string) int {
	anim.Spawn(env.Sched, env.Lights, "twinkle", defaultFPS, anim.NewTwinkle(newRNG()))
	return 0
}

func cmdFire(env *term.Env, args []string) int {
	rows := 10
	decay := 0.85
	heat := 0.4
	loss := 4
	keep := 0.0
	fps := defaultFPS

	usage := func() int {
		env.Printf("%s [-r rows] [-d decay] [-e heat] [-l loss] [-k keep] [-f fps]\n", args[0])
		return 1
	}

	for i := 1; i < len(args); i++ {
		flag := args[i]
		i++
		if i >= len(args) {
			return usage()
		}
		switch flag {
		case "-r":
			rows, _ = strconv.Atoi(args[i])
			if rows < anim.FireMinRows || rows > anim.FireMaxRows {
				env.Printf("rows must be in %d..%d\n", anim.FireMinRows, anim.FireMaxRows)
				return 1
			}
		case "-d":
			decay = atof(args[i])
		case "-e":
			heat = atof(args[i])
		case "-l":
			loss, _ = strconv.Atoi(args[i])
			if loss < 1 {
				env.Printf("loss must be at least 1\n")
				return 1
			}
		case "-k":
			keep = atof(args[i])
		case "-f":
			fps = atof(args[i])
			if fps <= 0 {
				return usage()
			}
		default:
			return usage()
		}
	}

	anim.Spawn(env.Sched, env.Lights, "fire", fps,
		anim.NewFire(newRNG(), rows, decay, heat, loss, keep))
	return 0
}
