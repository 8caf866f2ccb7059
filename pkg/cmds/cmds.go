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

// Package cmds registers the built-in shell commands: task and session
// management here, strip control in lights.go.
package cmds

import (
	"strconv"
	"time"

	"github.com/stripd/stripd/pkg/sched"
	"github.com/stripd/stripd/pkg/term"
)

// defaultKillCode is reported by killed tasks when -c is not given.
const defaultKillCode = 22

// Register installs every built-in command into r.
func Register(r *term.Registry) {
	r.Add("print_args", cmdPrintArgs)
	r.Add("tasks", cmdTasks)
	r.Add("kill", cmdKill)
	r.Add("exit", cmdExit)
	r.Add("quit", cmdExit)
	r.Add("reset", cmdReset)

	r.Add("clear", cmdClear)
	r.Add("stop", cmdStop)
	r.Add("rgb", cmdRGB)
	r.Add("hsb", cmdHSB)
	r.Add("rainbow", cmdRainbow)
	r.Add("twinkle", cmdTwinkle)
	r.Add("fire", cmdFire)
}

func cmdPrintArgs(env *term.Env, args []string) int {
	env.Printf("received %d arguments\n", len(args))
	for i, arg := range args {
		env.Printf("%d: '%s'\n", i, arg)
	}
	return 0
}

func cmdTasks(env *term.Env, args []string) int {
	haveTask := false
	for i := 0; i < sched.MaxTasks; i++ {
		t := env.Sched.Get(uint8(i))
		if t == nil {
			continue
		}
		haveTask = true
		env.Printf("%d. %s (", t.TID(), t.Name())
		if t.Active() {
			env.Printf("a")
		}
		if t.Background() {
			env.Printf("b")
		}
		if t.Waits() {
			env.Printf("w")
		}
		env.Printf(")")
		if p := t.Parent(); p != nil {
			env.Printf("[%d]", p.TID())
		}
		if t.Interval() > 0 {
			env.Printf(" (every %d us", t.Interval())
			if t.Active() {
				env.Printf("; scheduled for %d", t.Scheduled())
			}
			env.Printf(")")
		}
		if tt := t.TTY(); tt != nil {
			env.Printf(" (tty %p", tt)
			if !tt.Connected() {
				env.Printf(" disconnected")
			}
			env.Printf(")")
		}
		env.Printf(" (runtime %d ms", t.MSCost()*1024/1000)
		if t.Interval() > 0 {
			env.Printf("; late %d ms", t.MSLate()*1024/1000)
		}
		env.Printf(")\n")
	}
	if !haveTask {
		env.Printf("(none)\n")
	} else {
		env.Printf("a=active, b=background, w=waits. [parent]\n")
	}
	env.Printf("Current time: %d us\n", env.Sched.Clock().NowMicros())
	return 0
}

func cmdKill(env *term.Env, args []string) int {
	if len(args) < 2 {
		env.Printf("Usage: %s [-c exitcode] taskid taskid ...\n", args[0])
		return 1
	}
	exitcode := defaultKillCode
	for i := 1; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			if i < len(args) {
				exitcode, _ = strconv.Atoi(args[i])
			}
			continue
		}
		tid, err := strconv.Atoi(args[i])
		if err != nil || tid < 0 || tid >= sched.MaxTasks {
			continue
		}
		if t := env.Sched.Get(uint8(tid)); t != nil {
			env.Printf("Killing task %d with code %d\n", t.TID(), exitcode)
			t.Exit(uint8(exitcode))
		}
	}
	return 0
}

func cmdExit(env *term.Env, args []string) int {
	env.Printf("Bye!\n")
	env.TTY.Close()
	return 0
}

func cmdReset(env *term.Env, args []string) int {
	env.Printf("Resetting.\n")
	env.TTY.Close()
	// Give the close a moment to reach the peer.
	time.Sleep(5 * time.Millisecond)
	if env.Reboot != nil {
		env.Reboot()
	}
	return 1
}
