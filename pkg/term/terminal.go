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

package term

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stripd/stripd/pkg/sched"
	"github.com/stripd/stripd/pkg/tty"
)

const (
	// maxInputLine bounds the edit buffer; bytes past it are silently
	// dropped until the line commits.
	maxInputLine = 128

	// maxArgs bounds tokenization; extra tokens are dropped.
	maxArgs = 16
)

// Terminal is the line editor and dispatcher, run as a task per
// console. Each run drains the TTY, echoing and editing; a committed
// line is tokenized and dispatched through the registry.
type Terminal struct {
	reg *Registry
	env Env

	buf      [maxInputLine]byte
	idx      int
	lastByte byte
}

// Spawn creates a terminal task bound to t, prints the banner and the
// first prompt, and activates it. The terminal keeps its own copy of env
// with TTY and Sched bound at spawn time, so one Env template serves
// every terminal.
func Spawn(s *sched.Scheduler, reg *Registry, env Env, name string, t tty.TTY) *sched.Task {
	term := &Terminal{reg: reg, env: env}
	term.env.TTY = t
	term.env.Sched = s

	task := s.NewTask(name, term)
	task.SetTTY(t)

	fmt.Fprintf(t, "stripd (%s; %s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	term.showPrompt()
	task.SetActive(true)
	return task
}

func (term *Terminal) showPrompt() {
	h, m, s := term.env.Wall.HMS()
	fmt.Fprintf(term.env.TTY, "%2d:%02d:%02d> ", h, m, s)
}

// Run implements sched.Runner.Run.
func (term *Terminal) Run(task *sched.Task) {
	t := term.env.TTY
	for t.Available() > 0 {
		c, ok := t.ReadByte()
		if !ok {
			return
		}
		wasCR := term.lastByte == '\r'
		term.lastByte = c

		switch c {
		case '\n', '\r', 3:
			if c == '\n' && wasCR {
				// The LF of a CR LF pair; the CR already committed.
				break
			}
			// ^C drops the line, CR/LF commits it.
			if c != 3 && term.idx > 0 {
				line := string(term.buf[:term.idx])
				fmt.Fprintf(t, "\n")
				term.dispatch(line)
			} else {
				fmt.Fprintf(t, "\n")
			}
			term.showPrompt()
			term.idx = 0

		case '\b', 127:
			if term.idx > 0 {
				t.Write([]byte("\b \b"))
				term.idx--
			}

		default:
			if c >= 0x20 && c <= 0x7E && term.idx < maxInputLine {
				term.buf[term.idx] = c
				term.idx++
				t.Write([]byte{c})
			}
		}
	}
}

// dispatch tokenizes the committed line and runs the named command.
func (term *Terminal) dispatch(line string) {
	args := tokenize(line)
	if len(args) == 0 {
		return
	}

	handler := term.reg.Lookup(args[0])
	if handler == nil {
		fmt.Fprintf(term.env.TTY, "command not found: %s\n", args[0])
		return
	}
	if code := handler(&term.env, args); code != 0 {
		fmt.Fprintf(term.env.TTY, "(error code %d)\n", code)
	}
}

// tokenize splits on ASCII space, capped at maxArgs tokens. No quoting,
// no escapes.
func tokenize(line string) []string {
	var args []string
	for _, tok := range strings.Split(line, " ") {
		if tok == "" {
			continue
		}
		if len(args) == maxArgs {
			logrus.WithField("line", line).Debug("terminal: dropping extra arguments")
			break
		}
		args = append(args, tok)
	}
	return args
}
