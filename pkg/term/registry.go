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

// Package term implements the interactive shell: a line editor running
// as a task, an argv tokenizer, and the insertion-ordered command
// registry it dispatches through.
package term

import (
	"fmt"

	"github.com/stripd/stripd/pkg/clock"
	"github.com/stripd/stripd/pkg/lights"
	"github.com/stripd/stripd/pkg/sched"
	"github.com/stripd/stripd/pkg/tty"
)

// Env is what a command handler gets to touch: the invoking terminal's
// TTY plus the process-wide collaborators.
type Env struct {
	TTY    tty.TTY
	Sched  *sched.Scheduler
	Lights *lights.System
	Wall   *clock.Wall

	// Reboot restarts the appliance. Installed at boot; nil in tests.
	Reboot func()
}

// Printf writes to the invoking terminal.
func (e *Env) Printf(format string, args ...any) {
	fmt.Fprintf(e.TTY, format, args...)
}

// Handler is a shell command. It returns the command's exit code; the
// terminal prints nonzero codes after the command completes.
type Handler func(env *Env, args []string) int

type entry struct {
	name    string
	handler Handler
}

// Registry maps command names to handlers. Registration order is
// preserved (help lists it); duplicate registration replaces the old
// handler in place. Lookup is a linear scan, which is the right size
// for a table this small.
type Registry struct {
	entries []entry
}

// NewRegistry returns a registry with help preinstalled.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Add("help", func(env *Env, args []string) int {
		env.Printf("Commands:\n")
		for _, e := range r.entries {
			env.Printf("  %s\n", e.name)
		}
		return 0
	})
	return r
}

// Add registers handler under name, replacing any existing handler of
// the same name.
func (r *Registry) Add(name string, handler Handler) {
	for i := range r.entries {
		if r.entries[i].name == name {
			r.entries[i].handler = handler
			return
		}
	}
	r.entries = append(r.entries, entry{name: name, handler: handler})
}

// Lookup returns the handler registered under name, or nil.
func (r *Registry) Lookup(name string) Handler {
	for _, e := range r.entries {
		if e.name == name {
			return e.handler
		}
	}
	return nil
}

// Names returns the command names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}
