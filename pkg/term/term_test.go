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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/stripd/stripd/pkg/clock"
	"github.com/stripd/stripd/pkg/sched"
	"github.com/stripd/stripd/pkg/tty"
)

// testShell is a terminal task wired to an in-memory peer, with a
// probe command recording its argv.
type testShell struct {
	s    *sched.Scheduler
	peer *tty.Buffer
	reg  *Registry

	calls [][]string
}

func newTestShell(t *testing.T) *testShell {
	t.Helper()
	ts := &testShell{
		s:    sched.New(&clock.Fake{}, tty.NewBuffer()),
		peer: tty.NewBuffer(),
		reg:  NewRegistry(),
	}
	ts.reg.Add("probe", func(env *Env, args []string) int {
		ts.calls = append(ts.calls, args)
		return 0
	})
	ts.reg.Add("fail", func(env *Env, args []string) int {
		return 3
	})

	var wall clock.Wall
	wall.SetReference(time.Date(2021, 6, 1, 10, 20, 30, 0, time.UTC))
	Spawn(ts.s, ts.reg, Env{Wall: &wall}, "test-terminal", ts.peer)
	ts.peer.ResetOutput()
	return ts
}

func (ts *testShell) typeBytes(t *testing.T, in string) {
	t.Helper()
	ts.peer.FeedString(in)
	ts.s.Tick(1000000)
}

func TestRegistryReplaceOnDuplicate(t *testing.T) {
	r := NewRegistry()
	first := func(*Env, []string) int { return 1 }
	second := func(*Env, []string) int { return 2 }
	r.Add("x", first)
	r.Add("y", first)
	r.Add("x", second)

	if diff := cmp.Diff([]string{"help", "x", "y"}, r.Names()); diff != "" {
		t.Errorf("registration order (-want +got):\n%s", diff)
	}
	if got := r.Lookup("x")(nil, nil); got != 2 {
		t.Errorf("lookup after replace ran the old handler (code %d)", got)
	}
	if r.Lookup("missing") != nil {
		t.Error("lookup of unknown name returned a handler")
	}
}

func TestHelpListsInRegistrationOrder(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "help\n")

	out := ts.peer.OutputString()
	iProbe := strings.Index(out, "probe")
	iFail := strings.Index(out, "fail")
	if iProbe < 0 || iFail < 0 || iProbe > iFail {
		t.Errorf("help output order wrong:\n%s", out)
	}
}

func TestCommitOnLF(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "probe one two\n")

	want := [][]string{{"probe", "one", "two"}}
	if diff := cmp.Diff(want, ts.calls); diff != "" {
		t.Errorf("dispatch (-want +got):\n%s", diff)
	}
}

func TestCRLFCommitsOnce(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "probe Hi\r\n")

	want := [][]string{{"probe", "Hi"}}
	if diff := cmp.Diff(want, ts.calls); diff != "" {
		t.Errorf("CR LF produced extra commits (-want +got):\n%s", diff)
	}
}

func TestSeparateCRCommits(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "probe a\rprobe b\r")

	want := [][]string{{"probe", "a"}, {"probe", "b"}}
	if diff := cmp.Diff(want, ts.calls); diff != "" {
		t.Errorf("dispatch (-want +got):\n%s", diff)
	}
}

func TestInterruptDropsLine(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "probe junk\x03probe good\n")

	want := [][]string{{"probe", "good"}}
	if diff := cmp.Diff(want, ts.calls); diff != "" {
		t.Errorf("^C did not drop the line (-want +got):\n%s", diff)
	}
}

func TestBackspaceEditsAndEchoes(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "probe xy\b\bab\n")

	want := [][]string{{"probe", "ab"}}
	if diff := cmp.Diff(want, ts.calls); diff != "" {
		t.Errorf("backspace editing (-want +got):\n%s", diff)
	}
	if !strings.Contains(ts.peer.OutputString(), "\b \b") {
		t.Error("backspace did not echo \"\\b \\b\"")
	}

	// Backspace on an empty line is a no-op.
	ts.peer.ResetOutput()
	ts.typeBytes(t, "\b")
	if strings.Contains(ts.peer.OutputString(), "\b \b") {
		t.Error("backspace echoed on an empty line")
	}
}

func TestEchoOfPrintables(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "abc")
	if got := ts.peer.OutputString(); got != "abc" {
		t.Errorf("echoed %q, want %q", got, "abc")
	}
}

func TestNonPrintablesIgnored(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "probe a\x01\x1fb\n")

	want := [][]string{{"probe", "ab"}}
	if diff := cmp.Diff(want, ts.calls); diff != "" {
		t.Errorf("control bytes leaked into the line (-want +got):\n%s", diff)
	}
}

func TestOverflowSilentlyDrops(t *testing.T) {
	ts := newTestShell(t)
	long := "probe " + strings.Repeat("x", 300)
	ts.typeBytes(t, long+"\n")

	if len(ts.calls) != 1 {
		t.Fatalf("got %d commits, want 1", len(ts.calls))
	}
	arg := ts.calls[0][1]
	if len(arg) != maxInputLine-len("probe ") {
		t.Errorf("argument length %d, want %d (buffer cap)", len(arg), maxInputLine-len("probe "))
	}
}

func TestTokenizerCapsArgs(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "probe "+strings.Repeat("a ", 30)+"\n")

	if len(ts.calls) != 1 {
		t.Fatalf("got %d commits, want 1", len(ts.calls))
	}
	if got, want := len(ts.calls[0]), maxArgs; got != want {
		t.Errorf("argv has %d entries, want cap %d", got, want)
	}
}

func TestMultipleSpacesCollapse(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "probe   a  b\n")

	want := [][]string{{"probe", "a", "b"}}
	if diff := cmp.Diff(want, ts.calls); diff != "" {
		t.Errorf("tokenization (-want +got):\n%s", diff)
	}
}

func TestUnknownCommandReported(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "nosuch\n")

	if !strings.Contains(ts.peer.OutputString(), "command not found: nosuch") {
		t.Errorf("missing not-found message in %q", ts.peer.OutputString())
	}
}

func TestNonzeroExitCodeReported(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "fail\n")

	if !strings.Contains(ts.peer.OutputString(), "(error code 3)") {
		t.Errorf("missing error code in %q", ts.peer.OutputString())
	}
}

func TestPromptShowsWallClock(t *testing.T) {
	ts := newTestShell(t)
	ts.typeBytes(t, "\n")

	if !strings.Contains(ts.peer.OutputString(), "10:20:3") {
		t.Errorf("prompt missing wall time: %q", ts.peer.OutputString())
	}
	if !strings.Contains(ts.peer.OutputString(), "> ") {
		t.Errorf("prompt missing marker: %q", ts.peer.OutputString())
	}
}
