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

// Package boot assembles the appliance and runs it: scheduler, strip,
// command registry, consoles, clock sync, and the telnet listener.
package boot

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	xterm "golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/stripd/stripd/pkg/clock"
	"github.com/stripd/stripd/pkg/cmds"
	"github.com/stripd/stripd/pkg/lights"
	"github.com/stripd/stripd/pkg/ntp"
	"github.com/stripd/stripd/pkg/sched"
	"github.com/stripd/stripd/pkg/serial"
	"github.com/stripd/stripd/pkg/telnet"
	"github.com/stripd/stripd/pkg/term"
	"github.com/stripd/stripd/pkg/tty"
	"github.com/stripd/stripd/stripd/config"
)

const (
	// tickBudget is the scheduler's per-tick time slice.
	tickBudget = 2000 // µs

	// tickRest keeps the main loop from spinning when no task has
	// work.
	tickRest = time.Millisecond
)

// Loader owns everything the daemon runs.
type Loader struct {
	conf *config.Config
	log  *logrus.Entry

	lock     *flock.Flock
	sched    *sched.Scheduler
	lights   *lights.System
	wall     *clock.Wall
	registry *term.Registry
	env      term.Env

	listener net.Listener
	conns    chan net.Conn
	ntp      *ntp.Client
}

// New builds a Loader from conf. It takes the instance lock, opens the
// LED driver and the telnet listener, and builds the scheduler and the
// command registry; Run spawns the tasks and starts scheduling.
func New(conf *config.Config) (*Loader, error) {
	l := &Loader{
		conf:  conf,
		log:   logrus.WithField("subsys", "boot"),
		wall:  &clock.Wall{},
		conns: make(chan net.Conn, 4),
	}

	l.lock = flock.New(conf.LockFile)
	if locked, err := l.lock.TryLock(); err != nil {
		return nil, fmt.Errorf("boot: locking %s: %w", conf.LockFile, err)
	} else if !locked {
		return nil, fmt.Errorf("boot: another instance holds %s", conf.LockFile)
	}

	drv, err := openDriver(conf)
	if err != nil {
		l.lock.Unlock()
		return nil, err
	}
	l.lights = lights.NewSystem(conf.Pixels, drv)

	// Detached and background tasks write here; it is never read
	// interactively.
	l.sched = sched.New(clock.NewMonotonic(), tty.NewBuffer())

	l.registry = term.NewRegistry()
	cmds.Register(l.registry)

	l.env = term.Env{
		Sched:  l.sched,
		Lights: l.lights,
		Wall:   l.wall,
		Reboot: reboot,
	}

	if conf.Listen != "" {
		ln, err := net.Listen("tcp", conf.Listen)
		if err != nil {
			l.lock.Unlock()
			return nil, fmt.Errorf("boot: listening on %s: %w", conf.Listen, err)
		}
		l.listener = ln
	}

	return l, nil
}

func openDriver(conf *config.Config) (lights.Driver, error) {
	switch conf.Driver {
	case "spi":
		return lights.NewSPI(conf.SPIDevice, conf.Pixels)
	default:
		return lights.NewNull(conf.Pixels), nil
	}
}

// Run starts consoles, clock sync and the listener, then drives the
// scheduler until ctx is canceled.
func (l *Loader) Run(ctx context.Context) error {
	defer l.lock.Unlock()

	if l.conf.NTPServer != "" {
		c, err := ntp.Start(l.sched, l.wall, l.conf.NTPServer)
		if err != nil {
			// The prompt clock free-runs from the host clock instead.
			l.log.WithError(err).Warn("clock sync unavailable")
		} else {
			l.ntp = c
			defer c.Close()
		}
	}

	l.spawnTimeSayer()

	if err := l.startConsole(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if l.listener != nil {
		l.spawnTelnetSpawner()
		g.Go(func() error {
			return l.acceptLoop(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			return l.listener.Close()
		})
	}

	g.Go(func() error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			l.sched.Tick(tickBudget)
			time.Sleep(tickRest)
		}
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// acceptLoop feeds inbound connections to the spawner task. The rate
// limiter keeps a reconnect storm from monopolizing the scheduler with
// terminal spawns.
func (l *Loader) acceptLoop(ctx context.Context) error {
	lim := rate.NewLimiter(rate.Every(100*time.Millisecond), 5)
	for {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		select {
		case l.conns <- conn:
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()
		}
	}
}

// spawnTelnetSpawner starts the task that turns accepted connections
// into telnet terminals. It never waits on its children; a busy
// session must not block the next client.
func (l *Loader) spawnTelnetSpawner() {
	t := l.sched.NewTask("telnet-spawner", sched.RunnerFunc(l.runSpawner))
	t.SetWaits(false)
	t.SetBackground(true)
	t.SetActive(true)
}

func (l *Loader) runSpawner(t *sched.Task) {
	for {
		select {
		case conn := <-l.conns:
			l.log.WithField("peer", conn.RemoteAddr()).Info("telnet client connected")
			l.spawnTelnetTerminal(conn)
		default:
			return
		}
	}
}

func (l *Loader) spawnTelnetTerminal(conn net.Conn) {
	t := telnet.NewConn(conn, conn, conn)
	term.Spawn(l.sched, l.registry, l.env, "telnet-terminal", t)
}

// spawnTimeSayer starts the once-a-minute heartbeat that reports the
// wall-clock time on its TTY.
func (l *Loader) spawnTimeSayer() {
	t := l.sched.NewTask("time-sayer", sched.RunnerFunc(func(task *sched.Task) {
		now := l.wall.Now().Unix()
		h, m, s := l.wall.HMS()
		fmt.Fprintf(task.TTY(), "unix time is %d; %2d:%02d:%02d\n", now, h, m, s)
	}))
	t.SetBackground(true)
	t.SetInterval(60 * 1000 * 1000)
	t.SetActive(true)
}

// startConsole attaches a terminal to the configured serial device, or
// to the process stdio when console mode is on.
func (l *Loader) startConsole() error {
	if l.conf.SerialDevice != "" {
		port, err := serial.Open(l.conf.SerialDevice, l.conf.SerialBaud)
		if err != nil {
			return err
		}
		t := tty.NewStream(port, port, port)
		term.Spawn(l.sched, l.registry, l.env, "serial-terminal", t)
		return nil
	}
	if l.conf.Console {
		// The line editor does its own echo and erase handling, so the
		// host terminal must stop doing both.
		if fd := int(os.Stdin.Fd()); xterm.IsTerminal(fd) {
			if _, err := xterm.MakeRaw(fd); err != nil {
				l.log.WithError(err).Warn("raw mode unavailable")
			}
		}
		t := tty.NewStream(os.Stdin, os.Stdout, nil)
		term.Spawn(l.sched, l.registry, l.env, "console-terminal", t)
	}
	return nil
}

// reboot restarts the appliance by re-executing the daemon image.
func reboot() {
	exe, err := os.Executable()
	if err == nil {
		err = unix.Exec(exe, os.Args, os.Environ())
	}
	logrus.WithError(err).Error("reboot failed")
	os.Exit(1)
}
