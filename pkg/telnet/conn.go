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

package telnet

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stripd/stripd/pkg/tty"
)

// scratchSize is the fixed encoding buffer; bulk writes whose escaped
// form fits avoid an allocation.
const scratchSize = 128

// Conn is a telnet server-side TTY over a raw client stream. Inbound
// bytes are pumped into a raw queue by a background goroutine; the
// state machine consumes the queue synchronously from Available,
// ReadByte and PeekByte, so decode progress only happens on the
// scheduler goroutine.
type Conn struct {
	w      io.Writer
	closer io.Closer
	log    *logrus.Entry

	mu  sync.Mutex
	raw []byte
	eof bool

	closed bool

	state byte
	// code holds the translated byte surfaced in stateBuffer.
	code byte

	// negotiations is the ordered (option, last-sent-verb) ledger used
	// to suppress redundant renegotiation.
	negotiations []negotiation

	scratch [scratchSize]byte
}

var _ tty.TTY = (*Conn)(nil)

// NewConn wraps a raw client stream as a telnet TTY and proactively
// negotiates: offer echo, cancel any historical echo state, then
// suppress go-ahead.
func NewConn(r io.Reader, w io.Writer, closer io.Closer) *Conn {
	c := &Conn{
		w:      w,
		closer: closer,
		log:    logrus.WithField("subsys", "telnet"),
		state:  stateStart,
	}
	go c.pump(r)

	c.sendVerb(WILL, OptEcho)
	c.sendVerb(DONT, OptEcho)
	c.sendVerb(WILL, OptSGA)
	return c
}

func (c *Conn) pump(r io.Reader) {
	var buf [256]byte
	for {
		n, err := r.Read(buf[:])
		c.mu.Lock()
		if n > 0 && !c.closed {
			c.raw = append(c.raw, buf[:n]...)
		}
		if err != nil {
			c.eof = true
			c.mu.Unlock()
			return
		}
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
	}
}

// rawAvailable, rawPeek and rawRead access the pumped queue.

func (c *Conn) rawAvailable() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.raw)
}

func (c *Conn) rawPeek() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw[0]
}

func (c *Conn) rawRead() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.raw[0]
	c.raw = c.raw[1:]
	return b
}

// handle advances the state machine until it parks in stateRead or
// stateBuffer (a byte is deliverable) or the raw queue runs dry.
func (c *Conn) handle() {
	for c.rawAvailable() > 0 {
		switch c.state {

		case stateStart:
			switch c.rawPeek() {
			case IAC:
				c.rawRead()
				c.state = stateIAC
			case cr:
				c.rawRead()
				c.state = stateEOL
			default:
				c.state = stateRead
			}

		case stateEOL:
			// A CR is pending. CR NUL is a bare carriage return, CR LF
			// a newline; anything else is ill-formed, so surface the CR
			// and leave the byte for the next round.
			switch c.rawPeek() {
			case 0:
				c.rawRead()
				c.code = '\r'
			case lf:
				c.rawRead()
				c.code = '\n'
			default:
				c.code = '\r'
			}
			c.state = stateBuffer

		case stateIAC:
			switch c.rawPeek() {
			case SE, NOP, DataMark, AbortOutput, GoAhead, Break:
				c.rawRead()
				c.state = stateStart

			case Interrupt:
				c.rawRead()
				c.code = 3 // ^C
				c.state = stateBuffer

			case AYT:
				c.rawRead()
				c.w.Write([]byte{7}) // BEL
				c.dumpNegotiations()
				c.state = stateStart

			case EraseChar:
				c.rawRead()
				c.code = 8 // ^H
				c.state = stateBuffer

			case EraseLine:
				c.rawRead()
				c.code = 21 // ^U
				c.state = stateBuffer

			case WILL:
				c.rawRead()
				c.state = stateWill
			case WONT:
				c.rawRead()
				c.state = stateWont
			case DO:
				c.rawRead()
				c.state = stateDo
			case DONT:
				c.rawRead()
				c.state = stateDont
			case SB:
				c.rawRead()
				c.state = stateSB

			case IAC:
				// Escaped 0xFF data byte; leave it in the queue.
				c.state = stateRead

			default:
				c.log.WithField("cmd", c.rawPeek()).Warn("unknown IAC command")
				c.rawRead()
				c.state = stateStart
			}

		case stateWill:
			c.recvWill(c.rawRead())
			c.state = stateStart
		case stateWont:
			c.recvWont(c.rawRead())
			c.state = stateStart
		case stateDo:
			c.recvDo(c.rawRead())
			c.state = stateStart
		case stateDont:
			c.recvDont(c.rawRead())
			c.state = stateStart

		case stateSB:
			// Subnegotiation bodies are not parsed; swallow the byte.
			c.rawRead()
			c.state = stateStart

		case stateRead, stateBuffer:
			return
		}
	}
}

// Available implements tty.TTY.Available.
func (c *Conn) Available() int {
	c.handle()
	if c.state == stateBuffer {
		return 1
	}
	if c.state == stateRead {
		return c.rawAvailable()
	}
	return 0
}

// ReadByte implements tty.TTY.ReadByte.
func (c *Conn) ReadByte() (byte, bool) {
	c.handle()
	switch c.state {
	case stateRead:
		c.state = stateStart
		return c.rawRead(), true
	case stateBuffer:
		c.state = stateStart
		return c.code, true
	}
	return 0, false
}

// PeekByte implements tty.TTY.PeekByte.
func (c *Conn) PeekByte() (byte, bool) {
	c.handle()
	switch c.state {
	case stateRead:
		return c.rawPeek(), true
	case stateBuffer:
		return c.code, true
	}
	return 0, false
}

// Connected implements tty.TTY.Connected.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.eof
}

// Close implements tty.TTY.Close.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Flush implements tty.TTY.Flush.
func (c *Conn) Flush() error {
	type flusher interface{ Flush() error }
	if f, ok := c.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
