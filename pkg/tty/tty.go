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

// Package tty defines the bidirectional byte stream that tasks are
// bound to. A TTY pairs non-blocking reads with a connection-state
// observer; the scheduler uses the latter to reap foreground tasks
// whose peer has gone away.
package tty

import (
	"io"
	"sync"
)

// TTY is a bidirectional byte stream with connection state. Reads never
// block: Available reports how many bytes can be consumed immediately,
// and ReadByte/PeekByte fail (ok=false) when nothing is pending.
//
// Many tasks may share one TTY; the stream closes when Close is called,
// not when a holder drops its reference.
type TTY interface {
	io.Writer

	// Available returns the number of bytes that can be read without
	// blocking.
	Available() int

	// ReadByte consumes and returns the next pending byte.
	ReadByte() (byte, bool)

	// PeekByte returns the next pending byte without consuming it.
	PeekByte() (byte, bool)

	// Connected reports whether the peer is still attached. Writes to a
	// disconnected TTY are silently dropped.
	Connected() bool

	// Close detaches the peer and releases the underlying stream.
	Close() error

	// Flush forces any buffered output onto the wire.
	Flush() error
}

// Stream adapts a blocking io.ReadWriter to the TTY contract. A pump
// goroutine moves inbound bytes into an internal queue so that the
// single-threaded scheduler can poll without blocking. The stream
// counts as disconnected once the reader fails and the queue drains,
// or once Close is called.
type Stream struct {
	w      io.Writer
	closer io.Closer

	mu     sync.Mutex
	queue  []byte
	eof    bool
	closed bool
}

// NewStream returns a Stream pumping from r and writing to w. If the
// underlying stream should be closed with the TTY, pass it as closer
// (nil is fine).
func NewStream(r io.Reader, w io.Writer, closer io.Closer) *Stream {
	s := &Stream{w: w, closer: closer}
	go s.pump(r)
	return s
}

func (s *Stream) pump(r io.Reader) {
	var buf [256]byte
	for {
		n, err := r.Read(buf[:])
		s.mu.Lock()
		if n > 0 && !s.closed {
			s.queue = append(s.queue, buf[:n]...)
		}
		if err != nil {
			s.eof = true
			s.mu.Unlock()
			return
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
	}
}

// Available implements TTY.Available.
func (s *Stream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ReadByte implements TTY.ReadByte.
func (s *Stream) ReadByte() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, false
	}
	c := s.queue[0]
	s.queue = s.queue[1:]
	return c, true
}

// PeekByte implements TTY.PeekByte.
func (s *Stream) PeekByte() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, false
	}
	return s.queue[0], true
}

// Write implements io.Writer. Writes to a closed or disconnected
// stream report full success and go nowhere.
func (s *Stream) Write(p []byte) (int, error) {
	if !s.Connected() {
		return len(p), nil
	}
	return s.w.Write(p)
}

// Connected implements TTY.Connected.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !(s.eof && len(s.queue) == 0)
}

// Close implements TTY.Close.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Flush implements TTY.Flush.
func (s *Stream) Flush() error {
	type flusher interface{ Flush() error }
	if f, ok := s.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
