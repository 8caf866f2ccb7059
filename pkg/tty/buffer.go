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

package tty

import "bytes"

// outputCap bounds retained output; a Buffer serving long-lived
// background tasks keeps only the most recent tail.
const outputCap = 64 * 1024

// Buffer is an in-memory TTY. Detached background tasks run on one so
// their writes land somewhere inspectable, and tests use it to script a
// peer byte-for-byte.
type Buffer struct {
	in     []byte
	out    bytes.Buffer
	closed bool
}

var _ TTY = (*Buffer)(nil)

// NewBuffer returns an empty, connected Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Feed queues p to be read by the TTY holder.
func (b *Buffer) Feed(p []byte) {
	b.in = append(b.in, p...)
}

// FeedString queues s to be read by the TTY holder.
func (b *Buffer) FeedString(s string) {
	b.Feed([]byte(s))
}

// Output returns everything written to the TTY so far.
func (b *Buffer) Output() []byte {
	return b.out.Bytes()
}

// OutputString returns everything written to the TTY so far.
func (b *Buffer) OutputString() string {
	return b.out.String()
}

// ResetOutput discards accumulated output.
func (b *Buffer) ResetOutput() {
	b.out.Reset()
}

// Available implements TTY.Available.
func (b *Buffer) Available() int {
	return len(b.in)
}

// ReadByte implements TTY.ReadByte.
func (b *Buffer) ReadByte() (byte, bool) {
	if len(b.in) == 0 {
		return 0, false
	}
	c := b.in[0]
	b.in = b.in[1:]
	return c, true
}

// PeekByte implements TTY.PeekByte.
func (b *Buffer) PeekByte() (byte, bool) {
	if len(b.in) == 0 {
		return 0, false
	}
	return b.in[0], true
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.closed {
		return len(p), nil
	}
	n, err := b.out.Write(p)
	if b.out.Len() > outputCap {
		tail := b.out.Bytes()[b.out.Len()-outputCap:]
		trimmed := make([]byte, outputCap)
		copy(trimmed, tail)
		b.out.Reset()
		b.out.Write(trimmed)
	}
	return n, err
}

// Connected implements TTY.Connected.
func (b *Buffer) Connected() bool {
	return !b.closed
}

// Close implements TTY.Close.
func (b *Buffer) Close() error {
	b.closed = true
	return nil
}

// Flush implements TTY.Flush.
func (b *Buffer) Flush() error {
	return nil
}
