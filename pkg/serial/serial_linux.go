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

// Package serial opens UART devices for the local console: raw mode,
// 8 data bits, no parity, one stop bit.
package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultBaud is the console line rate.
const DefaultBaud = 115200

var baudFlags = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// Port is an open serial device.
type Port struct {
	f *os.File
}

// Open configures dev for raw 8-N-1 operation at the given baud rate.
func Open(dev string, baud int) (*Port, error) {
	flag, ok := baudFlags[baud]
	if !ok {
		return nil, fmt.Errorf("serial: unsupported baud rate %d", baud)
	}

	f, err := os.OpenFile(dev, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: opening %s: %w", dev, err)
	}

	t := unix.Termios{
		Cflag:  unix.CREAD | unix.CLOCAL | unix.CS8 | flag,
		Ispeed: flag,
		Ospeed: flag,
	}
	// Read returns as soon as a single byte arrives.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, &t); err != nil {
		f.Close()
		return nil, fmt.Errorf("serial: configuring %s: %w", dev, err)
	}

	return &Port{f: f}, nil
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	return p.f.Read(b)
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// Close implements io.Closer.
func (p *Port) Close() error {
	return p.f.Close()
}
