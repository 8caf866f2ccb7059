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

package lights

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ws281x strips sample the data line at fixed bit times; driving the
// strip from a SPI controller encodes each data bit as three SPI bits
// (1 -> 110, 0 -> 100) at 2.4 MHz, giving the 1.25 µs bit period the
// parts expect. Pixels are fed green-red-blue, high bit first.
const (
	spiSpeedHz     = 2400000
	spiBitsPerWord = 8

	spiIOCWrMode        = 0x40016b01
	spiIOCWrBitsPerWord = 0x40016b03
	spiIOCWrMaxSpeedHz  = 0x40046b04
)

// SPI is a Driver pushing frames through a spidev character device.
// Writes block until the controller has clocked the frame out, so
// Ready is always true and send(wait=false) never skips.
type SPI struct {
	f *os.File

	// encoded is reused across frames: 3 symbol bytes per color byte,
	// plus trailing zeroes holding the line low for the latch gap.
	encoded []byte
}

var _ Driver = (*SPI)(nil)

// latchBytes of zero bits hold the line low long enough (>50 µs) for
// the strip to latch the frame.
const latchBytes = 16

// NewSPI opens dev (e.g. /dev/spidev0.0) and configures it for ws281x
// timing.
func NewSPI(dev string, pixels int) (*SPI, error) {
	f, err := os.OpenFile(dev, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("lights: opening %s: %w", dev, err)
	}

	mode := uint8(0)
	bits := uint8(spiBitsPerWord)
	speed := uint32(spiSpeedHz)
	for _, cfg := range []struct {
		req uint
		arg unsafe.Pointer
	}{
		{spiIOCWrMode, unsafe.Pointer(&mode)},
		{spiIOCWrBitsPerWord, unsafe.Pointer(&bits)},
		{spiIOCWrMaxSpeedHz, unsafe.Pointer(&speed)},
	} {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(cfg.req), uintptr(cfg.arg)); errno != 0 {
			f.Close()
			return nil, fmt.Errorf("lights: configuring %s: %w", dev, errno)
		}
	}

	return &SPI{
		f:       f,
		encoded: make([]byte, 3*3*pixels+latchBytes),
	}, nil
}

// Ready implements Driver.Ready.
func (*SPI) Ready() bool {
	return true
}

// Render implements Driver.Render.
func (d *SPI) Render(rgb []byte) error {
	out := d.encoded[:0]
	for i := 0; i+2 < len(rgb); i += 3 {
		// Wire order is GRB.
		out = encodeSPIByte(out, rgb[i+1])
		out = encodeSPIByte(out, rgb[i])
		out = encodeSPIByte(out, rgb[i+2])
	}
	for i := 0; i < latchBytes; i++ {
		out = append(out, 0)
	}
	_, err := d.f.Write(out)
	return err
}

// Close releases the device.
func (d *SPI) Close() error {
	return d.f.Close()
}

// encodeSPIByte expands one color byte into three symbol bytes: each
// data bit becomes 110 or 100 on the wire.
func encodeSPIByte(dst []byte, b byte) []byte {
	var sym uint32
	for bit := 7; bit >= 0; bit-- {
		sym <<= 3
		if b&(1<<uint(bit)) != 0 {
			sym |= 0b110
		} else {
			sym |= 0b100
		}
	}
	return append(dst, byte(sym>>16), byte(sym>>8), byte(sym))
}
