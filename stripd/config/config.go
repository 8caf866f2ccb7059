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

// Package config holds the daemon configuration: defaults, an optional
// TOML file, then command-line flags, each layer overriding the last.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/stripd/stripd/pkg/serial"
)

// Config configures one stripd instance.
type Config struct {
	// Listen is the telnet listen address.
	Listen string `toml:"listen"`

	// SerialDevice is the UART for the local console; empty disables
	// it. Console attaches a terminal to the process stdio instead.
	SerialDevice string `toml:"serial_device"`
	SerialBaud   int    `toml:"serial_baud"`
	Console      bool   `toml:"console"`

	// Pixels is the strip length; Driver selects the output backend
	// ("spi" or "null"), SPIDevice the spidev node for the former.
	Pixels    int    `toml:"pixels"`
	Driver    string `toml:"driver"`
	SPIDevice string `toml:"spi_device"`

	// NTPServer is the SNTP host:port keeping the prompt clock right;
	// empty disables polling.
	NTPServer string `toml:"ntp_server"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	// LockFile guards against a second instance grabbing the strip.
	LockFile string `toml:"lock_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:     ":23",
		SerialBaud: serial.DefaultBaud,
		Pixels:     240,
		Driver:     "null",
		SPIDevice:  "/dev/spidev0.0",
		NTPServer:  "time.nist.gov:123",
		LogLevel:   "info",
		LockFile:   "/run/stripd.lock",
	}
}

// RegisterFlags registers flags mirroring every Config field.
func RegisterFlags(f *flag.FlagSet) {
	def := Default()
	f.String("listen", def.Listen, "telnet listen address.")
	f.String("serial-device", def.SerialDevice, "UART device for the local console; empty disables it.")
	f.Int("serial-baud", def.SerialBaud, "baud rate for the serial console.")
	f.Bool("console", def.Console, "attach a terminal to the process stdio.")
	f.Int("pixels", def.Pixels, "number of pixels on the strip.")
	f.String("driver", def.Driver, "LED output driver: spi or null.")
	f.String("spi-device", def.SPIDevice, "spidev node for the spi driver.")
	f.String("ntp-server", def.NTPServer, "SNTP server (host:port); empty disables clock sync.")
	f.String("log-level", def.LogLevel, "log level: debug, info, warn, or error.")
	f.String("log-file", def.LogFile, "log destination; empty means stderr.")
	f.String("lock-file", def.LockFile, "single-instance lock file path.")
}

// NewFromFlags builds a Config from defaults, the TOML file at path
// (if non-empty), and any flags explicitly set on f.
func NewFromFlags(f *flag.FlagSet, path string) (*Config, error) {
	conf := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, conf); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	f.Visit(conf.applyFlag)

	return conf, conf.validate()
}

func (c *Config) applyFlag(fl *flag.Flag) {
	get := func() string { return fl.Value.String() }
	switch fl.Name {
	case "listen":
		c.Listen = get()
	case "serial-device":
		c.SerialDevice = get()
	case "serial-baud":
		fmt.Sscanf(get(), "%d", &c.SerialBaud)
	case "console":
		c.Console = get() == "true"
	case "pixels":
		fmt.Sscanf(get(), "%d", &c.Pixels)
	case "driver":
		c.Driver = get()
	case "spi-device":
		c.SPIDevice = get()
	case "ntp-server":
		c.NTPServer = get()
	case "log-level":
		c.LogLevel = get()
	case "log-file":
		c.LogFile = get()
	case "lock-file":
		c.LockFile = get()
	}
}

func (c *Config) validate() error {
	if c.Pixels <= 0 {
		return fmt.Errorf("config: pixels must be positive, got %d", c.Pixels)
	}
	switch c.Driver {
	case "spi", "null":
	default:
		return fmt.Errorf("config: unknown driver %q", c.Driver)
	}
	return nil
}

// OpenLog returns the log destination, stderr when unset.
func (c *Config) OpenLog() (*os.File, error) {
	if c.LogFile == "" {
		return os.Stderr, nil
	}
	return os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
