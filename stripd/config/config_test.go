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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func newFlagSet() *flag.FlagSet {
	f := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(f)
	return f
}

func TestDefaults(t *testing.T) {
	f := newFlagSet()
	if err := f.Parse(nil); err != nil {
		t.Fatal(err)
	}
	conf, err := NewFromFlags(f, "")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := conf.Listen, ":23"; got != want {
		t.Errorf("Listen = %q, want %q", got, want)
	}
	if got, want := conf.Pixels, 240; got != want {
		t.Errorf("Pixels = %d, want %d", got, want)
	}
	if got, want := conf.Driver, "null"; got != want {
		t.Errorf("Driver = %q, want %q", got, want)
	}
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stripd.toml")
	data := `
listen = ":2323"
pixels = 60
driver = "spi"
spi_device = "/dev/spidev1.0"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	f := newFlagSet()
	if err := f.Parse(nil); err != nil {
		t.Fatal(err)
	}
	conf, err := NewFromFlags(f, path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := conf.Listen, ":2323"; got != want {
		t.Errorf("Listen = %q, want %q", got, want)
	}
	if got, want := conf.Pixels, 60; got != want {
		t.Errorf("Pixels = %d, want %d", got, want)
	}
	if got, want := conf.SPIDevice, "/dev/spidev1.0"; got != want {
		t.Errorf("SPIDevice = %q, want %q", got, want)
	}
	// Untouched fields keep their defaults.
	if got, want := conf.NTPServer, Default().NTPServer; got != want {
		t.Errorf("NTPServer = %q, want default %q", got, want)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stripd.toml")
	if err := os.WriteFile(path, []byte(`pixels = 60`), 0644); err != nil {
		t.Fatal(err)
	}

	f := newFlagSet()
	if err := f.Parse([]string{"-pixels", "120", "-console"}); err != nil {
		t.Fatal(err)
	}
	conf, err := NewFromFlags(f, path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := conf.Pixels, 120; got != want {
		t.Errorf("Pixels = %d, want %d", got, want)
	}
	if !conf.Console {
		t.Error("Console flag not applied")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad driver", []string{"-driver", "dmx"}},
		{"bad pixels", []string{"-pixels", "0"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFlagSet()
			if err := f.Parse(tc.args); err != nil {
				t.Fatal(err)
			}
			if _, err := NewFromFlags(f, ""); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestMissingFileErrors(t *testing.T) {
	f := newFlagSet()
	if err := f.Parse(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFlags(f, "/nonexistent/stripd.toml"); err == nil {
		t.Error("missing config file accepted")
	}
}
