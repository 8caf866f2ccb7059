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

// Package cmd holds the stripd subcommands.
package cmd

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/stripd/stripd/stripd/boot"
	"github.com/stripd/stripd/stripd/config"
)

// Serve implements subcommands.Command for the "serve" command.
type Serve struct {
	configPath string
}

// Name implements subcommands.Command.Name.
func (*Serve) Name() string {
	return "serve"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Serve) Synopsis() string {
	return "run the LED appliance daemon"
}

// Usage implements subcommands.Command.Usage.
func (*Serve) Usage() string {
	return `serve [flags] - drive the strip and serve the command shell.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Serve) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.configPath, "config", "", "TOML configuration file; flags override it.")
	config.RegisterFlags(f)
}

// Execute implements subcommands.Command.Execute.
func (s *Serve) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf, err := config.NewFromFlags(f, s.configPath)
	if err != nil {
		Fatalf("%v", err)
	}

	if err := setupLogging(conf); err != nil {
		Fatalf("%v", err)
	}

	l, err := boot.New(conf)
	if err != nil {
		Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	if err := l.Run(ctx); err != nil && err != context.Canceled {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

func setupLogging(conf *config.Config) error {
	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	out, err := conf.OpenLog()
	if err != nil {
		return err
	}
	logrus.SetOutput(out)
	return nil
}
