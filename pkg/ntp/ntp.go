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

// Package ntp keeps the wall clock honest with periodic SNTP polls.
// A send task fires the request on its interval; replies arrive on a
// pump goroutine and are applied to the wall clock by a receive task,
// so clock corrections happen on the scheduler thread like everything
// else.
package ntp

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/stripd/stripd/pkg/clock"
	"github.com/stripd/stripd/pkg/sched"
)

const (
	packetSize = 48

	// ntpEpochOffset converts NTP seconds (since 1900) to unix seconds.
	ntpEpochOffset = 2208988800

	// pollInterval is the steady-state poll period.
	pollInterval = 20 * 60 * 1000 * 1000 // µs
)

// Client polls an SNTP server and feeds the wall clock.
type Client struct {
	server string
	wall   *clock.Wall
	log    *logrus.Entry

	conn    *net.UDPConn
	replies chan time.Time

	// retry shapes the send interval after failures; it resets once a
	// request goes out cleanly.
	retry *backoff.ExponentialBackOff

	// lastErr is the outcome of the most recent send. Owned by the
	// scheduler goroutine.
	lastErr error
}

// Start resolves server ("host:port"), spawns the send and receive
// tasks on s, and returns the client.
func Start(s *sched.Scheduler, wall *clock.Wall, server string) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, fmt.Errorf("ntp: resolving %s: %w", server, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("ntp: dialing %s: %w", server, err)
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 2 * time.Second
	retry.MaxInterval = 5 * time.Minute
	retry.MaxElapsedTime = 0

	c := &Client{
		server:  server,
		wall:    wall,
		log:     logrus.WithField("subsys", "ntp"),
		conn:    conn,
		replies: make(chan time.Time, 4),
		retry:   retry,
	}
	go c.pump()

	recv := s.NewTask("ntp-receive", sched.RunnerFunc(c.runReceive))
	recv.SetBackground(true)
	recv.SetActive(true)

	send := s.NewTask("ntp-send", sched.RunnerFunc(c.runSend))
	send.SetBackground(true)
	send.SetInterval(pollInterval)
	send.SetActive(true)
	c.send()

	return c, nil
}

// pump blocks on the socket and hands parsed reply times to the
// receive task.
func (c *Client) pump() {
	var buf [packetSize]byte
	for {
		n, err := c.conn.Read(buf[:])
		if err != nil {
			return
		}
		t, err := parseReply(buf[:n])
		if err != nil {
			c.log.WithError(err).Warn("bad ntp packet")
			continue
		}
		select {
		case c.replies <- t:
		default:
		}
	}
}

// parseReply extracts the transmit timestamp of a server reply.
func parseReply(buf []byte) (time.Time, error) {
	if len(buf) < packetSize {
		return time.Time{}, fmt.Errorf("ntp: short packet (%d bytes)", len(buf))
	}
	secs := binary.BigEndian.Uint32(buf[40:44])
	return time.Unix(int64(secs)-ntpEpochOffset, 0), nil
}

func (c *Client) runSend(t *sched.Task) {
	c.send()
	// A failed send backs the interval off; a good one restores the
	// steady poll period.
	if c.lastErr != nil {
		t.SetInterval(uint32(c.retry.NextBackOff().Microseconds()))
	} else {
		c.retry.Reset()
		t.SetInterval(pollInterval)
	}
}

func (c *Client) send() {
	var pkt [packetSize]byte
	pkt[0] = 0b11100011 // LI unsync, version 4, client mode
	_, err := c.conn.Write(pkt[:])
	c.lastErr = err
	if err != nil {
		c.log.WithError(err).Warn("ntp request failed")
	}
}

func (c *Client) runReceive(t *sched.Task) {
	for {
		select {
		case ref := <-c.replies:
			c.wall.SetReference(ref)
			c.log.WithField("unix", ref.Unix()).Debug("clock synced")
		default:
			return
		}
	}
}

// Close stops the pump.
func (c *Client) Close() error {
	return c.conn.Close()
}
