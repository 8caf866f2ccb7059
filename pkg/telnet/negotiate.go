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

// Receive-side negotiation policy. The server is willing to take over
// echo and to suppress go-ahead; everything else is refused.

func (c *Conn) recvDo(opt byte) {
	c.log.WithField("opt", opt).Debug("recv DO")
	if opt == OptEcho || opt == OptSGA {
		c.sendVerb(WILL, opt)
	} else {
		c.sendVerb(WONT, opt)
	}
}

func (c *Conn) recvDont(opt byte) {
	c.log.WithField("opt", opt).Debug("recv DONT")
	c.sendVerb(WONT, opt)
}

func (c *Conn) recvWill(opt byte) {
	c.log.WithField("opt", opt).Debug("recv WILL")
	if opt == OptSGA {
		c.sendVerb(DO, opt)
	} else {
		c.sendVerb(DONT, opt)
	}
}

func (c *Conn) recvWont(opt byte) {
	c.log.WithField("opt", opt).Debug("recv WONT")
	c.sendVerb(DONT, opt)
}

// sendVerb transmits IAC <verb> <opt> unless the ledger shows the same
// verb was already sent for the option. A previously sent complementary
// verb is updated in place and the new verb goes out; an unseen option
// gets a fresh ledger entry. This breaks renegotiation ping-pong with
// peers that re-announce options.
func (c *Conn) sendVerb(verb, opt byte) {
	for i := range c.negotiations {
		n := &c.negotiations[i]
		if n.opt != opt {
			continue
		}
		if n.verb == verb {
			return
		}
		if n.verb == complement(verb) {
			n.verb = verb
			c.w.Write([]byte{IAC, verb, opt})
			return
		}
	}
	c.negotiations = append(c.negotiations, negotiation{opt: opt, verb: verb})
	c.w.Write([]byte{IAC, verb, opt})
}

func verbName(verb byte) string {
	switch verb {
	case DO:
		return "DO"
	case DONT:
		return "DONT"
	case WILL:
		return "WILL"
	case WONT:
		return "WONT"
	}
	return "?"
}

// dumpNegotiations logs the ledger; wired to AYT as a liveness poke
// that doubles as a debugging aid.
func (c *Conn) dumpNegotiations() {
	for _, n := range c.negotiations {
		c.log.WithFields(map[string]any{
			"opt":  n.opt,
			"sent": verbName(n.verb),
		}).Debug("negotiation state")
	}
}
