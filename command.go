// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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


package commlink

import "fmt"

// Command identifies what an application message asks the peer to do.
// Values outside the named set are carried through untouched; check Known
// and handle them in a default branch.
type Command uint16

// Recognized commands
const (
	CommandAck  Command = 0x01
	CommandNak  Command = 0x02
	CommandPing Command = 0x03
	CommandRaw  Command = 0x04
)

// Known reports whether c is one of the named commands.
func (c Command) Known() bool {
	switch c {
	case CommandAck, CommandNak, CommandPing, CommandRaw:
		return true
	default:
		return false
	}
}

func (c Command) String() string {
	switch c {
	case CommandAck:
		return "ack"
	case CommandNak:
		return "nak"
	case CommandPing:
		return "ping"
	case CommandRaw:
		return "raw"
	default:
		return fmt.Sprintf("Command(0x%04X)", uint16(c))
	}
}

// ParseCommand accepts a command name as returned by String, or a numeric
// value in any base understood by fmt's %v verb.
func ParseCommand(s string) (Command, error) {
	for _, c := range []Command{CommandAck, CommandNak, CommandPing, CommandRaw} {
		if s == c.String() {
			return c, nil
		}
	}
	var v uint16
	if _, err := fmt.Sscan(s, &v); err != nil {
		return 0, fmt.Errorf("unknown command %q: %w", s, err)
	}
	return Command(v), nil
}
