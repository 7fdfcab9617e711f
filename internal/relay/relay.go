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


// Package relay implements the device side of the relay service: it answers
// pings, drives an output pin on request and toggles it from a push button.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	commlink "github.com/ZaparooProject/go-commlink"
	"github.com/ZaparooProject/go-commlink/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
)

// OutputSelector is the first payload byte of a Raw message addressing the
// relay output. The second byte is 1 for high and 0 for low.
const OutputSelector = 0xD8

// DefaultDebounce is how long the button must hold a level before it counts.
const DefaultDebounce = 20 * time.Millisecond

// ErrNoOutput is returned by New when the output pin is missing.
var ErrNoOutput = errors.New("relay output pin is required")

// Sender transmits a message back to the host.
type Sender interface {
	Send(msg *commlink.Message) error
}

// Source yields received messages.
type Source interface {
	Read(ctx context.Context) (commlink.Message, error)
	TryRead() (commlink.Message, bool)
}

// Relay reacts to messages from the host. The activity LED is lit while
// messages are being handled and turned off once the queue runs dry.
type Relay struct {
	sender Sender
	output gpio.PinOut
	led    gpio.PinOut
	level  gpio.Level
	mu     syncutil.RWMutex
}

// New creates a relay and drives output low. led may be nil.
func New(sender Sender, output, led gpio.PinOut) (*Relay, error) {
	if output == nil {
		return nil, ErrNoOutput
	}
	r := &Relay{
		sender: sender,
		output: output,
		led:    led,
	}
	if err := r.setOutput(gpio.Low); err != nil {
		return nil, err
	}
	return r, nil
}

// Output returns the level last driven on the output pin.
func (r *Relay) Output() gpio.Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.level
}

func (r *Relay) setOutput(level gpio.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.driveLocked(level)
}

func (r *Relay) driveLocked(level gpio.Level) error {
	if err := r.output.Out(level); err != nil {
		return fmt.Errorf("drive %s %s: %w", r.output, level, err)
	}
	r.level = level
	return nil
}

// Toggle inverts the output pin.
func (r *Relay) Toggle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.driveLocked(!r.level)
}

func (r *Relay) setLED(level gpio.Level) {
	if r.led == nil {
		return
	}
	if err := r.led.Out(level); err != nil {
		commlink.Debugf("relay: led %s: %v", level, err)
	}
}

// Handle acts on one message. Unknown commands and malformed Raw requests
// are ignored.
func (r *Relay) Handle(msg commlink.Message) error {
	r.setLED(gpio.High)

	switch msg.Command {
	case commlink.CommandPing:
		if err := r.sender.Send(&msg); err != nil {
			return fmt.Errorf("echo ping %d: %w", msg.ID, err)
		}
	case commlink.CommandRaw:
		return r.handleRaw(msg.Payload)
	default:
		commlink.Debugf("relay: ignoring %s", &msg)
	}
	return nil
}

func (r *Relay) handleRaw(payload []byte) error {
	if len(payload) < 2 || payload[0] != OutputSelector {
		return nil
	}
	switch payload[1] {
	case 1:
		commlink.Debugf("relay: output HIGH (from comms)")
		return r.setOutput(gpio.High)
	case 0:
		commlink.Debugf("relay: output LOW (from comms)")
		return r.setOutput(gpio.Low)
	default:
		commlink.Debugf("relay: unknown output value %d (ignored)", payload[1])
		return nil
	}
}

// Run handles messages from src until ctx ends. Handler errors are logged
// and do not stop the loop.
func (r *Relay) Run(ctx context.Context, src Source) error {
	for {
		msg, ok := src.TryRead()
		if !ok {
			r.setLED(gpio.Low)
			var err error
			if msg, err = src.Read(ctx); err != nil {
				return err
			}
		}
		if err := r.Handle(msg); err != nil {
			commlink.Debugf("relay: %v", err)
		}
	}
}

// WatchButton toggles the output on every debounced press of button until
// ctx ends. A press is a transition to high that is still high after
// debounce.
func (r *Relay) WatchButton(ctx context.Context, button gpio.PinIn, debounce time.Duration) error {
	if err := button.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return fmt.Errorf("configure button %s: %w", button, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	state := button.Read()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !button.WaitForEdge(100 * time.Millisecond) {
			continue
		}

		timer := time.NewTimer(debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		level := button.Read()
		if level == state {
			continue
		}
		state = level
		if level == gpio.High {
			if err := r.Toggle(); err != nil {
				return err
			}
			commlink.Debugf("relay: button toggled output %s", r.Output())
		}
	}
}
