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

import (
	"context"
	"sync/atomic"

	"github.com/ZaparooProject/go-commlink/internal/frame"
)

// AssemblerStats is a snapshot of frame assembly counters.
type AssemblerStats struct {
	Frames                    uint64
	ChecksumErrors            uint64
	ConsecutiveChecksumErrors uint64
	Malformed                 uint64
	Overflows                 uint64
	DroppedMessages           uint64
	DroppedPayloads           uint64
}

// Assembler turns raw chunks into messages. It is the only owner of the
// raw receive buffer, so Feed and Run must not be called concurrently.
type Assembler struct {
	ingress   *Queue[[]byte]
	messages  *Queue[Message]
	payloads  *Queue[[]byte]
	counter   *ErrorCounter
	buf       *frame.Buffer
	frames    atomic.Uint64
	malformed atomic.Uint64
	overflows atomic.Uint64
}

// NewAssembler creates an assembler reading from ingress and publishing to
// messages. Checksum failures are recorded in counter, which may be nil.
func NewAssembler(
	ingress *Queue[[]byte],
	messages *Queue[Message],
	counter *ErrorCounter,
	bufferSize int,
) (*Assembler, error) {
	buf, err := frame.NewBuffer(bufferSize)
	if err != nil {
		return nil, err //nolint:wrapcheck // already carries the size
	}
	if counter == nil {
		counter = &ErrorCounter{}
	}
	return &Assembler{
		ingress:  ingress,
		messages: messages,
		counter:  counter,
		buf:      buf,
	}, nil
}

// PublishPayloads makes the assembler also push every good frame payload,
// undecoded, to q. Call before Run.
func (a *Assembler) PublishPayloads(q *Queue[[]byte]) {
	a.payloads = q
}

// Counter returns the checksum failure counter.
func (a *Assembler) Counter() *ErrorCounter {
	return a.counter
}

// Run feeds chunks from the ingress queue until ctx ends.
func (a *Assembler) Run(ctx context.Context) error {
	for {
		chunk, err := a.ingress.Pop(ctx)
		if err != nil {
			return err
		}
		a.Feed(chunk)
	}
}

// Drain feeds whatever chunks are already queued without waiting.
func (a *Assembler) Drain() {
	for {
		chunk, ok := a.ingress.TryPop()
		if !ok {
			return
		}
		a.Feed(chunk)
	}
}

// Feed appends chunk to the receive buffer and resolves every complete
// frame in it. It returns the number of messages published.
func (a *Assembler) Feed(chunk []byte) int {
	buffered := a.buf.Len()
	if a.buf.Append(chunk) {
		a.overflows.Add(1)
		Debugf("assembler: receive buffer overflow, discarded %d buffered bytes and %d new", buffered, len(chunk))
		return 0
	}

	published := 0
	for {
		payload, status := a.buf.Next()
		switch status {
		case frame.StatusIncomplete:
			return published
		case frame.StatusBadFCS:
			a.counter.Fail()
			Debugf("assembler: checksum mismatch (%d consecutive)", a.counter.Consecutive())
		case frame.StatusOK:
			a.counter.Succeed()
			a.frames.Add(1)
			if a.handle(payload) {
				published++
			}
		}
	}
}

func (a *Assembler) handle(payload []byte) bool {
	if a.payloads != nil && !a.payloads.TryPush(payload) {
		Debugf("assembler: payload queue full, dropped %d bytes", len(payload))
	}

	msg, err := DecodeMessage(payload)
	if err != nil {
		a.malformed.Add(1)
		Debugf("assembler: %v", err)
		return false
	}
	if !a.messages.TryPush(msg) {
		Debugf("assembler: message queue full, dropped %s", &msg)
		return false
	}
	return true
}

// Stats returns a snapshot of the assembly counters.
func (a *Assembler) Stats() AssemblerStats {
	stats := AssemblerStats{
		Frames:                    a.frames.Load(),
		ChecksumErrors:            a.counter.Total(),
		ConsecutiveChecksumErrors: a.counter.Consecutive(),
		Malformed:                 a.malformed.Load(),
		Overflows:                 a.overflows.Load(),
		DroppedMessages:           a.messages.Dropped(),
	}
	if a.payloads != nil {
		stats.DroppedPayloads = a.payloads.Dropped()
	}
	return stats
}
