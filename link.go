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
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ZaparooProject/go-commlink/internal/syncutil"
)

// ErrPayloadsDisabled is returned by ReadPayload when the link was built
// without WithRawPayloads.
var ErrPayloadsDisabled = errors.New("raw payload queue disabled")

// Stats is a snapshot of link counters.
type Stats struct {
	Ingress   IngressStats
	Assembler AssemblerStats
}

// Link wires a transport to the receive pipeline and the transmit path.
// Run drives reception; Send may be called from any goroutine.
type Link struct {
	transport Transport
	config    *LinkConfig
	chunks    *Queue[[]byte]
	messages  *Queue[Message]
	payloads  *Queue[[]byte]
	ingress   *Ingress
	assembler *Assembler
	counter   ErrorCounter
	sendMu    syncutil.Mutex
	running   atomic.Bool
}

// New creates a link over transport with the given options applied on top
// of DefaultLinkConfig.
func New(transport Transport, opts ...Option) (*Link, error) {
	config := DefaultLinkConfig()
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	l := &Link{
		transport: transport,
		config:    config,
	}

	var err error
	if l.chunks, err = NewQueue[[]byte](config.IngressQueueSize); err != nil {
		return nil, err
	}
	if l.messages, err = NewQueue[Message](config.MessageQueueSize); err != nil {
		return nil, err
	}
	if l.assembler, err = NewAssembler(l.chunks, l.messages, &l.counter, config.RxBufferSize); err != nil {
		return nil, err
	}
	if config.PayloadQueueSize > 0 {
		if l.payloads, err = NewQueue[[]byte](config.PayloadQueueSize); err != nil {
			return nil, err
		}
		l.assembler.PublishPayloads(l.payloads)
	}
	l.ingress = NewIngress(transport, l.chunks, config.ReadBackoff)

	return l, nil
}

// Run drives the ingress and assembly tasks until ctx ends or the
// transport fails fatally. Chunks still queued when ingress stops are
// assembled before Run returns.
func (l *Link) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLinkRunning
	}
	defer l.running.Store(false)

	asmCtx, stopAssembler := context.WithCancel(ctx)
	defer stopAssembler()

	asmDone := make(chan struct{})
	go func() {
		defer close(asmDone)
		_ = l.assembler.Run(asmCtx)
	}()

	err := l.ingress.Run(ctx)
	stopAssembler()
	<-asmDone
	l.assembler.Drain()

	Debugf("link: stopped: %v", err)
	return err
}

// Send transmits msg. Concurrent senders are serialized.
func (l *Link) Send(msg *Message) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	return WriteMessage(l.transport, msg)
}

// SendFrame transmits an arbitrary payload without a message header.
func (l *Link) SendFrame(payload []byte) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	return WriteFrame(l.transport, payload)
}

// Read waits for the next decoded message.
func (l *Link) Read(ctx context.Context) (Message, error) {
	return l.messages.Pop(ctx)
}

// TryRead returns the next decoded message if one is queued.
func (l *Link) TryRead() (Message, bool) {
	return l.messages.TryPop()
}

// ReadPayload waits for the next good frame payload.
func (l *Link) ReadPayload(ctx context.Context) ([]byte, error) {
	if l.payloads == nil {
		return nil, ErrPayloadsDisabled
	}
	return l.payloads.Pop(ctx)
}

// TryReadPayload returns the next good frame payload if one is queued.
func (l *Link) TryReadPayload() ([]byte, bool) {
	if l.payloads == nil {
		return nil, false
	}
	return l.payloads.TryPop()
}

// FCSErrors exposes the consecutive checksum failure count, for use with
// a RecoveryPolicy.
func (l *Link) FCSErrors() *ErrorCounter {
	return &l.counter
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	return Stats{
		Ingress:   l.ingress.Stats(),
		Assembler: l.assembler.Stats(),
	}
}

// Close closes the transport, which ends a pending Run.
func (l *Link) Close() error {
	if err := l.transport.Close(); err != nil {
		return fmt.Errorf("close link: %w", err)
	}
	return nil
}
