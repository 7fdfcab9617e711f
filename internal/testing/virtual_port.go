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


package testing

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ErrPortClosed is returned by VirtualPort operations after Close.
var ErrPortClosed = errors.New("virtual port closed")

// VirtualPort is an in-memory serial.Port. Bytes given to Inject become
// readable immediately; a Read on an empty port waits for the configured
// read timeout and then returns zero bytes, like a real UART going idle.
type VirtualPort struct {
	writeErr    error
	arrived     *sync.Cond
	mode        *serial.Mode
	rx          bytes.Buffer
	tx          bytes.Buffer
	readTimeout time.Duration
	writeLimit  int
	drains      int
	mu          sync.Mutex
	closed      bool
}

// NewVirtualPort creates an open port with a 10ms read timeout.
func NewVirtualPort() *VirtualPort {
	p := &VirtualPort{readTimeout: 10 * time.Millisecond}
	p.arrived = sync.NewCond(&p.mu)
	return p
}

// Inject makes data available to Read.
func (p *VirtualPort) Inject(data []byte) {
	p.mu.Lock()
	p.rx.Write(data)
	p.mu.Unlock()
	p.arrived.Broadcast()
}

// Written returns a copy of everything written to the port.
func (p *VirtualPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.tx.Bytes())
}

// Drains returns how many times Drain was called.
func (p *VirtualPort) Drains() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drains
}

// Mode returns the last mode passed to SetMode.
func (p *VirtualPort) Mode() *serial.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// ReadTimeout returns the current read timeout.
func (p *VirtualPort) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readTimeout
}

// SetWriteLimit caps the number of bytes accepted per Write call.
// Zero removes the cap.
func (p *VirtualPort) SetWriteLimit(n int) {
	p.mu.Lock()
	p.writeLimit = n
	p.mu.Unlock()
}

// SetWriteError makes every Write fail with err until cleared with nil.
func (p *VirtualPort) SetWriteError(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

func (p *VirtualPort) SetMode(mode *serial.Mode) error {
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	return nil
}

func (p *VirtualPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rx.Len() == 0 && !p.closed && p.readTimeout > 0 {
		deadline := time.Now().Add(p.readTimeout)
		timer := time.AfterFunc(p.readTimeout, p.arrived.Broadcast)
		for p.rx.Len() == 0 && !p.closed && time.Now().Before(deadline) {
			p.arrived.Wait()
		}
		timer.Stop()
	}
	if p.closed {
		return 0, ErrPortClosed
	}
	n, _ := p.rx.Read(buf)
	return n, nil
}

func (p *VirtualPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	n := len(data)
	if p.writeLimit > 0 {
		n = min(n, p.writeLimit)
	}
	p.tx.Write(data[:n])
	return n, nil
}

func (p *VirtualPort) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPortClosed
	}
	p.drains++
	return nil
}

func (p *VirtualPort) ResetInputBuffer() error {
	p.mu.Lock()
	p.rx.Reset()
	p.mu.Unlock()
	return nil
}

func (p *VirtualPort) ResetOutputBuffer() error {
	p.mu.Lock()
	p.tx.Reset()
	p.mu.Unlock()
	return nil
}

func (*VirtualPort) SetDTR(_ bool) error {
	return nil
}

func (*VirtualPort) SetRTS(_ bool) error {
	return nil
}

func (*VirtualPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (p *VirtualPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.readTimeout = t
	p.mu.Unlock()
	return nil
}

func (p *VirtualPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.arrived.Broadcast()
	return nil
}

func (*VirtualPort) Break(_ time.Duration) error {
	return nil
}

var _ serial.Port = (*VirtualPort)(nil)
