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


// Package uart provides a commlink transport over a serial port.
package uart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	commlink "github.com/ZaparooProject/go-commlink"
	"github.com/ZaparooProject/go-commlink/internal/frame"
	"github.com/ZaparooProject/go-commlink/internal/syncutil"
	"go.bug.st/serial"
)

// Defaults for a USB-UART link to the device
const (
	DefaultBaudRate    = 115200
	DefaultIdleTimeout = 5 * time.Millisecond
	DefaultChunkSize   = frame.MediumBufferSize
)

// Config holds serial settings for a Transport.
type Config struct {
	// BaudRate of the line, 8N1 framing is fixed.
	BaudRate int
	// IdleTimeout is the silence after which a chunk is considered complete.
	IdleTimeout time.Duration
	// ChunkSize caps the bytes returned by one ReadChunk.
	ChunkSize int
}

// DefaultConfig returns 115200 8N1 with a 5ms idle timeout.
func DefaultConfig() Config {
	return Config{
		BaudRate:    DefaultBaudRate,
		IdleTimeout: DefaultIdleTimeout,
		ChunkSize:   DefaultChunkSize,
	}
}

// Option adjusts a Config.
type Option func(*Config)

// WithBaudRate sets the line speed.
func WithBaudRate(baud int) Option {
	return func(c *Config) { c.BaudRate = baud }
}

// WithIdleTimeout sets the quiet period that ends a chunk.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithChunkSize sets the largest chunk ReadChunk returns.
func WithChunkSize(n int) Option {
	return func(c *Config) { c.ChunkSize = n }
}

func (c *Config) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func buildConfig(opts []Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.ChunkSize <= 0 {
		return config, fmt.Errorf("chunk size %d: %w", config.ChunkSize, commlink.ErrInvalidCapacity)
	}
	if config.IdleTimeout <= 0 {
		return config, fmt.Errorf("idle timeout %v: %w", config.IdleTimeout, commlink.ErrInvalidCapacity)
	}
	return config, nil
}

// Transport implements commlink.Transport over a serial port. A read
// returns once the line has been idle for IdleTimeout after the first byte.
type Transport struct {
	port     serial.Port
	portName string
	config   Config
	writeMu  syncutil.Mutex
	closed   atomic.Bool
}

// New opens portName.
func New(portName string, opts ...Option) (*Transport, error) {
	config, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(portName, config.mode())
	if err != nil {
		return nil, openError(portName, err)
	}
	return newTransport(port, portName, config)
}

// NewWithPort wraps an already open port and applies the configured mode.
func NewWithPort(port serial.Port, portName string, opts ...Option) (*Transport, error) {
	config, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := port.SetMode(config.mode()); err != nil {
		return nil, fmt.Errorf("UART set mode failed: %w", err)
	}
	return newTransport(port, portName, config)
}

func newTransport(port serial.Port, portName string, config Config) (*Transport, error) {
	if err := port.SetReadTimeout(config.IdleTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	commlink.Debugf("uart: opened %s at %d baud, idle %v", portName, config.BaudRate, config.IdleTimeout)
	return &Transport{
		port:     port,
		portName: portName,
		config:   config,
	}, nil
}

func openError(portName string, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
		return commlink.NewTransportError("open", portName,
			fmt.Errorf("%w: %w", commlink.ErrDeviceNotFound, err), commlink.ErrorTypePermanent)
	}
	return commlink.NewTransportError("open", portName, err, commlink.ErrorTypeTransient)
}

// ReadChunk waits for the first byte, then keeps reading until a read
// times out empty or the chunk is full.
func (t *Transport) ReadChunk(ctx context.Context) ([]byte, error) {
	buf := frame.GetBuffer(t.config.ChunkSize)
	defer frame.PutBuffer(buf)

	n := 0
	for n == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := t.port.Read(buf)
		if err != nil {
			return nil, t.readError(err)
		}
		n = m
	}

	for n < len(buf) {
		m, err := t.port.Read(buf[n:])
		if err != nil || m == 0 {
			// a read error here resurfaces on the next call
			break
		}
		n += m
	}
	return bytes.Clone(buf[:n]), nil
}

func (t *Transport) readError(err error) error {
	if t.closed.Load() {
		return commlink.NewTransportError("read", t.portName, commlink.ErrTransportClosed, commlink.ErrorTypePermanent)
	}
	errType := commlink.ErrorTypeTransient
	var portErr *serial.PortError
	if commlink.IsFatal(err) || (errors.As(err, &portErr) && portErr.Code() == serial.PortClosed) {
		errType = commlink.ErrorTypePermanent
	}
	return commlink.NewTransportError("read", t.portName, fmt.Errorf("%w: %w", commlink.ErrTransportRead, err), errType)
}

// Write sends p to the port. It may write fewer bytes than len(p).
func (t *Transport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.closed.Load() {
		return 0, commlink.ErrTransportClosed
	}
	n, err := t.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("UART write failed: %w", err)
	}
	return n, nil
}

// Flush waits until all written bytes have been transmitted.
func (t *Transport) Flush() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.drainWithRetry()
}

// Close closes the port. A pending ReadChunk returns ErrTransportClosed.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// PortName returns the device path the transport was opened with.
func (t *Transport) PortName() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() commlink.TransportType {
	return commlink.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry retries Drain when a signal interrupts tcdrain.
func (t *Transport) drainWithRetry() error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}

		return fmt.Errorf("UART drain failed: %w", err)
	}

	return fmt.Errorf("UART drain failed after %d retries", maxRetries)
}

var _ commlink.Transport = (*Transport)(nil)
