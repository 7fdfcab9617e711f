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
	"fmt"
	"io"
)

// ByteSource yields received bytes in chunks with no alignment to frame
// boundaries. ReadChunk blocks until at least one byte has arrived and the
// line has gone idle or the chunk is full. An empty chunk with a nil error
// is allowed and carries no data.
type ByteSource interface {
	ReadChunk(ctx context.Context) ([]byte, error)
}

// ByteSink accepts bytes for transmission. Flush blocks until everything
// written has left the device.
type ByteSink interface {
	io.Writer
	Flush() error
}

// Transport is a full-duplex byte link.
type Transport interface {
	ByteSource
	ByteSink
	io.Closer

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportStream represents a generic io.ReadWriteCloser.
	TransportStream TransportType = "stream"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// StreamTransport adapts an io.ReadWriteCloser, such as a TCP connection
// or a pipe, where each Read already returns whatever bytes are available.
type StreamTransport struct {
	rw        io.ReadWriteCloser
	chunkSize int
}

// NewStreamTransport wraps rw. Each ReadChunk performs one Read of at most
// chunkSize bytes.
func NewStreamTransport(rw io.ReadWriteCloser, chunkSize int) (*StreamTransport, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size %d: %w", chunkSize, ErrInvalidCapacity)
	}
	return &StreamTransport{rw: rw, chunkSize: chunkSize}, nil
}

// ReadChunk reads once from the stream. ctx is checked before the read
// only; closing the transport unblocks a pending read.
func (s *StreamTransport) ReadChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.chunkSize)
	n, err := s.rw.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		return nil, fmt.Errorf("stream read: %w", err)
	}
	return nil, nil
}

func (s *StreamTransport) Write(p []byte) (int, error) {
	n, err := s.rw.Write(p)
	if err != nil {
		return n, fmt.Errorf("stream write: %w", err)
	}
	return n, nil
}

// Flush flushes the underlying stream if it buffers writes.
func (s *StreamTransport) Flush() error {
	if f, ok := s.rw.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("stream flush: %w", err)
		}
	}
	return nil
}

func (s *StreamTransport) Close() error {
	if err := s.rw.Close(); err != nil {
		return fmt.Errorf("stream close: %w", err)
	}
	return nil
}

// Type returns TransportStream.
func (*StreamTransport) Type() TransportType {
	return TransportStream
}
