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
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/ZaparooProject/go-commlink/internal/frame"
	virt "github.com/ZaparooProject/go-commlink/internal/testing"
	"github.com/stretchr/testify/require"
)

// mockTransport reads from source and records writes.
type mockTransport struct {
	source   ByteSource
	writeErr error
	flushErr error
	written  bytes.Buffer
	flushes  int
	mu       sync.Mutex
}

func newMockTransport(source ByteSource) *mockTransport {
	return &mockTransport{source: source}
}

func newJitteryTransport(config virt.JitterConfig) (*mockTransport, *virt.JitterySource) {
	src := virt.NewJitterySource(config)
	return newMockTransport(src), src
}

func (m *mockTransport) ReadChunk(ctx context.Context) ([]byte, error) {
	return m.source.ReadChunk(ctx)
}

func (m *mockTransport) Close() error {
	if c, ok := m.source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (m *mockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.written.Write(p)
}

func (m *mockTransport) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return m.flushErr
}

func (*mockTransport) Type() TransportType {
	return TransportMock
}

func (m *mockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.written.Bytes())
}

var _ Transport = (*mockTransport)(nil)

// scriptedSource returns fixed chunks in order, then io.EOF.
type scriptedSource struct {
	chunks [][]byte
	mu     sync.Mutex
}

func (s *scriptedSource) ReadChunk(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

// framedMessage returns the on-wire bytes for msg.
func framedMessage(t *testing.T, msg *Message) []byte {
	t.Helper()
	data, err := msg.Encode()
	require.NoError(t, err)
	return frame.Encode(data)
}
