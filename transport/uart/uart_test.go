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


package uart

import (
	"bytes"
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	commlink "github.com/ZaparooProject/go-commlink"
	"github.com/ZaparooProject/go-commlink/internal/frame"
	virt "github.com/ZaparooProject/go-commlink/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func newVirtualTransport(t *testing.T, opts ...Option) (*Transport, *virt.VirtualPort) {
	t.Helper()
	port := virt.NewVirtualPort()
	tr, err := NewWithPort(port, "virtual0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, port
}

func TestNewWithPort_AppliesConfig(t *testing.T) {
	t.Parallel()

	tr, port := newVirtualTransport(t, WithBaudRate(57600), WithIdleTimeout(3*time.Millisecond))

	mode := port.Mode()
	require.NotNil(t, mode)
	assert.Equal(t, 57600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, 3*time.Millisecond, port.ReadTimeout())
	assert.Equal(t, "virtual0", tr.PortName())
	assert.Equal(t, commlink.TransportUART, tr.Type())
}

func TestNewWithPort_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{name: "zero chunk", opt: WithChunkSize(0)},
		{name: "zero idle", opt: WithIdleTimeout(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewWithPort(virt.NewVirtualPort(), "virtual0", tt.opt)
			require.ErrorIs(t, err, commlink.ErrInvalidCapacity)
		})
	}
}

func TestReadChunk_ReturnsBurst(t *testing.T) {
	t.Parallel()

	tr, port := newVirtualTransport(t)
	port.Inject([]byte{0x7E, 0x01, 0x02})
	port.Inject([]byte{0x03, 0x7E})

	chunk, err := tr.ReadChunk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0x01, 0x02, 0x03, 0x7E}, chunk)
}

func TestReadChunk_SplitsAtChunkSize(t *testing.T) {
	t.Parallel()

	tr, port := newVirtualTransport(t, WithChunkSize(64))
	data := bytes.Repeat([]byte{0xAB}, 150)
	port.Inject(data)

	var got []byte
	for _, want := range []int{64, 64, 22} {
		chunk, err := tr.ReadChunk(context.Background())
		require.NoError(t, err)
		assert.Len(t, chunk, want)
		got = append(got, chunk...)
	}
	assert.Equal(t, data, got)
}

func TestReadChunk_WaitsForFirstByte(t *testing.T) {
	t.Parallel()

	tr, port := newVirtualTransport(t)
	go func() {
		time.Sleep(20 * time.Millisecond)
		port.Inject([]byte("late"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	chunk, err := tr.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), chunk)
}

func TestReadChunk_Cancelled(t *testing.T) {
	t.Parallel()

	tr, _ := newVirtualTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	_, err := tr.ReadChunk(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadChunk_AfterClose(t *testing.T) {
	t.Parallel()

	tr, _ := newVirtualTransport(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.ReadChunk(context.Background())
	require.ErrorIs(t, err, commlink.ErrTransportClosed)
	assert.True(t, commlink.IsFatal(err))

	_, err = tr.Write([]byte{1})
	require.ErrorIs(t, err, commlink.ErrTransportClosed)
}

func TestWriteAndFlush(t *testing.T) {
	t.Parallel()

	tr, port := newVirtualTransport(t)
	port.SetWriteLimit(4)

	require.NoError(t, commlink.WriteFrame(tr, []byte("hello, device")))
	assert.Equal(t, frame.Encode([]byte("hello, device")), port.Written())
	assert.Equal(t, 1, port.Drains())
}

func TestWrite_ErrorIsWrapped(t *testing.T) {
	t.Parallel()

	errUnplugged := syscall.ENXIO
	tr, port := newVirtualTransport(t)
	port.SetWriteError(errUnplugged)

	err := commlink.WriteFrame(tr, []byte{1})
	require.ErrorIs(t, err, errUnplugged)
	assert.True(t, commlink.IsFatal(err))
}

// eintrPort fails Drain with EINTR a fixed number of times.
type eintrPort struct {
	*virt.VirtualPort
	failures int
}

func (p *eintrPort) Drain() error {
	if p.failures > 0 {
		p.failures--
		return errors.New("tcdrain: interrupted system call")
	}
	return p.VirtualPort.Drain()
}

func TestFlush_RetriesInterruptedDrain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		failures int
		wantErr  bool
	}{
		{name: "no interruption", failures: 0},
		{name: "two interruptions", failures: 2},
		{name: "persistent interruption", failures: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			port := &eintrPort{VirtualPort: virt.NewVirtualPort(), failures: tt.failures}
			tr, err := NewWithPort(port, "virtual0")
			require.NoError(t, err)

			err = tr.Flush()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "interrupted system call")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, port.Drains())
		})
	}
}

func TestIsInterruptedSystemCall(t *testing.T) {
	t.Parallel()

	assert.False(t, isInterruptedSystemCall(nil))
	assert.True(t, isInterruptedSystemCall(errors.New("read: EINTR")))
	assert.True(t, isInterruptedSystemCall(errors.New("Interrupted System Call")))
	assert.False(t, isInterruptedSystemCall(errors.New("device not configured")))
}

func TestLinkOverVirtualPort(t *testing.T) {
	t.Parallel()

	tr, port := newVirtualTransport(t)
	link, err := commlink.New(tr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- link.Run(ctx) }()

	msg := commlink.NewMessage(commlink.CommandPing, 1, []byte("ping"))
	data, err := msg.Encode()
	require.NoError(t, err)
	framed := frame.Encode(data)
	port.Inject(framed[:5])
	time.Sleep(15 * time.Millisecond)
	port.Inject(framed[5:])

	readCtx, readCancel := context.WithTimeout(context.Background(), time.Second)
	defer readCancel()
	got, err := link.Read(readCtx)
	require.NoError(t, err)
	assert.Equal(t, *msg, got)

	require.NoError(t, link.Send(&got))
	assert.Equal(t, framed, port.Written())

	cancel()
	require.ErrorIs(t, <-runDone, context.Canceled)
}
