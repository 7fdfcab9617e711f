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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualPort_ReadReturnsInjectedBytes(t *testing.T) {
	t.Parallel()

	p := NewVirtualPort()
	p.Inject([]byte{0x7E, 0x01})

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0x01}, buf[:n])
}

func TestVirtualPort_IdleReadTimesOut(t *testing.T) {
	t.Parallel()

	p := NewVirtualPort()
	require.NoError(t, p.SetReadTimeout(5*time.Millisecond))

	start := time.Now()
	n, err := p.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestVirtualPort_CloseUnblocksRead(t *testing.T) {
	t.Parallel()

	p := NewVirtualPort()
	require.NoError(t, p.SetReadTimeout(time.Minute))

	done := make(chan error, 1)
	go func() {
		_, err := p.Read(make([]byte, 4))
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrPortClosed)
	case <-time.After(time.Second):
		t.Fatal("read did not return after close")
	}
}

func TestVirtualPort_WriteLimit(t *testing.T) {
	t.Parallel()

	p := NewVirtualPort()
	p.SetWriteLimit(2)

	n, err := p.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{1, 2}, p.Written())

	require.NoError(t, p.Drain())
	assert.Equal(t, 1, p.Drains())
}
