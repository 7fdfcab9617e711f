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


package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	commlink "github.com/ZaparooProject/go-commlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type recordingSender struct {
	err  error
	sent []commlink.Message
	mu   sync.Mutex
}

func (s *recordingSender) Send(msg *commlink.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, *msg)
	return nil
}

func (s *recordingSender) Sent() []commlink.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]commlink.Message(nil), s.sent...)
}

type chanSource chan commlink.Message

func (c chanSource) TryRead() (commlink.Message, bool) {
	select {
	case msg := <-c:
		return msg, true
	default:
		return commlink.Message{}, false
	}
}

func (c chanSource) Read(ctx context.Context) (commlink.Message, error) {
	select {
	case msg := <-c:
		return msg, nil
	case <-ctx.Done():
		return commlink.Message{}, ctx.Err()
	}
}

type brokenPin struct {
	gpiotest.Pin
}

func (*brokenPin) Out(gpio.Level) error {
	return errors.New("pin stuck")
}

func newTestRelay(t *testing.T) (*Relay, *recordingSender, *gpiotest.Pin, *gpiotest.Pin) {
	t.Helper()
	sender := &recordingSender{}
	output := &gpiotest.Pin{N: "D8", L: gpio.High}
	led := &gpiotest.Pin{N: "LED"}
	r, err := New(sender, output, led)
	require.NoError(t, err)
	return r, sender, output, led
}

func rawOutput(value byte) commlink.Message {
	return *commlink.NewMessage(commlink.CommandRaw, 7, []byte{OutputSelector, value})
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("drives output low", func(t *testing.T) {
		t.Parallel()
		r, _, output, _ := newTestRelay(t)
		assert.Equal(t, gpio.Low, output.Read())
		assert.Equal(t, gpio.Low, r.Output())
	})

	t.Run("missing output", func(t *testing.T) {
		t.Parallel()
		_, err := New(&recordingSender{}, nil, nil)
		require.ErrorIs(t, err, ErrNoOutput)
	})

	t.Run("output failure", func(t *testing.T) {
		t.Parallel()
		_, err := New(&recordingSender{}, &brokenPin{Pin: gpiotest.Pin{N: "D8"}}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pin stuck")
	})
}

func TestHandlePingEchoes(t *testing.T) {
	t.Parallel()

	r, sender, _, led := newTestRelay(t)
	ping := commlink.NewMessage(commlink.CommandPing, 42, []byte("hello"))

	require.NoError(t, r.Handle(*ping))

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, *ping, sent[0])
	assert.Equal(t, gpio.High, led.Read())
}

func TestHandlePingSendError(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{err: commlink.ErrTransportWrite}
	r, err := New(sender, &gpiotest.Pin{N: "D8"}, nil)
	require.NoError(t, err)

	err = r.Handle(*commlink.NewMessage(commlink.CommandPing, 1, nil))
	require.ErrorIs(t, err, commlink.ErrTransportWrite)
}

func TestHandleRaw(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		initial gpio.Level
		want    gpio.Level
		payload []byte
	}{
		{name: "set high", payload: []byte{OutputSelector, 1}, initial: gpio.Low, want: gpio.High},
		{name: "set low", payload: []byte{OutputSelector, 0}, initial: gpio.High, want: gpio.Low},
		{name: "unknown value ignored", payload: []byte{OutputSelector, 5}, initial: gpio.High, want: gpio.High},
		{name: "other selector ignored", payload: []byte{0x01, 1}, initial: gpio.Low, want: gpio.Low},
		{name: "short payload ignored", payload: []byte{OutputSelector}, initial: gpio.Low, want: gpio.Low},
		{name: "empty payload ignored", payload: nil, initial: gpio.High, want: gpio.High},
		{name: "trailing bytes allowed", payload: []byte{OutputSelector, 1, 0xFF}, initial: gpio.Low, want: gpio.High},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, sender, output, _ := newTestRelay(t)
			if tt.initial == gpio.High {
				require.NoError(t, r.Handle(rawOutput(1)))
			}

			msg := commlink.NewMessage(commlink.CommandRaw, 3, tt.payload)
			require.NoError(t, r.Handle(*msg))

			assert.Equal(t, tt.want, output.Read())
			assert.Equal(t, tt.want, r.Output())
			assert.Empty(t, sender.Sent())
		})
	}
}

func TestHandleIgnoresOtherCommands(t *testing.T) {
	t.Parallel()

	r, sender, output, _ := newTestRelay(t)
	for _, cmd := range []commlink.Command{commlink.CommandAck, commlink.CommandNak, commlink.Command(0x99)} {
		require.NoError(t, r.Handle(*commlink.NewMessage(cmd, 1, []byte{OutputSelector, 1})))
	}
	assert.Empty(t, sender.Sent())
	assert.Equal(t, gpio.Low, output.Read())
}

func TestToggle(t *testing.T) {
	t.Parallel()

	r, _, output, _ := newTestRelay(t)
	require.NoError(t, r.Toggle())
	assert.Equal(t, gpio.High, output.Read())
	require.NoError(t, r.Toggle())
	assert.Equal(t, gpio.Low, output.Read())
}

func TestRun(t *testing.T) {
	t.Parallel()

	r, sender, output, led := newTestRelay(t)
	src := make(chanSource, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, src) }()

	src <- *commlink.NewMessage(commlink.CommandPing, 1, nil)
	src <- rawOutput(1)

	assert.Eventually(t, func() bool {
		return len(sender.Sent()) == 1 && output.Read() == gpio.High
	}, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		return led.Read() == gpio.Low
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunContinuesAfterHandlerError(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{err: commlink.ErrTransportWrite}
	output := &gpiotest.Pin{N: "D8"}
	r, err := New(sender, output, nil)
	require.NoError(t, err)

	src := make(chanSource, 2)
	src <- *commlink.NewMessage(commlink.CommandPing, 1, nil)
	src <- rawOutput(1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = r.Run(ctx, src)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, gpio.High, output.Read())
}

func TestWatchButton(t *testing.T) {
	t.Parallel()

	r, _, output, _ := newTestRelay(t)
	button := &gpiotest.Pin{N: "D2", EdgesChan: make(chan gpio.Level)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.WatchButton(ctx, button, time.Millisecond) }()

	press := func(level gpio.Level) {
		select {
		case button.EdgesChan <- level:
		case <-time.After(time.Second):
			t.Fatal("button edge not consumed")
		}
	}

	press(gpio.High)
	assert.Eventually(t, func() bool { return output.Read() == gpio.High }, time.Second, time.Millisecond)

	press(gpio.Low)
	press(gpio.High)
	assert.Eventually(t, func() bool { return output.Read() == gpio.Low }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WatchButton did not return after cancel")
	}
	assert.Equal(t, gpio.PullDown, button.P)
}

func TestWatchButtonReleaseDoesNotToggle(t *testing.T) {
	t.Parallel()

	r, _, output, _ := newTestRelay(t)
	button := &gpiotest.Pin{N: "D2", EdgesChan: make(chan gpio.Level)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.WatchButton(ctx, button, time.Millisecond) }()

	button.EdgesChan <- gpio.Low
	button.EdgesChan <- gpio.Low
	assert.Never(t, func() bool { return output.Read() == gpio.High }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestWatchButtonNeedsEdges(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newTestRelay(t)
	err := r.WatchButton(context.Background(), &gpiotest.Pin{N: "D2"}, time.Millisecond)
	require.Error(t, err)
}
