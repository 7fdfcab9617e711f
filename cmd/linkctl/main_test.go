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


package main

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"testing"
	"time"

	commlink "github.com/ZaparooProject/go-commlink"
	"github.com/ZaparooProject/go-commlink/internal/relay"
	"github.com/ZaparooProject/go-commlink/transport/uart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// newEchoPair returns a host link whose peer runs the relay service, so
// pings come back. Both links are running; cleanup stops them.
func newEchoPair(t *testing.T, echo bool) *commlink.Link {
	t.Helper()

	hostSide, deviceSide := net.Pipe()
	hostTransport, err := commlink.NewStreamTransport(hostSide, 64)
	require.NoError(t, err)
	deviceTransport, err := commlink.NewStreamTransport(deviceSide, 64)
	require.NoError(t, err)

	hostLink, err := commlink.New(hostTransport)
	require.NoError(t, err)
	deviceLink, err := commlink.New(deviceTransport)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 3)
	go func() { _ = hostLink.Run(ctx); done <- struct{}{} }()
	go func() { _ = deviceLink.Run(ctx); done <- struct{}{} }()

	if echo {
		r, err := relay.New(deviceLink, &gpiotest.Pin{N: "D8"}, nil)
		require.NoError(t, err)
		go func() { _ = r.Run(ctx, deviceLink); done <- struct{}{} }()
	} else {
		done <- struct{}{}
	}

	t.Cleanup(func() {
		cancel()
		_ = hostLink.Close()
		_ = deviceLink.Close()
		for range 3 {
			<-done
		}
	})
	return hostLink
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"/dev/ttyS0", "COM3"}, splitList(" /dev/ttyS0, ,COM3 "))
}

func TestDescribePort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/dev/ttyS0", describePort(uart.PortInfo{Path: "/dev/ttyS0"}))
	assert.Equal(t, "/dev/ttyACM0  [2E8A:000A] Pico (E661)", describePort(uart.PortInfo{
		Path:         "/dev/ttyACM0",
		VIDPID:       "2E8A:000A",
		Product:      "Pico",
		SerialNumber: "E661",
		IsUSB:        true,
	}))
}

func TestParseRawPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "relay on", input: "d801", want: []byte{0xD8, 0x01}},
		{name: "spaces allowed", input: "D8 00", want: []byte{0xD8, 0x00}},
		{name: "odd length", input: "d80", wantErr: true},
		{name: "not hex", input: "zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseRawPayload(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRawPayloadTooLarge(t *testing.T) {
	t.Parallel()

	input := make([]byte, 0, 2*(commlink.MaxPayload+1))
	for range commlink.MaxPayload + 1 {
		input = append(input, 'a', 'b')
	}
	_, err := parseRawPayload(string(input))
	require.ErrorIs(t, err, commlink.ErrPayloadTooLarge)
}

func TestVerifyEcho(t *testing.T) {
	t.Parallel()

	sent := commlink.NewMessage(commlink.CommandPing, 5, []byte{1, 2, 3})

	same := *sent
	require.NoError(t, verifyEcho(sent, &same))

	otherID := *sent
	otherID.ID = 6
	require.ErrorIs(t, verifyEcho(sent, &otherID), ErrEchoMismatch)

	otherPayload := *sent
	otherPayload.Payload = []byte{1, 2, 4}
	require.ErrorIs(t, verifyEcho(sent, &otherPayload), ErrEchoMismatch)

	otherFragment := *sent
	otherFragment.Fragment = 1
	require.ErrorIs(t, verifyEcho(sent, &otherFragment), ErrEchoMismatch)
}

func TestPingSizeBytes(t *testing.T) {
	t.Parallel()

	for range 20 {
		n := pingSizeTiny.bytes()
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 4)
	}
	assert.Equal(t, commlink.MaxPayload/2, pingSizeMedium.bytes())
	assert.Equal(t, commlink.MaxPayload, pingSizeFull.bytes())
	assert.Equal(t, "full", pingSizeFull.String())
}

func TestRunStressModeAgainstEchoPeer(t *testing.T) {
	t.Parallel()

	link := newEchoPair(t, true)
	dir := t.TempDir()
	cfg := &config{stress: 3, timeout: 2 * time.Second, reportDir: dir, port: "pipe"}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := runStressMode(ctx, link, cfg)
	require.NoError(t, err)
	assert.Equal(t, 9, result.Passed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.CrashFile)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunStressModeWritesCrashReport(t *testing.T) {
	t.Parallel()

	link := newEchoPair(t, false)
	dir := t.TempDir()
	cfg := &config{stress: 1, timeout: 20 * time.Millisecond, reportDir: dir, port: "pipe"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := runStressMode(ctx, link, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Failed)
	require.NotEmpty(t, result.CrashFile)

	data, err := os.ReadFile(result.CrashFile)
	require.NoError(t, err)

	var report CrashReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "ping_tiny", report.Operation)
	assert.Equal(t, "pipe", report.Port)
	assert.Equal(t, uint32(1), report.MessageID)
	assert.Contains(t, report.Error, "no reply")
	assert.NotEmpty(t, report.ExpectedHex)
	require.Len(t, report.OperationLog, 2)
	assert.True(t, report.OperationLog[0].Success)
	assert.False(t, report.OperationLog[1].Success)
}

func TestRunPingMode(t *testing.T) {
	t.Parallel()

	link := newEchoPair(t, true)
	cfg := &config{pings: 3, timeout: 2 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runPingMode(ctx, link, cfg))
}

func TestRunPingModeReportsFailures(t *testing.T) {
	t.Parallel()

	link := newEchoPair(t, false)
	cfg := &config{pings: 2, timeout: 10 * time.Millisecond}

	err := runPingMode(context.Background(), link, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 pings failed")
}

func TestRunRawModeRejectsBadPayload(t *testing.T) {
	t.Parallel()

	link := newEchoPair(t, false)
	require.Error(t, runRawMode(link, &config{raw: "xyz"}))
	require.NoError(t, runRawMode(link, &config{raw: "d801"}))
}
