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
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	commlink "github.com/ZaparooProject/go-commlink"
)

// ErrEchoMismatch is returned when a ping comes back with different content.
var ErrEchoMismatch = errors.New("echo mismatch")

// pingSize selects the payload size of a stress round.
type pingSize int

const (
	pingSizeTiny   pingSize = iota // 1-4 bytes
	pingSizeMedium                 // half of MaxPayload
	pingSizeFull                   // MaxPayload
)

func (s pingSize) String() string {
	switch s {
	case pingSizeTiny:
		return "tiny"
	case pingSizeMedium:
		return "medium"
	case pingSizeFull:
		return "full"
	default:
		return "unknown"
	}
}

func (s pingSize) bytes() int {
	switch s {
	case pingSizeTiny:
		return randomInt(1, 4)
	case pingSizeMedium:
		return commlink.MaxPayload / 2
	default:
		return commlink.MaxPayload
	}
}

// StressResult summarizes a stress run.
type StressResult struct {
	CrashFile string
	Passed    int
	Failed    int
	Duration  time.Duration
	Slowest   time.Duration
}

// CrashReport contains everything needed to debug a failed round.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Operation    string         `json:"operation"`
	Error        string         `json:"error"`
	ExpectedHex  string         `json:"expected_hex,omitempty"`
	ActualHex    string         `json:"actual_hex,omitempty"`
	Port         string         `json:"port"`
	OperationLog []LogEntry     `json:"operation_log"`
	Stats        commlink.Stats `json:"stats"`
	MessageID    uint32         `json:"message_id"`
}

// LogEntry records one operation of a stress run.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	DataHex   string    `json:"data_hex,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

type stressRun struct {
	link    *commlink.Link
	port    string
	dir     string
	log     []LogEntry
	timeout time.Duration
	nextID  uint32
}

func printStressBanner(rounds int) {
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Println("                           Link Ping Stress Test")
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Printf("Rounds: %d (tiny, medium, full pings per round)\n", rounds)
}

func runStressMode(ctx context.Context, link *commlink.Link, cfg *config) (*StressResult, error) {
	printStressBanner(cfg.stress)

	run := &stressRun{
		link:    link,
		port:    cfg.port,
		dir:     cfg.reportDir,
		timeout: cfg.timeout,
		log:     make([]LogEntry, 0, 32),
		nextID:  1,
	}
	result := &StressResult{}
	started := time.Now()

	sizes := []pingSize{pingSizeTiny, pingSizeMedium, pingSizeFull}
	for round := range cfg.stress {
		for _, size := range sizes {
			rtt, err := run.ping(ctx, size)
			if err == nil {
				result.Passed++
				result.Slowest = max(result.Slowest, rtt)
				continue
			}
			if errors.Is(err, context.Canceled) {
				return result, err
			}
			result.Failed++
			_, _ = fmt.Printf("\n  [!] FAILURE in round %d (%s): %v\n", round+1, size, err)
			if result.CrashFile == "" {
				result.CrashFile = run.report(size, err)
			}
		}
	}

	result.Duration = time.Since(started)
	printStressSummary(result, link.Stats())
	return result, nil
}

func (r *stressRun) record(op string, data []byte, err error) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Operation: op,
		Success:   err == nil,
	}
	if len(data) > 0 {
		entry.DataHex = hex.EncodeToString(data)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.log = append(r.log, entry)
}

// ping sends one ping of the given size and waits for its echo.
func (r *stressRun) ping(ctx context.Context, size pingSize) (time.Duration, error) {
	payload := make([]byte, size.bytes())
	_, _ = rand.Read(payload)

	id := r.nextID
	r.nextID++
	msg := commlink.NewMessage(commlink.CommandPing, id, payload)

	sent := time.Now()
	err := r.link.Send(msg)
	r.record("send_"+size.String(), payload, err)
	if err != nil {
		return 0, fmt.Errorf("send ping %d: %w", id, err)
	}

	reply, err := r.awaitReply(ctx, id)
	if err != nil {
		r.record("await_"+size.String(), nil, err)
		return 0, err
	}
	rtt := time.Since(sent)

	err = verifyEcho(msg, &reply)
	r.record("verify_"+size.String(), reply.Payload, err)
	if err != nil {
		return 0, err
	}
	commlink.Debugf("stress: ping %d (%d bytes) in %s", id, len(payload), rtt)
	return rtt, nil
}

// awaitReply waits for the ping reply carrying id, discarding stale ones.
func (r *stressRun) awaitReply(ctx context.Context, id uint32) (commlink.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for {
		reply, err := r.link.Read(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return commlink.Message{}, fmt.Errorf("no reply to ping %d within %s: %w",
					id, r.timeout, commlink.ErrTransportTimeout)
			}
			return commlink.Message{}, err
		}
		if reply.Command == commlink.CommandPing && reply.ID == id {
			return reply, nil
		}
		commlink.Debugf("stress: discarding %s while waiting for ping %d", &reply, id)
	}
}

func verifyEcho(expected, actual *commlink.Message) error {
	if expected.ID != actual.ID {
		return fmt.Errorf("%w: id %d, got %d", ErrEchoMismatch, expected.ID, actual.ID)
	}
	if expected.Fragments != actual.Fragments || expected.Fragment != actual.Fragment {
		return fmt.Errorf("%w: fragment %d/%d, got %d/%d", ErrEchoMismatch,
			expected.Fragment, expected.Fragments, actual.Fragment, actual.Fragments)
	}
	if !bytes.Equal(expected.Payload, actual.Payload) {
		return fmt.Errorf("%w: payload differs (%d vs %d bytes)", ErrEchoMismatch,
			len(expected.Payload), len(actual.Payload))
	}
	return nil
}

func (r *stressRun) report(size pingSize, failure error) string {
	report := &CrashReport{
		Timestamp:    time.Now(),
		Operation:    "ping_" + size.String(),
		Error:        failure.Error(),
		Port:         r.port,
		MessageID:    r.nextID - 1,
		OperationLog: r.log,
		Stats:        r.link.Stats(),
	}
	if n := len(r.log); n > 0 {
		for i := n - 1; i >= 0; i-- {
			if strings.HasPrefix(r.log[i].Operation, "send_") {
				report.ExpectedHex = formatHexString(mustDecodeHex(r.log[i].DataHex))
				break
			}
		}
		if last := r.log[n-1]; strings.HasPrefix(last.Operation, "verify_") {
			report.ActualHex = formatHexString(mustDecodeHex(last.DataHex))
		}
	}

	filename, err := writeCrashReport(r.dir, report)
	if err != nil {
		_, _ = fmt.Printf("  [!] Failed to write crash report: %v\n", err)
		return ""
	}
	_, _ = fmt.Printf("  Creating crash report... %s\n", filename)
	return filename
}

func writeCrashReport(dir string, report *CrashReport) (string, error) {
	timestamp := report.Timestamp.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("stress_crash_%d_%s.json", report.MessageID, timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crash report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}
	return filename, nil
}

func mustDecodeHex(s string) []byte {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return data
}

func formatHexString(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// randomInt returns a random int in [low, high] inclusive
func randomInt(low, high int) int {
	if low >= high {
		return low
	}
	var b [4]byte
	_, _ = rand.Read(b[:])
	n := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	return low + (n % (high - low + 1))
}

func printStressSummary(result *StressResult, stats commlink.Stats) {
	status := "PASS"
	if result.Failed > 0 {
		status = "FAIL"
	}

	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Println("                              STRESS TEST SUMMARY")
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Printf("[%s] %d passed, %d failed in %s (slowest %s)\n",
		status, result.Passed, result.Failed,
		result.Duration.Round(time.Millisecond), result.Slowest.Round(time.Microsecond))
	_, _ = fmt.Printf("Frames: %d  Checksum errors: %d  Malformed: %d  Overflows: %d\n",
		stats.Assembler.Frames, stats.Assembler.ChecksumErrors,
		stats.Assembler.Malformed, stats.Assembler.Overflows)
	if result.CrashFile != "" {
		_, _ = fmt.Printf("Crash report: %s\n", result.CrashFile)
	}
	_, _ = fmt.Println("================================================================================")
}
