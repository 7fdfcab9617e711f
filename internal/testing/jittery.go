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


// Package testing provides byte sources and serial ports that behave like
// real USB-UART links for use in tests.
package testing

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"time"
)

// JitterConfig configures how JitterySource fragments and delays data.
type JitterConfig struct {
	MaxLatency time.Duration
	MinChunk   int
	MaxChunk   int
	Seed       uint64
}

// DefaultJitterConfig returns a configuration that fragments aggressively
// without slowing tests down.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency: time.Millisecond,
		MinChunk:   1,
		MaxChunk:   16,
	}
}

// JitterySource hands out queued bytes in randomly sized chunks, the way a
// USB-UART bridge returns whatever arrived before its idle timer fired.
// It satisfies the ReadChunk half of a link transport.
type JitterySource struct {
	rng     *rand.Rand
	notify  chan struct{}
	pending []byte
	errs    []error
	config  JitterConfig
	mu      sync.Mutex
	closed  bool
}

// NewJitterySource creates an empty source. Use Feed to queue bytes.
func NewJitterySource(config JitterConfig) *JitterySource {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	if config.MinChunk < 1 {
		config.MinChunk = 1
	}
	if config.MaxChunk < config.MinChunk {
		config.MaxChunk = config.MinChunk
	}

	return &JitterySource{
		rng:    rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
		notify: make(chan struct{}, 1),
		config: config,
	}
}

// Feed queues data for subsequent reads.
func (j *JitterySource) Feed(data []byte) {
	j.mu.Lock()
	j.pending = append(j.pending, data...)
	j.mu.Unlock()
	j.wake()
}

// FailNext makes the next ReadChunk return err before any queued data.
func (j *JitterySource) FailNext(err error) {
	j.mu.Lock()
	j.errs = append(j.errs, err)
	j.mu.Unlock()
	j.wake()
}

// Close makes ReadChunk return io.EOF once the queued bytes are drained.
func (j *JitterySource) Close() error {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	j.wake()
	return nil
}

// Pending returns the number of bytes not yet handed out.
func (j *JitterySource) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

func (j *JitterySource) wake() {
	select {
	case j.notify <- struct{}{}:
	default:
	}
}

// ReadChunk blocks until data, an injected error, Close or ctx cancellation.
func (j *JitterySource) ReadChunk(ctx context.Context) ([]byte, error) {
	for {
		chunk, err, ok := j.take()
		if ok {
			j.delay()
			return chunk, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-j.notify:
		}
	}
}

func (j *JitterySource) take() (chunk []byte, err error, ok bool) { //nolint:revive // internal helper
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.errs) > 0 {
		err = j.errs[0]
		j.errs = j.errs[1:]
		return nil, err, true
	}
	if len(j.pending) == 0 {
		if j.closed {
			return nil, io.EOF, true
		}
		return nil, nil, false
	}

	n := j.config.MinChunk
	if span := j.config.MaxChunk - j.config.MinChunk; span > 0 {
		n += j.rng.IntN(span + 1)
	}
	n = min(n, len(j.pending))

	chunk = make([]byte, n)
	copy(chunk, j.pending[:n])
	j.pending = j.pending[n:]
	return chunk, nil, true
}

func (j *JitterySource) delay() {
	if j.config.MaxLatency <= 0 {
		return
	}
	j.mu.Lock()
	d := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1))
	j.mu.Unlock()
	time.Sleep(d)
}

// ErrSplitOutOfRange is returned by SplitAt for split points outside data.
var ErrSplitOutOfRange = errors.New("split point out of range")

// SplitAt cuts data at the given ascending offsets. SplitAt(d, 2, 5)
// returns d[:2], d[2:5], d[5:].
func SplitAt(data []byte, points ...int) ([][]byte, error) {
	chunks := make([][]byte, 0, len(points)+1)
	prev := 0
	for _, p := range points {
		if p < prev || p > len(data) {
			return nil, ErrSplitOutOfRange
		}
		chunks = append(chunks, data[prev:p])
		prev = p
	}
	return append(chunks, data[prev:]), nil
}
