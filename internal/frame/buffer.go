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

package frame

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned when a buffer is configured with no room.
var ErrInvalidCapacity = errors.New("capacity must be positive")

// Buffer accumulates received bytes until they resolve into frames.
//
// A Buffer is not safe for concurrent use; it belongs to whichever goroutine
// assembles frames.
type Buffer struct {
	data     []byte
	capacity int
}

// NewBuffer creates an empty receive buffer holding at most capacity bytes.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("receive buffer %d: %w", capacity, ErrInvalidCapacity)
	}
	return &Buffer{
		data:     make([]byte, 0, capacity),
		capacity: capacity,
	}, nil
}

// Append adds chunk to the buffer. If the result would exceed the capacity
// the buffer is emptied instead, chunk included, and overflow is true.
func (b *Buffer) Append(chunk []byte) (overflow bool) {
	if len(b.data)+len(chunk) > b.capacity {
		b.data = b.data[:0]
		return true
	}
	b.data = append(b.data, chunk...)
	return false
}

// Next attempts to deframe one frame from the front of the buffer. Bytes
// consumed by a completed frame are removed whether or not its FCS matched.
func (b *Buffer) Next() ([]byte, Status) {
	payload, advance, status := Deframe(b.data)
	if advance > 0 {
		b.data = b.data[:copy(b.data, b.data[advance:])]
	}
	return payload, status
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}
