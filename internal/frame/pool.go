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

import "sync"

// BufferPool manages reusable byte slices in a few size classes.
// Deframing and serial reads borrow scratch space from it on every call.
type BufferPool struct {
	smallPool  sync.Pool
	mediumPool sync.Pool
	largePool  sync.Pool
}

// Size thresholds for buffer categories
const (
	SmallBufferSize  = 16   // Short reads and empty frames
	MediumBufferSize = 256  // One serial chunk
	LargeBufferSize  = 1024 // A full receive buffer
)

var defaultPool = NewBufferPool()

func newClass(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

// NewBufferPool creates a new buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		smallPool:  newClass(SmallBufferSize),
		mediumPool: newClass(MediumBufferSize),
		largePool:  newClass(LargeBufferSize),
	}
}

func (*BufferPool) take(pool *sync.Pool, size int) []byte {
	bufPtr, ok := pool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// GetBuffer returns a buffer of exactly size bytes. Sizes above
// LargeBufferSize are allocated directly and never pooled.
// Return the buffer with PutBuffer when done.
func (p *BufferPool) GetBuffer(size int) []byte {
	switch {
	case size < 0:
		return nil
	case size <= SmallBufferSize:
		return p.take(&p.smallPool, size)
	case size <= MediumBufferSize:
		return p.take(&p.mediumPool, size)
	case size <= LargeBufferSize:
		return p.take(&p.largePool, size)
	default:
		return make([]byte, size)
	}
}

// PutBuffer zeroes buf and returns it to the pool it came from.
// The buffer must not be used afterwards.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	clear(full)

	switch cap(buf) {
	case SmallBufferSize:
		p.smallPool.Put(&full)
	case MediumBufferSize:
		p.mediumPool.Put(&full)
	case LargeBufferSize:
		p.largePool.Put(&full)
	default:
		// directly allocated, left to the GC
	}
}

// GetBuffer acquires a buffer from the default pool
func GetBuffer(size int) []byte {
	return defaultPool.GetBuffer(size)
}

// PutBuffer returns a buffer to the default pool
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}
