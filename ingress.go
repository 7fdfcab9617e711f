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
	"sync/atomic"
)

// IngressStats is a snapshot of ingress counters.
type IngressStats struct {
	Chunks        uint64
	Bytes         uint64
	ReadErrors    uint64
	DroppedChunks uint64
}

// Ingress owns the receive side of a transport. It moves every non-empty
// chunk onto the ingress queue, dropping chunks when the queue is full.
type Ingress struct {
	source     ByteSource
	queue      *Queue[[]byte]
	backoff    *RetryConfig
	chunks     atomic.Uint64
	bytes      atomic.Uint64
	readErrors atomic.Uint64
}

// NewIngress creates an ingress task. A nil backoff uses ReadBackoffConfig.
func NewIngress(source ByteSource, queue *Queue[[]byte], backoff *RetryConfig) *Ingress {
	if backoff == nil {
		backoff = ReadBackoffConfig()
	}
	return &Ingress{
		source:  source,
		queue:   queue,
		backoff: backoff,
	}
}

// Run reads until ctx ends or the source fails with an error IsFatal
// recognizes. Other read errors are retried after a backoff delay.
func (in *Ingress) Run(ctx context.Context) error {
	delay := newBackoff(in.backoff)

	for {
		chunk, err := in.source.ReadChunk(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if IsFatal(err) {
				return fmt.Errorf("ingress read: %w", err)
			}
			in.readErrors.Add(1)
			sleep := delay.next()
			Debugf("ingress: read failed, retrying in %v: %v", sleep, err)
			if !sleepWithContext(ctx, sleep) {
				return ctx.Err()
			}
			continue
		}
		delay.reset()

		if len(chunk) == 0 {
			continue
		}
		in.chunks.Add(1)
		in.bytes.Add(uint64(len(chunk)))
		if !in.queue.TryPush(chunk) {
			Debugf("ingress: queue full, dropped %d bytes", len(chunk))
		}
	}
}

// Stats returns a snapshot of the ingress counters.
func (in *Ingress) Stats() IngressStats {
	return IngressStats{
		Chunks:        in.chunks.Load(),
		Bytes:         in.bytes.Load(),
		ReadErrors:    in.readErrors.Load(),
		DroppedChunks: in.queue.Dropped(),
	}
}
