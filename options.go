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

import "fmt"

// LinkConfig contains configuration options for a Link
type LinkConfig struct {
	// ReadBackoff paces retries after a failed transport read.
	ReadBackoff *RetryConfig
	// IngressQueueSize bounds raw chunks waiting for the assembler.
	IngressQueueSize int
	// MessageQueueSize bounds decoded messages waiting for the application.
	MessageQueueSize int
	// PayloadQueueSize bounds raw frame payloads; zero disables publishing them.
	PayloadQueueSize int
	// RxBufferSize is the capacity of the raw receive buffer in bytes.
	RxBufferSize int
}

// DefaultLinkConfig returns default link configuration
func DefaultLinkConfig() *LinkConfig {
	return &LinkConfig{
		IngressQueueSize: 8,
		MessageQueueSize: 8,
		RxBufferSize:     512,
		ReadBackoff:      ReadBackoffConfig(),
	}
}

// Option is a functional option for configuring a Link
type Option func(*LinkConfig) error

// WithConfig replaces the whole configuration.
func WithConfig(config *LinkConfig) Option {
	return func(c *LinkConfig) error {
		if config == nil {
			return fmt.Errorf("nil link config: %w", ErrInvalidCapacity)
		}
		*c = *config
		return nil
	}
}

// WithQueueSizes sets the ingress and message queue capacities.
func WithQueueSizes(ingress, messages int) Option {
	return func(c *LinkConfig) error {
		c.IngressQueueSize = ingress
		c.MessageQueueSize = messages
		return nil
	}
}

// WithRawPayloads publishes every good frame payload, before message
// decoding, on a queue of the given size.
func WithRawPayloads(size int) Option {
	return func(c *LinkConfig) error {
		c.PayloadQueueSize = size
		return nil
	}
}

// WithRxBufferSize sets the raw receive buffer capacity.
func WithRxBufferSize(size int) Option {
	return func(c *LinkConfig) error {
		c.RxBufferSize = size
		return nil
	}
}

// WithReadBackoff sets the delay policy used after failed reads.
func WithReadBackoff(config *RetryConfig) Option {
	return func(c *LinkConfig) error {
		c.ReadBackoff = config
		return nil
	}
}

func (c *LinkConfig) validate() error {
	for name, size := range map[string]int{
		"ingress queue": c.IngressQueueSize,
		"message queue": c.MessageQueueSize,
		"rx buffer":     c.RxBufferSize,
	} {
		if size <= 0 {
			return fmt.Errorf("%s size %d: %w", name, size, ErrInvalidCapacity)
		}
	}
	if c.PayloadQueueSize < 0 {
		return fmt.Errorf("payload queue size %d: %w", c.PayloadQueueSize, ErrInvalidCapacity)
	}
	if c.ReadBackoff == nil {
		c.ReadBackoff = ReadBackoffConfig()
	}
	return nil
}
