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
	"time"

	"github.com/ZaparooProject/go-commlink/internal/syncutil"
)

// ErrorCounter tracks checksum failures on one link: the number since the
// last good frame, and the lifetime total.
type ErrorCounter struct {
	consecutive atomic.Uint64
	total       atomic.Uint64
}

// Fail records one checksum failure.
func (c *ErrorCounter) Fail() {
	c.consecutive.Add(1)
	c.total.Add(1)
}

// Succeed records a good frame, clearing the consecutive count.
func (c *ErrorCounter) Succeed() {
	c.consecutive.Store(0)
}

// Consecutive returns failures since the last good frame.
func (c *ErrorCounter) Consecutive() uint64 {
	return c.consecutive.Load()
}

// Total returns every failure ever recorded.
func (c *ErrorCounter) Total() uint64 {
	return c.total.Load()
}

// CounterReader exposes the consecutive failure count for observation.
type CounterReader interface {
	Consecutive() uint64
}

// Resetter restarts whatever sits behind a degraded link. For a device this
// is usually a full reboot.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ResetFunc adapts a function to Resetter.
type ResetFunc func(ctx context.Context) error

// Reset calls f.
func (f ResetFunc) Reset(ctx context.Context) error {
	return f(ctx)
}

// Recovery policy defaults
const (
	DefaultRecoveryThreshold = 1
	DefaultRecoveryInterval  = 100 * time.Millisecond
)

// RecoveryConfig configures a RecoveryPolicy.
type RecoveryConfig struct {
	// Threshold is the consecutive failure count at which a reset fires.
	Threshold uint64
	// Interval is how often Run samples the counter.
	Interval time.Duration
}

// DefaultRecoveryConfig resets on any new checksum failure.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Threshold: DefaultRecoveryThreshold,
		Interval:  DefaultRecoveryInterval,
	}
}

// RecoveryPolicy compares the failure counter across polls and resets the
// device once failures have grown to the threshold.
type RecoveryPolicy struct {
	counter  CounterReader
	resetter Resetter
	config   RecoveryConfig
	lastSeen uint64
	resets   uint64
	mu       syncutil.Mutex
}

// NewRecoveryPolicy creates a policy. Zero fields in config take defaults.
func NewRecoveryPolicy(counter CounterReader, resetter Resetter, config RecoveryConfig) *RecoveryPolicy {
	if config.Threshold == 0 {
		config.Threshold = DefaultRecoveryThreshold
	}
	if config.Interval <= 0 {
		config.Interval = DefaultRecoveryInterval
	}
	return &RecoveryPolicy{
		counter:  counter,
		resetter: resetter,
		config:   config,
	}
}

// Check samples the counter once. It resets when the count increased since
// the previous sample and has reached the threshold, and reports whether a
// reset was triggered.
func (p *RecoveryPolicy) Check(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.counter.Consecutive()
	increased := current > p.lastSeen
	p.lastSeen = current

	if !increased || current < p.config.Threshold {
		return false, nil
	}

	Debugf("recovery: %d consecutive checksum errors, resetting", current)
	p.resets++
	if err := p.resetter.Reset(ctx); err != nil {
		return true, fmt.Errorf("reset after %d checksum errors: %w", current, err)
	}
	return true, nil
}

// Resets returns how many resets the policy has triggered.
func (p *RecoveryPolicy) Resets() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// Run calls Check every Interval until ctx ends or a reset fails.
func (p *RecoveryPolicy) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Check(ctx); err != nil {
				return err
			}
		}
	}
}
