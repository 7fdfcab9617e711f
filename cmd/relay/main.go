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


// Command relay runs the device side of the relay service on a serial link.
// It answers pings, drives an output pin from Raw messages and a push button,
// and resets the device when frames start failing their checksum.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commlink "github.com/ZaparooProject/go-commlink"
	"github.com/ZaparooProject/go-commlink/internal/relay"
	"github.com/ZaparooProject/go-commlink/transport/uart"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type config struct {
	port      string
	output    string
	led       string
	button    string
	reset     string
	baud      int
	debounce  time.Duration
	threshold uint64
	debug     bool
}

var (
	flagPort      string
	flagOutput    string
	flagLED       string
	flagButton    string
	flagReset     string
	flagBaud      int
	flagDebounce  time.Duration
	flagThreshold uint64
	flagDebug     bool
)

func init() {
	flag.StringVar(&flagPort, "port", "", "Serial port connected to the host (required)")
	flag.StringVar(&flagOutput, "output", "GPIO8", "Relay output pin")
	flag.StringVar(&flagLED, "led", "", "Activity LED pin (disabled if empty)")
	flag.StringVar(&flagButton, "button", "", "Push button pin toggling the output (disabled if empty)")
	flag.StringVar(&flagReset, "reset", resetReboot, "Action on checksum failures: reboot, exit or none")
	flag.IntVar(&flagBaud, "baud", uart.DefaultBaudRate, "Serial baud rate")
	flag.DurationVar(&flagDebounce, "debounce", relay.DefaultDebounce, "Button debounce period")
	flag.Uint64Var(&flagThreshold, "threshold", commlink.DefaultRecoveryThreshold,
		"Consecutive checksum failures that trigger a reset")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

const (
	resetReboot = "reboot"
	resetExit   = "exit"
	resetNone   = "none"
)

var errNoPort = errors.New("-port is required")

func parseConfig() (*config, error) {
	cfg := &config{
		port:      flagPort,
		output:    flagOutput,
		led:       flagLED,
		button:    flagButton,
		reset:     flagReset,
		baud:      flagBaud,
		debounce:  flagDebounce,
		threshold: flagThreshold,
		debug:     flagDebug,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.debug {
		commlink.SetDebugEnabled(true)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.port == "" {
		return errNoPort
	}
	if c.output == "" {
		return relay.ErrNoOutput
	}
	switch c.reset {
	case resetReboot, resetExit, resetNone:
	default:
		return fmt.Errorf("unknown reset action %q", c.reset)
	}
	if c.threshold == 0 {
		return errors.New("-threshold must be at least 1")
	}
	return nil
}

// lookupPin resolves a pin by name. An empty name yields a nil pin.
func lookupPin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil //nolint:nilnil // optional pin
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find GPIO pin %q", name)
	}
	return pin, nil
}

func resetterFor(action string) commlink.Resetter {
	switch action {
	case resetReboot:
		return commlink.ResetFunc(rebootDevice)
	case resetExit:
		return commlink.ResetFunc(func(context.Context) error {
			_, _ = fmt.Fprintln(os.Stderr, "Checksum failures detected, exiting for restart")
			os.Exit(3)
			return nil
		})
	default:
		return commlink.ResetFunc(func(context.Context) error {
			_, _ = fmt.Fprintln(os.Stderr, "Checksum failures detected, reset disabled")
			return nil
		})
	}
}

func openLink(ctx context.Context, cfg *config) (*commlink.Link, error) {
	var transport *uart.Transport
	err := commlink.RetryWithConfig(ctx, commlink.DefaultRetryConfig(), func() error {
		var openErr error
		transport, openErr = uart.New(cfg.port, uart.WithBaudRate(cfg.baud))
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.port, err)
	}

	link, err := commlink.New(transport)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return link, nil
}

type pins struct {
	output gpio.PinIO
	led    gpio.PinIO
	button gpio.PinIO
}

func resolvePins(cfg *config) (*pins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	var p pins
	var err error
	if p.output, err = lookupPin(cfg.output); err != nil {
		return nil, err
	}
	if p.led, err = lookupPin(cfg.led); err != nil {
		return nil, err
	}
	if p.button, err = lookupPin(cfg.button); err != nil {
		return nil, err
	}
	return &p, nil
}

// runTasks runs every task until the first one returns, then cancels the
// rest and waits for them. The first error is returned.
func runTasks(ctx context.Context, tasks ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(tasks))
	for _, task := range tasks {
		go func() { errs <- task(ctx) }()
	}

	first := <-errs
	cancel()
	for range len(tasks) - 1 {
		<-errs
	}
	return first
}

func run(ctx context.Context, cfg *config) error {
	p, err := resolvePins(cfg)
	if err != nil {
		return err
	}

	link, err := openLink(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := link.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close link: %v\n", err)
		}
	}()

	var led gpio.PinOut
	if p.led != nil {
		led = p.led
	}
	r, err := relay.New(link, p.output, led)
	if err != nil {
		return fmt.Errorf("failed to set up relay: %w", err)
	}

	policy := commlink.NewRecoveryPolicy(link.FCSErrors(), resetterFor(cfg.reset), commlink.RecoveryConfig{
		Threshold: cfg.threshold,
		Interval:  commlink.DefaultRecoveryInterval,
	})

	tasks := []func(context.Context) error{
		link.Run,
		func(ctx context.Context) error { return r.Run(ctx, link) },
		policy.Run,
	}
	if p.button != nil {
		tasks = append(tasks, func(ctx context.Context) error {
			return r.WatchButton(ctx, p.button, cfg.debounce)
		})
	}

	_, _ = fmt.Printf("Relay running on %s (output %s). Press Ctrl+C to stop...\n", cfg.port, cfg.output)
	return runTasks(ctx, tasks...)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
