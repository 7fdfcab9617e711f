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


// Command linkctl talks to a device over a framed serial link. It can list
// serial ports, ping the device, send Raw payloads, stress the link, monitor
// incoming traffic or bridge it to an MQTT broker.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	commlink "github.com/ZaparooProject/go-commlink"
	"github.com/ZaparooProject/go-commlink/bridge/mqtt"
	"github.com/ZaparooProject/go-commlink/transport/uart"
)

type config struct {
	port      string
	raw       string
	mqttURL   string
	reportDir string
	ignore    []string
	baud      int
	pings     int
	stress    int
	timeout   time.Duration
	list      bool
	usbOnly   bool
	sessLog   bool
	debug     bool
}

// Package-level flag variables
var (
	flagPort      string
	flagRaw       string
	flagMQTT      string
	flagReportDir string
	flagIgnore    string
	flagBaud      int
	flagPings     int
	flagStress    int
	flagTimeout   time.Duration
	flagList      bool
	flagUSBOnly   bool
	flagSessLog   bool
	flagDebug     bool
)

func init() {
	flag.StringVar(&flagPort, "port", "", "Serial port (auto-detect if empty)")
	flag.StringVar(&flagRaw, "raw", "", "Hex payload to send as a Raw message (e.g. d801)")
	flag.StringVar(&flagMQTT, "mqtt", "", "Bridge the link to this broker URL (mqtt://host:1883/prefix)")
	flag.StringVar(&flagReportDir, "report-dir", ".", "Directory for stress test crash reports")
	flag.StringVar(&flagIgnore, "ignore", "", "Comma-separated serial ports to skip during auto-detection")
	flag.IntVar(&flagBaud, "baud", uart.DefaultBaudRate, "Serial baud rate")
	flag.IntVar(&flagPings, "ping", 0, "Send this many pings and report round-trip times")
	flag.IntVar(&flagStress, "stress", 0, "Run this many ping stress rounds")
	flag.DurationVar(&flagTimeout, "timeout", time.Second, "Reply timeout for pings")
	flag.BoolVar(&flagList, "list", false, "List serial ports and exit")
	flag.BoolVar(&flagUSBOnly, "usb", false, "Only consider USB serial ports")
	flag.BoolVar(&flagSessLog, "log", false, "Write a session log file")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseConfig() *config {
	cfg := &config{
		port:      flagPort,
		raw:       flagRaw,
		mqttURL:   flagMQTT,
		reportDir: flagReportDir,
		ignore:    splitList(flagIgnore),
		baud:      flagBaud,
		pings:     flagPings,
		stress:    flagStress,
		timeout:   flagTimeout,
		list:      flagList,
		usbOnly:   flagUSBOnly,
		sessLog:   flagSessLog,
		debug:     flagDebug,
	}

	if cfg.debug {
		commlink.SetDebugEnabled(true)
	}

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *config) portFilter() uart.PortFilter {
	return uart.PortFilter{
		IgnorePaths: c.ignore,
		USBOnly:     c.usbOnly,
	}
}

func runListMode(cfg *config) error {
	ports, err := uart.ListPorts(cfg.portFilter())
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(ports) == 0 {
		_, _ = fmt.Println("No serial ports found.")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Println(describePort(p))
	}
	return nil
}

func describePort(p uart.PortInfo) string {
	if !p.IsUSB {
		return p.Path
	}
	desc := fmt.Sprintf("%s  [%s]", p.Path, p.VIDPID)
	if p.Product != "" {
		desc += " " + p.Product
	}
	if p.SerialNumber != "" {
		desc += " (" + p.SerialNumber + ")"
	}
	return desc
}

// resolvePort returns the configured port, or the first detected one.
func resolvePort(cfg *config) (string, error) {
	if cfg.port != "" {
		return cfg.port, nil
	}
	ports, err := uart.ListPorts(cfg.portFilter())
	if err != nil {
		return "", fmt.Errorf("failed to detect serial port: %w", err)
	}
	if len(ports) == 0 {
		return "", commlink.ErrDeviceNotFound
	}
	if cfg.debug {
		_, _ = fmt.Printf("Auto-detected serial port: %s\n", ports[0].Path)
	}
	return ports[0].Path, nil
}

func openLink(ctx context.Context, cfg *config) (*commlink.Link, error) {
	port, err := resolvePort(cfg)
	if err != nil {
		return nil, err
	}
	cfg.port = port

	var transport *uart.Transport
	err = commlink.RetryWithConfig(ctx, commlink.DefaultRetryConfig(), func() error {
		var openErr error
		transport, openErr = uart.New(port, uart.WithBaudRate(cfg.baud))
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", port, err)
	}

	link, err := commlink.New(transport)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return link, nil
}

func runPingMode(ctx context.Context, link *commlink.Link, cfg *config) error {
	run := &stressRun{link: link, timeout: cfg.timeout, nextID: 1}
	var failed int
	for i := range cfg.pings {
		rtt, err := run.ping(ctx, pingSizeTiny)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
			_, _ = fmt.Printf("ping %d: %v\n", i+1, err)
			continue
		}
		_, _ = fmt.Printf("ping %d: reply in %s\n", i+1, rtt.Round(time.Microsecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pings failed", failed, cfg.pings)
	}
	return nil
}

func parseRawPayload(s string) ([]byte, error) {
	payload, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid raw payload %q: %w", s, err)
	}
	if len(payload) > commlink.MaxPayload {
		return nil, fmt.Errorf("raw payload of %d bytes: %w", len(payload), commlink.ErrPayloadTooLarge)
	}
	return payload, nil
}

func runRawMode(link *commlink.Link, cfg *config) error {
	payload, err := parseRawPayload(cfg.raw)
	if err != nil {
		return err
	}
	msg := commlink.NewMessage(commlink.CommandRaw, uint32(time.Now().Unix()), payload)
	if err := link.Send(msg); err != nil {
		return fmt.Errorf("failed to send raw message: %w", err)
	}
	_, _ = fmt.Printf("Sent %s\n", msg)
	return nil
}

func runMonitorMode(ctx context.Context, link *commlink.Link) error {
	_, _ = fmt.Println("Monitoring link traffic. Press Ctrl+C to stop...")
	for {
		msg, err := link.Read(ctx)
		if err != nil {
			stats := link.Stats()
			_, _ = fmt.Printf("\nFrames: %d  Checksum errors: %d  Malformed: %d\n",
				stats.Assembler.Frames, stats.Assembler.ChecksumErrors, stats.Assembler.Malformed)
			return err
		}
		_, _ = fmt.Printf("%s  %s  %X\n", time.Now().Format("15:04:05.000"), &msg, msg.Payload)
	}
}

func runBridgeMode(ctx context.Context, link *commlink.Link, cfg *config) error {
	bridge, err := mqtt.NewFromURL(cfg.mqttURL, link)
	if err != nil {
		return fmt.Errorf("failed to set up MQTT bridge: %w", err)
	}
	_, _ = fmt.Printf("Bridging %s to %s (topics %s*)\n", cfg.port, cfg.mqttURL, bridge.Prefix())
	return bridge.Run(ctx)
}

// runWithLink runs the link in the background while mode uses it.
func runWithLink(ctx context.Context, link *commlink.Link, mode func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	linkDone := make(chan error, 1)
	go func() { linkDone <- link.Run(ctx) }()

	modeDone := make(chan error, 1)
	go func() { modeDone <- mode(ctx) }()

	select {
	case err := <-modeDone:
		cancel()
		<-linkDone
		return err
	case err := <-linkDone:
		cancel()
		<-modeDone
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("link stopped: %w", err)
	}
}

func run(ctx context.Context, cfg *config) error {
	if cfg.list {
		return runListMode(cfg)
	}

	if cfg.sessLog {
		path, err := commlink.InitSessionLog()
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		defer func() { _ = commlink.CloseSessionLog() }()
		_, _ = fmt.Printf("Session log: %s\n", path)
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

	return runWithLink(ctx, link, func(ctx context.Context) error {
		return dispatch(ctx, link, cfg)
	})
}

func dispatch(ctx context.Context, link *commlink.Link, cfg *config) error {
	switch {
	case cfg.raw != "":
		return runRawMode(link, cfg)
	case cfg.pings > 0:
		return runPingMode(ctx, link, cfg)
	case cfg.stress > 0:
		result, err := runStressMode(ctx, link, cfg)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("stress test failed %d of %d pings", result.Failed, result.Failed+result.Passed)
		}
		return nil
	case cfg.mqttURL != "":
		return runBridgeMode(ctx, link, cfg)
	default:
		return runMonitorMode(ctx, link)
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

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
