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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
)

const (
	// HeaderLen is the encoded size of the fixed message header.
	HeaderLen = 12
	// MaxPayload is the largest payload a message may carry.
	MaxPayload = 128
)

var structOptions = &struc.Options{Order: binary.LittleEndian}

// header is the wire layout of a message header.
type header struct {
	Command   uint16
	ID        uint32
	Fragments uint16
	Fragment  uint16
	Length    uint16
}

// Message is one decoded application message. Fragment is zero-based, so
// a complete sequence runs from 0 to Fragments-1. The core never reassembles
// fragments; each one is delivered as its own Message.
type Message struct {
	Payload   []byte
	ID        uint32
	Command   Command
	Fragments uint16
	Fragment  uint16
}

// NewMessage builds a single-fragment message.
func NewMessage(cmd Command, id uint32, payload []byte) *Message {
	return &Message{
		Command:   cmd,
		ID:        id,
		Fragments: 1,
		Payload:   payload,
	}
}

// Encode serializes m. Payload bytes beyond MaxPayload are dropped.
func (m *Message) Encode() ([]byte, error) {
	return EncodeMessage(m.Command, m.ID, m.Fragments, m.Fragment, m.Payload)
}

func (m *Message) String() string {
	return fmt.Sprintf("%s id=%d frag=%d/%d len=%d", m.Command, m.ID, m.Fragment, m.Fragments, len(m.Payload))
}

// EncodeMessage writes the header followed by min(len(payload), MaxPayload)
// payload bytes. Truncation is silent; callers that cannot accept it must
// check the length first.
func EncodeMessage(cmd Command, id uint32, fragments, fragment uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		payload = payload[:MaxPayload]
	}

	hdr := header{
		Command:   uint16(cmd),
		ID:        id,
		Fragments: fragments,
		Fragment:  fragment,
		Length:    uint16(len(payload)), //nolint:gosec // bounded by MaxPayload
	}

	var buf bytes.Buffer
	buf.Grow(HeaderLen + len(payload))
	if err := struc.PackWithOptions(&buf, &hdr, structOptions); err != nil {
		return nil, fmt.Errorf("pack header: %w", err)
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeMessage parses a message from data. Bytes after the declared
// payload are ignored. Every failure wraps ErrMalformedMessage.
func DecodeMessage(data []byte) (Message, error) {
	if len(data) < HeaderLen {
		return Message{}, fmt.Errorf("%w: have %d bytes", ErrShortHeader, len(data))
	}

	var hdr header
	if err := struc.UnpackWithOptions(bytes.NewReader(data[:HeaderLen]), &hdr, structOptions); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	length := int(hdr.Length)
	if length > MaxPayload {
		return Message{}, fmt.Errorf("%w: declared %d", ErrPayloadTooLarge, length)
	}
	if len(data) < HeaderLen+length {
		return Message{}, fmt.Errorf("%w: declared %d, have %d", ErrShortPayload, length, len(data)-HeaderLen)
	}

	payload := make([]byte, length)
	copy(payload, data[HeaderLen:HeaderLen+length])

	return Message{
		Command:   Command(hdr.Command),
		ID:        hdr.ID,
		Fragments: hdr.Fragments,
		Fragment:  hdr.Fragment,
		Payload:   payload,
	}, nil
}
