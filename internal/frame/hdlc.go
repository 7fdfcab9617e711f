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

import "encoding/binary"

// NeedsEscape reports whether b must be stuffed inside a frame.
func NeedsEscape(b byte) bool {
	return b == Flag || b == Escape
}

func appendEscaped(dst, data []byte) []byte {
	for _, b := range data {
		if NeedsEscape(b) {
			dst = append(dst, Escape, b^EscapeXOR)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// AppendEncode appends the framed form of payload to dst and returns the
// extended slice. The FCS is computed over the unescaped payload.
func AppendEncode(dst, payload []byte) []byte {
	var fcs [FCSLen]byte
	binary.LittleEndian.PutUint16(fcs[:], FCS16(payload))

	dst = append(dst, Flag)
	dst = appendEscaped(dst, payload)
	dst = appendEscaped(dst, fcs[:])
	return append(dst, Flag)
}

// Encode returns payload wrapped in a complete frame.
func Encode(payload []byte) []byte {
	return AppendEncode(make([]byte, 0, MaxEncodedLen(len(payload))), payload)
}

// Deframe scans buf for the first complete frame.
//
// Bytes before the opening flag are skipped, which resynchronizes the stream
// after garbage or a partial frame. A flag that closes fewer than FCSLen
// bytes is an empty frame: it is ignored and scanning continues outside a
// frame.
//
// When a frame completes, advance is the number of bytes of buf consumed up
// to and including the closing flag, whether or not the FCS matched. When no
// frame completes the status is StatusIncomplete and advance is zero so the
// caller can append more bytes and try again.
func Deframe(buf []byte) (payload []byte, advance int, status Status) {
	scratch := GetBuffer(len(buf))
	defer PutBuffer(scratch)
	out := scratch[:0]

	inFrame, escaped := false, false
	for i, b := range buf {
		if !inFrame {
			if b == Flag {
				inFrame = true
				out = out[:0]
			}
			continue
		}

		switch {
		case escaped:
			out = append(out, b^EscapeXOR)
			escaped = false
		case b == Escape:
			escaped = true
		case b == Flag:
			if len(out) < FCSLen {
				inFrame = false
				continue
			}
			n := len(out) - FCSLen
			received := binary.LittleEndian.Uint16(out[n:])
			if received != FCS16(out[:n]) {
				return nil, i + 1, StatusBadFCS
			}
			payload = make([]byte, n)
			copy(payload, out[:n])
			return payload, i + 1, StatusOK
		default:
			out = append(out, b)
		}
	}

	return nil, 0, StatusIncomplete
}
