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

const (
	fcsPoly    = 0x8408 // 0x1021 bit-reversed
	fcsInitial = 0xFFFF
)

// FCS16 computes the PPP/HDLC 16-bit frame check sequence of data.
// The returned value is already complemented and is sent little-endian.
func FCS16(data []byte) uint16 {
	fcs := uint16(fcsInitial)
	for _, b := range data {
		x := (fcs ^ uint16(b)) & 0x00FF
		for range 8 {
			if x&0x0001 != 0 {
				x = (x >> 1) ^ fcsPoly
			} else {
				x >>= 1
			}
		}
		fcs = (fcs >> 8) ^ x
	}
	return ^fcs
}
