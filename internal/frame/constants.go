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

// Frame markers and control bytes
const (
	Flag      = 0x7E // Opens and closes every frame
	Escape    = 0x7D // Prefixes a stuffed byte
	EscapeXOR = 0x20 // Applied to the byte following Escape
)

// Frame size limits
const (
	// FCSLen is the number of FCS bytes carried before the closing flag.
	FCSLen = 2
	// Overhead is the minimum number of bytes added around a payload
	// (two flags plus an unescaped FCS).
	Overhead = 2 + FCSLen
)

// MaxEncodedLen returns the worst-case encoded size of a payload of n bytes,
// where every payload and FCS byte needs escaping.
func MaxEncodedLen(n int) int {
	return 2 + 2*(n+FCSLen)
}

// Status reports the outcome of a single deframe attempt.
type Status int

const (
	// StatusIncomplete means no complete frame is present yet.
	StatusIncomplete Status = iota
	// StatusOK means a frame was found and its FCS matched.
	StatusOK
	// StatusBadFCS means a frame was found but its FCS did not match.
	StatusBadFCS
)

func (s Status) String() string {
	switch s {
	case StatusIncomplete:
		return "incomplete"
	case StatusOK:
		return "ok"
	case StatusBadFCS:
		return "bad fcs"
	default:
		return "unknown"
	}
}
