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


// Package commlink implements a point-to-point serial link: HDLC-style
// framing with a 16-bit FCS, a fixed-header application message format,
// and the pipeline that turns unaligned byte chunks from a transport into
// validated messages.
//
// A Link owns one Transport. Run reads chunks onto a bounded ingress queue,
// assembles frames out of them and publishes decoded messages for Read.
// Send encodes, frames and writes a message synchronously. Checksum failures
// are counted by an ErrorCounter that a RecoveryPolicy can watch to reset a
// device whose channel has degraded.
//
//	link, err := commlink.New(transport)
//	if err != nil {
//		return err
//	}
//	go link.Run(ctx)
//	msg, err := link.Read(ctx)
package commlink
