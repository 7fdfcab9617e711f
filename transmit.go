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
	"fmt"

	"github.com/ZaparooProject/go-commlink/internal/frame"
)

// WriteMessage encodes msg, frames it and writes the frame to sink,
// blocking until it has been flushed. Nothing is retried.
func WriteMessage(sink ByteSink, msg *Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg, err)
	}
	return WriteFrame(sink, data)
}

// WriteFrame frames an arbitrary payload and writes it to sink.
func WriteFrame(sink ByteSink, payload []byte) error {
	scratch := frame.GetBuffer(frame.MaxEncodedLen(len(payload)))
	defer frame.PutBuffer(scratch)
	encoded := frame.AppendEncode(scratch[:0], payload)

	if err := writeAll(sink, encoded); err != nil {
		return err
	}
	if err := sink.Flush(); err != nil {
		return NewTransportError("flush", "", err, errorTypeFor(err))
	}
	return nil
}

// writeAll loops over short writes. A write that makes no progress without
// an error is reported as ErrTransportWrite.
func writeAll(sink ByteSink, data []byte) error {
	written := 0
	for written < len(data) {
		n, err := sink.Write(data[written:])
		written += n
		if err != nil {
			wrapped := fmt.Errorf("%w after %d of %d bytes: %w", ErrTransportWrite, written, len(data), err)
			return NewTransportError("write", "", wrapped, errorTypeFor(err))
		}
		if n == 0 {
			return NewTransportError("write", "", ErrTransportWrite, ErrorTypeTransient)
		}
	}
	return nil
}

func errorTypeFor(err error) ErrorType {
	if IsFatal(err) {
		return ErrorTypePermanent
	}
	return ErrorTypeTransient
}
