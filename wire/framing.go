// SPDX-License-Identifier: BSD-3-Clause
//
// Authors: Alexander Jung <alex@unikraft.io>
//
// Copyright (c) 2022, Unikraft GmbH.  All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the names of its
//    contributors may be used to endorse or promote products derived from
//    this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package wire

import (
	"encoding/binary"
	"io"

	"pluginhost.sh/pherr"
)

// HeaderWidth is the fixed 8-byte little-endian length prefix of one
// frame, shared by both the host and the plugin runtime so the framing
// on each end of the pipe is byte-identical.
const HeaderWidth = 8

// MinPayloadSize is the smallest legal frame payload: a frame cannot
// carry fewer than 2 bytes, since the degenerate JSON object "{}" is
// itself 2 bytes.
const MinPayloadSize = 2

// WriteFrame writes one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [HeaderWidth]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r, classifying short
// reads into TruncatedHeader/TruncatedPayload and length violations into
// InvalidPayloadSize. Returns io.EOF verbatim when the stream ends
// cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [HeaderWidth]byte

	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, io.EOF
		}
		return nil, &pherr.TruncatedHeader{Got: n}
	}

	size := binary.LittleEndian.Uint64(header[:])
	if size < MinPayloadSize {
		return nil, &pherr.InvalidPayloadSize{Size: size}
	}

	payload := make([]byte, size)
	n, err = io.ReadFull(r, payload)
	if err != nil {
		return nil, &pherr.TruncatedPayload{Want: int(size), Got: n}
	}

	return payload, nil
}
