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
	"bytes"
	"encoding/json"
	"fmt"

	"pluginhost.sh/pherr"
)

// MessageKind discriminates every message that can cross the wire in
// either direction.
type MessageKind string

const (
	// Host -> plugin.
	MessageKindPerformAction        MessageKind = "performAction"
	MessageKindSymbolGraphResponse  MessageKind = "symbolGraphResponse"
	MessageKindErrorResponse        MessageKind = "errorResponse"

	// Plugin -> host.
	MessageKindEmitDiagnostic       MessageKind = "emitDiagnostic"
	MessageKindDefineBuildCommand   MessageKind = "defineBuildCommand"
	MessageKindDefinePrebuildCommand MessageKind = "definePrebuildCommand"
	MessageKindSymbolGraphRequest   MessageKind = "symbolGraphRequest"
	MessageKindActionComplete       MessageKind = "actionComplete"
)

// SymbolGraphRequest asks the host to resolve a target's symbol-graph
// JSON file on disk.
type SymbolGraphRequest struct {
	TargetName string `json:"targetName"`
}

// SymbolGraphResponse answers a SymbolGraphRequest with the resolved path.
type SymbolGraphResponse struct {
	Path string `json:"path"`
}

// ErrorResponse answers any request the host does not recognize or
// cannot satisfy.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ActionComplete is the terminal plugin->host message of one invocation.
type ActionComplete struct {
	Success bool `json:"success"`
}

// Message is the envelope carried by one frame. Exactly one of the typed
// fields is populated, selected by Kind; MarshalJSON/UnmarshalJSON
// enforce this explicitly rather than via a bare interface{} payload.
type Message struct {
	Kind MessageKind

	PerformAction         *Input
	SymbolGraphResponse   *SymbolGraphResponse
	ErrorResponse         *ErrorResponse
	EmitDiagnostic        *Diagnostic
	DefineBuildCommand    *BuildCommand
	DefinePrebuildCommand *PrebuildCommand
	SymbolGraphRequest    *SymbolGraphRequest
	ActionComplete        *ActionComplete
}

type wireEnvelope struct {
	Kind    MessageKind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON encodes m with sorted keys and without escaping HTML
// characters; the discriminator ("kind") is written first.
func (m Message) MarshalJSON() ([]byte, error) {
	var payload interface{}

	switch m.Kind {
	case MessageKindPerformAction:
		payload = m.PerformAction
	case MessageKindSymbolGraphResponse:
		payload = m.SymbolGraphResponse
	case MessageKindErrorResponse:
		payload = m.ErrorResponse
	case MessageKindEmitDiagnostic:
		payload = m.EmitDiagnostic
	case MessageKindDefineBuildCommand:
		payload = m.DefineBuildCommand
	case MessageKindDefinePrebuildCommand:
		payload = m.DefinePrebuildCommand
	case MessageKindSymbolGraphRequest:
		payload = m.SymbolGraphRequest
	case MessageKindActionComplete:
		payload = m.ActionComplete
	default:
		return nil, fmt.Errorf("unknown message kind: %q", m.Kind)
	}

	raw, err := marshalNoEscape(payload)
	if err != nil {
		return nil, err
	}

	// Struct fields encode in declaration order; decoding into a generic
	// value and re-encoding it yields sorted object keys at every level.
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	if raw, err = marshalNoEscape(generic); err != nil {
		return nil, err
	}

	return marshalNoEscape(wireEnvelope{Kind: m.Kind, Payload: raw})
}

// UnmarshalJSON decodes an envelope and rejects unknown discriminators
// with a MalformedMessage error, per spec.md §4.A.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &pherr.MalformedMessage{Cause: err}
	}

	m.Kind = env.Kind

	switch env.Kind {
	case MessageKindPerformAction:
		m.PerformAction = &Input{}
		return unmarshalPayload(env.Payload, m.PerformAction)
	case MessageKindSymbolGraphResponse:
		m.SymbolGraphResponse = &SymbolGraphResponse{}
		return unmarshalPayload(env.Payload, m.SymbolGraphResponse)
	case MessageKindErrorResponse:
		m.ErrorResponse = &ErrorResponse{}
		return unmarshalPayload(env.Payload, m.ErrorResponse)
	case MessageKindEmitDiagnostic:
		m.EmitDiagnostic = &Diagnostic{}
		return unmarshalPayload(env.Payload, m.EmitDiagnostic)
	case MessageKindDefineBuildCommand:
		m.DefineBuildCommand = &BuildCommand{}
		return unmarshalPayload(env.Payload, m.DefineBuildCommand)
	case MessageKindDefinePrebuildCommand:
		m.DefinePrebuildCommand = &PrebuildCommand{}
		return unmarshalPayload(env.Payload, m.DefinePrebuildCommand)
	case MessageKindSymbolGraphRequest:
		m.SymbolGraphRequest = &SymbolGraphRequest{}
		return unmarshalPayload(env.Payload, m.SymbolGraphRequest)
	case MessageKindActionComplete:
		m.ActionComplete = &ActionComplete{}
		return unmarshalPayload(env.Payload, m.ActionComplete)
	default:
		return &pherr.MalformedMessage{Cause: fmt.Errorf("unknown message kind: %q", env.Kind)}
	}
}

func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &pherr.MalformedMessage{Cause: err}
	}
	return nil
}

// marshalNoEscape encodes v without HTML-escaping '<', '>' and '&', per
// spec.md §4.A, and without the trailing newline json.Encoder appends.
func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
