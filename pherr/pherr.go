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

// Package pherr defines the typed error taxonomy surfaced by the plugin
// host. Every type wraps its cause with fmt.Errorf("...: %w", ...) rather
// than reaching for a stack-trace library: nothing downstream needs a
// trace, only the chain for errors.As/errors.Is.
package pherr

import "fmt"

// WorkDirectoryCreationFailed is raised when the per-invocation work
// directory cannot be created.
type WorkDirectoryCreationFailed struct {
	Path  string
	Cause error
}

func (e *WorkDirectoryCreationFailed) Error() string {
	return fmt.Sprintf("could not create work directory %q: %v", e.Path, e.Cause)
}

func (e *WorkDirectoryCreationFailed) Unwrap() error { return e.Cause }

// CompilationFailed means the compiler ran to completion but did not
// produce a plugin executable.
type CompilationFailed struct {
	Command []string
	Raw     string
}

func (e *CompilationFailed) Error() string {
	return fmt.Sprintf("plugin compilation failed (%v): %s", e.Command, e.Raw)
}

// SubprocessDidNotStart means the executable could not even be launched.
type SubprocessDidNotStart struct {
	Message string
	Command []string
	Cause   error
}

func (e *SubprocessDidNotStart) Error() string {
	return fmt.Sprintf("%s (%v): %v", e.Message, e.Command, e.Cause)
}

func (e *SubprocessDidNotStart) Unwrap() error { return e.Cause }

// SubprocessFailed means the plugin process exited with a non-zero code.
type SubprocessFailed struct {
	ExitCode   int
	Command    []string
	StderrText string
}

func (e *SubprocessFailed) Error() string {
	return fmt.Sprintf("plugin %v exited with code %d: %s", e.Command, e.ExitCode, e.StderrText)
}

// MissingPluginOutput means the process exited 0 but never sent a
// terminal ActionComplete message.
type MissingPluginOutput struct {
	Message    string
	Command    []string
	StderrText string
}

func (e *MissingPluginOutput) Error() string {
	return fmt.Sprintf("%s (%v): %s", e.Message, e.Command, e.StderrText)
}

// Cancelled means the invocation was cancelled by the caller before it
// produced a terminal message.
type Cancelled struct {
	Command []string
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("invocation of %v was cancelled", e.Command)
}

// MalformedMessage wraps a JSON decode failure on the framed channel.
type MalformedMessage struct {
	Cause error
}

func (e *MalformedMessage) Error() string { return fmt.Sprintf("malformed message: %v", e.Cause) }
func (e *MalformedMessage) Unwrap() error { return e.Cause }

// TruncatedHeader means fewer than the fixed header width was read after
// at least one byte had already arrived.
type TruncatedHeader struct{ Got int }

func (e *TruncatedHeader) Error() string {
	return fmt.Sprintf("truncated frame header: got %d bytes", e.Got)
}

// TruncatedPayload means fewer than the declared payload length was read.
type TruncatedPayload struct {
	Want, Got int
}

func (e *TruncatedPayload) Error() string {
	return fmt.Sprintf("truncated frame payload: wanted %d, got %d", e.Want, e.Got)
}

// InvalidPayloadSize means the declared length violates the minimum
// payload size (2 bytes).
type InvalidPayloadSize struct {
	Size uint64
}

func (e *InvalidPayloadSize) Error() string {
	return fmt.Sprintf("invalid frame payload size: %d", e.Size)
}

// DecodingPluginOutputFailed wraps a structural decode error of an
// otherwise well-framed message.
type DecodingPluginOutputFailed struct {
	Payload []byte
	Cause   error
}

func (e *DecodingPluginOutputFailed) Error() string {
	return fmt.Sprintf("could not decode plugin output: %v", e.Cause)
}

func (e *DecodingPluginOutputFailed) Unwrap() error { return e.Cause }

// ToolNotFound is raised plugin-side when a requested tool name is
// absent from the tool map.
type ToolNotFound struct {
	Name string
}

func (e *ToolNotFound) Error() string { return fmt.Sprintf("tool not found: %q", e.Name) }

// ActionFailed means the plugin process exited 0 and sent a terminal
// ActionComplete, but reported success=false: it ran to completion
// without itself considering the action successful.
type ActionFailed struct {
	Command    []string
	StderrText string
}

func (e *ActionFailed) Error() string {
	return fmt.Sprintf("plugin %v reported action failure: %s", e.Command, e.StderrText)
}

// MalformedInputJSON is raised plugin-side on wire decode failure, or
// when the instantiated plugin type does not conform to the requested
// action's capability.
type MalformedInputJSON struct {
	Message string
}

func (e *MalformedInputJSON) Error() string { return e.Message }

// StructuralError covers serializer-side invariant violations: a cycle in
// the source graph, an executable product with zero or multiple main
// targets, or an action referencing a target that cannot be serialized.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string { return e.Message }
