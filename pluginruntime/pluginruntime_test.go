// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package pluginruntime

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/pherr"
	"pluginhost.sh/pluginapi"
	"pluginhost.sh/wire"
)

type stubBuildPlugin struct {
	commands []pluginapi.Command
	err      error
}

func (p *stubBuildPlugin) CreateBuildCommands(ctx *pluginapi.Context) ([]pluginapi.Command, error) {
	return p.commands, p.err
}

type stubUserPlugin struct {
	emit []pluginapi.Command
	err  error
}

func (p *stubUserPlugin) PerformCommand(ctx *pluginapi.Context, arguments []string) error {
	for _, c := range p.emit {
		ctx.DefineCommand(c)
	}
	return p.err
}

func newInput(action wire.Action) *wire.Input {
	return &wire.Input{
		Paths:    []wire.Path{{Subpath: "/work"}, {Subpath: "/built"}},
		Targets:  nil,
		Packages: []wire.Package{{Name: "root"}},
		PluginWorkDirId:    0,
		BuiltProductsDirId: 1,
		PluginAction:       action,
	}
}

func readAll(t *testing.T, buf *bytes.Buffer) []wire.Message {
	t.Helper()
	var msgs []wire.Message
	for buf.Len() > 0 {
		payload, err := wire.ReadFrame(buf)
		require.NoError(t, err)
		var msg wire.Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestHandleActionBuildToolSuccess(t *testing.T) {
	plugin := &stubBuildPlugin{commands: []pluginapi.Command{
		{Kind: pluginapi.CommandKindBuild, DisplayName: "compile", Executable: "/usr/bin/cc"},
	}}

	input := newInput(wire.Action{Kind: wire.ActionKindCreateBuildToolCommands})

	var out bytes.Buffer
	require.NoError(t, handleAction(plugin, input, &out))

	msgs := readAll(t, &out)
	require.Len(t, msgs, 2)
	require.Equal(t, wire.MessageKindDefineBuildCommand, msgs[0].Kind)
	require.Equal(t, "compile", msgs[0].DefineBuildCommand.Config.DisplayName)
	require.Equal(t, wire.MessageKindActionComplete, msgs[1].Kind)
	require.True(t, msgs[1].ActionComplete.Success)
}

func TestHandleActionBuildToolFailureEmitsDiagnostic(t *testing.T) {
	plugin := &stubBuildPlugin{err: errors.New("boom")}
	input := newInput(wire.Action{Kind: wire.ActionKindCreateBuildToolCommands})

	var out bytes.Buffer
	require.NoError(t, handleAction(plugin, input, &out))

	msgs := readAll(t, &out)
	require.Len(t, msgs, 2)
	require.Equal(t, wire.MessageKindEmitDiagnostic, msgs[0].Kind)
	require.Equal(t, wire.SeverityError, msgs[0].EmitDiagnostic.Severity)
	require.Equal(t, wire.MessageKindActionComplete, msgs[1].Kind)
	require.False(t, msgs[1].ActionComplete.Success)
}

func TestHandleActionUserCommandDefinesViaContext(t *testing.T) {
	plugin := &stubUserPlugin{emit: []pluginapi.Command{{Kind: pluginapi.CommandKindPrebuild, DisplayName: "scaffold"}}}
	input := newInput(wire.Action{Kind: wire.ActionKindPerformUserCommand, Arguments: []string{"init"}})

	var out bytes.Buffer
	require.NoError(t, handleAction(plugin, input, &out))

	msgs := readAll(t, &out)
	require.Len(t, msgs, 2)
	require.Equal(t, wire.MessageKindDefinePrebuildCommand, msgs[0].Kind)
	require.Equal(t, "scaffold", msgs[0].DefinePrebuildCommand.Config.DisplayName)
	require.True(t, msgs[1].ActionComplete.Success)
}

func TestHandleActionToolNotFoundAbortsWithoutActionComplete(t *testing.T) {
	plugin := &stubBuildPlugin{err: &pherr.ToolNotFound{Name: "doc"}}
	input := newInput(wire.Action{Kind: wire.ActionKindCreateBuildToolCommands})

	var out bytes.Buffer
	err := handleAction(plugin, input, &out)
	require.Error(t, err)

	var notFound *pherr.ToolNotFound
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "doc", notFound.Name)

	// No diagnostic, no ActionComplete -- the process is meant to exit 1
	// with nothing sent on the framed channel.
	require.Zero(t, out.Len())
}

func TestHandleActionUserCommandToolNotFoundAbortsWithoutActionComplete(t *testing.T) {
	plugin := &stubUserPlugin{err: &pherr.ToolNotFound{Name: "fmt"}}
	input := newInput(wire.Action{Kind: wire.ActionKindPerformUserCommand})

	var out bytes.Buffer
	err := handleAction(plugin, input, &out)
	require.Error(t, err)

	var notFound *pherr.ToolNotFound
	require.ErrorAs(t, err, &notFound)
	require.Zero(t, out.Len())
}

func TestHandleActionCapabilityMismatchReportsFailureThenErrors(t *testing.T) {
	plugin := &stubUserPlugin{}
	input := newInput(wire.Action{Kind: wire.ActionKindCreateBuildToolCommands})

	var out bytes.Buffer
	err := handleAction(plugin, input, &out)
	require.Error(t, err)

	var malformed *pherr.MalformedInputJSON
	require.ErrorAs(t, err, &malformed)

	msgs := readAll(t, &out)
	require.Len(t, msgs, 1)
	require.Equal(t, wire.MessageKindActionComplete, msgs[0].Kind)
	require.False(t, msgs[0].ActionComplete.Success)
}

func TestLoopStopsCleanlyOnEOF(t *testing.T) {
	var in bytes.Buffer
	var out bytes.Buffer

	err := loop(&stubBuildPlugin{}, &in, &out)
	require.NoError(t, err)
	require.Zero(t, out.Len())
}

func TestLoopProcessesOneActionThenEOF(t *testing.T) {
	plugin := &stubBuildPlugin{commands: []pluginapi.Command{{Kind: pluginapi.CommandKindBuild, DisplayName: "step"}}}
	input := newInput(wire.Action{Kind: wire.ActionKindCreateBuildToolCommands})

	var in bytes.Buffer
	payload, err := json.Marshal(wire.Message{Kind: wire.MessageKindPerformAction, PerformAction: input})
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(&in, payload))

	var out bytes.Buffer
	require.NoError(t, loop(plugin, &in, &out))

	msgs := readAll(t, &out)
	require.Len(t, msgs, 2)
	require.Equal(t, wire.MessageKindDefineBuildCommand, msgs[0].Kind)
	require.Equal(t, wire.MessageKindActionComplete, msgs[1].Kind)
}

func TestLoopRejectsUnknownMessageKind(t *testing.T) {
	var in bytes.Buffer
	require.NoError(t, wire.WriteFrame(&in, []byte(`{"kind":"bogusKind","payload":{}}`)))

	var out bytes.Buffer
	err := loop(&stubBuildPlugin{}, &in, &out)
	require.Error(t, err)

	var malformed *pherr.MalformedInputJSON
	require.ErrorAs(t, err, &malformed)
}
