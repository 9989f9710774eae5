// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package pluginapi is what a plugin author imports. A build-tool
// plugin implements BuildToolPlugin; a user-command plugin implements
// UserCommandPlugin. Both receive a *Context giving them a read-only
// view of the package graph, the resolved tool paths, and the two
// directories (work, built-products) they are allowed to touch.
package pluginapi

import (
	"path/filepath"

	"pluginhost.sh/pherr"
	"pluginhost.sh/wire"
)

// toolsVersion is overwritten at link time via
// `-ldflags -X pluginhost.sh/pluginapi.toolsVersion=<version>` by the
// compiler package; a plugin can read it through ToolsVersion().
var toolsVersion string

// ToolsVersion returns the tools-version string this plugin was
// compiled with.
func ToolsVersion() string { return toolsVersion }

// CommandKind discriminates the two shapes a Command can take.
type CommandKind string

const (
	CommandKindBuild    CommandKind = "build"
	CommandKindPrebuild CommandKind = "prebuild"
)

// Command is what CreateBuildCommands returns and DefineCommand emits:
// a build-tool plugin's single output shape, discriminated by Kind so
// the runtime knows whether to frame it as a DefineBuildCommand or a
// DefinePrebuildCommand message.
type Command struct {
	Kind             CommandKind
	DisplayName      string
	Executable       string
	Arguments        []string
	Environment      map[string]string
	WorkingDirectory string

	// Build-only.
	Inputs  []string
	Outputs []string

	// Prebuild-only.
	OutputFilesDirectory string
}

// BuildToolPlugin is implemented by plugins that answer
// CreateBuildToolCommands actions.
type BuildToolPlugin interface {
	CreateBuildCommands(ctx *Context) ([]Command, error)
}

// UserCommandPlugin is implemented by plugins that answer
// PerformUserCommand actions; it emits commands by side effect via
// ctx.DefineCommand rather than returning them.
type UserCommandPlugin interface {
	PerformCommand(ctx *Context, arguments []string) error
}

// Context wraps the decoded package-graph view and tool lookup table
// for one plugin invocation.
type Context struct {
	input *wire.Input

	// Target is the target named by the requesting action, resolved from
	// the wire graph. Zero-valued for a PerformUserCommand action, which
	// names zero or more targets instead (see Targets).
	Target wire.Target

	// Targets holds every target named by a PerformUserCommand action.
	Targets []wire.Target

	// Arguments carries a PerformUserCommand action's arguments.
	Arguments []string

	// Package is the root package of the serialized graph.
	Package wire.Package

	WorkDir          string
	BuiltProductsDir string

	tools map[string]string

	diagnostics []wire.Diagnostic
	commands    []Command
}

// NewContext decodes a wire.Input into a Context. Exported so
// pluginruntime (and tests) can construct one without reaching into
// unexported fields.
func NewContext(input *wire.Input) *Context {
	ctx := &Context{
		input:            input,
		Package:          input.Packages[input.RootPackageId],
		WorkDir:          resolvePath(input, input.PluginWorkDirId),
		BuiltProductsDir: resolvePath(input, input.BuiltProductsDirId),
		tools:            make(map[string]string, len(input.ToolNamesToPathIds)),
	}

	for name, id := range input.ToolNamesToPathIds {
		ctx.tools[name] = resolvePath(input, id)
	}

	switch input.PluginAction.Kind {
	case wire.ActionKindCreateBuildToolCommands:
		if input.PluginAction.Target != nil {
			ctx.Target = input.Targets[*input.PluginAction.Target]
		}
	case wire.ActionKindPerformUserCommand:
		ctx.Arguments = input.PluginAction.Arguments
		for _, id := range input.PluginAction.Targets {
			ctx.Targets = append(ctx.Targets, input.Targets[id])
		}
	}

	return ctx
}

// resolvePath reassembles a path from its (base, subpath) chain,
// walking parent-first to the root the same way the serializer built it.
func resolvePath(input *wire.Input, id wire.PathId) string {
	p := input.Paths[id]
	if p.Base == nil {
		return p.Subpath
	}
	return filepath.Join(resolvePath(input, *p.Base), p.Subpath)
}

// Tool resolves a tool name accessible to this plugin to its absolute
// path, or ToolNotFound if the name was never declared accessible.
func (c *Context) Tool(name string) (string, error) {
	path, ok := c.tools[name]
	if !ok {
		return "", &pherr.ToolNotFound{Name: name}
	}
	return path, nil
}

// EmitDiagnostic records one diagnostic against this invocation; it is
// sent to the host in the order emitted, once the capability call
// returns.
func (c *Context) EmitDiagnostic(severity wire.Severity, message string) {
	c.diagnostics = append(c.diagnostics, wire.Diagnostic{Severity: severity, Message: message})
}

// EmitDiagnosticAt records a diagnostic attached to a source location.
func (c *Context) EmitDiagnosticAt(severity wire.Severity, message, file string, line int) {
	c.diagnostics = append(c.diagnostics, wire.Diagnostic{Severity: severity, Message: message, File: file, Line: &line})
}

// DefineCommand records a command by side effect, for UserCommandPlugin
// implementations (which return only an error, not a command list).
func (c *Context) DefineCommand(cmd Command) {
	c.commands = append(c.commands, cmd)
}

// Diagnostics returns every diagnostic emitted so far, in emission order.
func (c *Context) Diagnostics() []wire.Diagnostic { return c.diagnostics }

// Commands returns every command defined by side effect so far, in
// emission order.
func (c *Context) Commands() []Command { return c.commands }
