// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Command example-plugin is a minimal build-tool plugin: it defines one
// build command running its resolved "echo" tool over the target's own
// source files, and answers any user command by defining one command
// that runs the same tool with "hello" followed by the command's
// arguments. It is a sample of a user-authored plugin built on pluginapi
// and pluginruntime; the package test suites do not use it.
package main

import (
	"fmt"

	"pluginhost.sh/pluginapi"
	"pluginhost.sh/pluginruntime"
	"pluginhost.sh/wire"
)

type examplePlugin struct{}

func (examplePlugin) CreateBuildCommands(ctx *pluginapi.Context) ([]pluginapi.Command, error) {
	tool, err := ctx.Tool("echo")
	if err != nil {
		ctx.EmitDiagnostic(wire.SeverityWarning, fmt.Sprintf("no echo tool accessible, falling back: %v", err))
		tool = "echo"
	}

	var inputs []string
	for _, f := range ctx.Target.Info.Files {
		inputs = append(inputs, f.Name)
	}

	ctx.EmitDiagnostic(wire.SeverityRemark, fmt.Sprintf("building target %q with %d source file(s)", ctx.Target.Name, len(inputs)))

	return []pluginapi.Command{
		{
			Kind:             pluginapi.CommandKindBuild,
			DisplayName:      fmt.Sprintf("example-plugin: %s", ctx.Target.Name),
			Executable:       tool,
			Arguments:        append([]string{"built:" + ctx.Target.Name}, inputs...),
			WorkingDirectory: ctx.WorkDir,
			Inputs:           inputs,
			Outputs:          []string{ctx.Target.Name + ".out"},
		},
	}, nil
}

func (examplePlugin) PerformCommand(ctx *pluginapi.Context, arguments []string) error {
	tool, err := ctx.Tool("echo")
	if err != nil {
		tool = "echo"
	}

	ctx.DefineCommand(pluginapi.Command{
		Kind:             pluginapi.CommandKindBuild,
		DisplayName:      "example-plugin: greet",
		Executable:       tool,
		Arguments:        append([]string{"hello"}, arguments...),
		WorkingDirectory: ctx.WorkDir,
	})

	return nil
}

func main() {
	pluginruntime.Main(examplePlugin{})
}
