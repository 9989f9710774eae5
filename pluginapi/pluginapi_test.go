// SPDX-License-Identifier: BSD-3-Clause
package pluginapi_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/pherr"
	"pluginhost.sh/pluginapi"
	"pluginhost.sh/wire"
)

// buildInput constructs a minimal wire.Input with a three-level path
// chain (/work/build/out) so resolvePath's parent-first walk is
// actually exercised, plus one target and one tool.
func buildInput(action wire.Action) *wire.Input {
	root := wire.PathId(0)
	build := wire.PathId(1)

	return &wire.Input{
		Paths: []wire.Path{
			{Subpath: "/work"},
			{Base: &root, Subpath: "build"},
			{Base: &build, Subpath: "out"},
			{Base: &root, Subpath: "echo"},
		},
		Targets: []wire.Target{
			{Name: "app", Directory: root},
		},
		Packages: []wire.Package{
			{Name: "demo"},
		},
		RootPackageId:      0,
		PluginWorkDirId:    1,
		BuiltProductsDirId: 2,
		ToolNamesToPathIds: map[string]wire.PathId{"echo": 3},
		PluginAction:       action,
	}
}

func TestNewContextResolvesPathsParentFirst(t *testing.T) {
	target := wire.TargetId(0)
	ctx := pluginapi.NewContext(buildInput(wire.Action{
		Kind:   wire.ActionKindCreateBuildToolCommands,
		Target: &target,
	}))

	require.Equal(t, "/work/build", ctx.WorkDir)
	require.Equal(t, "/work/build/out", ctx.BuiltProductsDir)
	require.Equal(t, "app", ctx.Target.Name)
	require.Equal(t, "demo", ctx.Package.Name)
}

func TestNewContextPopulatesTargetsAndArgumentsForUserCommand(t *testing.T) {
	ctx := pluginapi.NewContext(buildInput(wire.Action{
		Kind:      wire.ActionKindPerformUserCommand,
		Targets:   []wire.TargetId{0},
		Arguments: []string{"--flag", "value"},
	}))

	require.Equal(t, wire.Target{}, ctx.Target)
	require.Len(t, ctx.Targets, 1)
	require.Equal(t, "app", ctx.Targets[0].Name)
	require.Equal(t, []string{"--flag", "value"}, ctx.Arguments)
}

func TestContextToolResolvesKnownName(t *testing.T) {
	target := wire.TargetId(0)
	ctx := pluginapi.NewContext(buildInput(wire.Action{
		Kind:   wire.ActionKindCreateBuildToolCommands,
		Target: &target,
	}))

	path, err := ctx.Tool("echo")
	require.NoError(t, err)
	require.Equal(t, "/work/echo", path)
}

func TestContextToolRejectsUnknownName(t *testing.T) {
	ctx := pluginapi.NewContext(buildInput(wire.Action{Kind: wire.ActionKindPerformUserCommand}))

	_, err := ctx.Tool("missing")
	var notFound *pherr.ToolNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestContextEmitDiagnosticAccumulatesInOrder(t *testing.T) {
	ctx := pluginapi.NewContext(buildInput(wire.Action{Kind: wire.ActionKindPerformUserCommand}))

	ctx.EmitDiagnostic(wire.SeverityRemark, "first")
	ctx.EmitDiagnosticAt(wire.SeverityError, "second", "plugin.go", 7)

	diags := ctx.Diagnostics()
	require.Len(t, diags, 2)
	require.Equal(t, "first", diags[0].Message)
	require.Nil(t, diags[0].Line)
	require.Equal(t, "second", diags[1].Message)
	require.Equal(t, "plugin.go", diags[1].File)
	require.Equal(t, 7, *diags[1].Line)
}

func TestContextDefineCommandAccumulatesInOrder(t *testing.T) {
	ctx := pluginapi.NewContext(buildInput(wire.Action{Kind: wire.ActionKindPerformUserCommand}))

	ctx.DefineCommand(pluginapi.Command{Kind: pluginapi.CommandKindBuild, DisplayName: "one"})
	ctx.DefineCommand(pluginapi.Command{Kind: pluginapi.CommandKindPrebuild, DisplayName: "two"})

	cmds := ctx.Commands()
	require.Len(t, cmds, 2)
	require.Equal(t, "one", cmds[0].DisplayName)
	require.Equal(t, "two", cmds[1].DisplayName)
}
