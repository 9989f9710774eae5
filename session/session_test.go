// SPDX-License-Identifier: BSD-3-Clause
package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/config"
	"pluginhost.sh/pkggraph"
	"pluginhost.sh/session"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		CacheDir:               filepath.Join(t.TempDir(), "cache"),
		WorkDir:                filepath.Join(t.TempDir(), "work"),
		MaxParallelInvocations: 2,
	}
}

func writePluginSource(t *testing.T, dir string) []pkggraph.FileRef {
	t.Helper()
	path := filepath.Join(dir, "plugin.go")
	require.NoError(t, os.WriteFile(path, []byte(realPluginSource), 0o644))
	return []pkggraph.FileRef{{Directory: dir, Name: "plugin.go", Kind: pkggraph.FileKindSource}}
}

// realPluginSource is a buildable plugin: it implements BuildToolPlugin,
// defines one build command, and emits one diagnostic.
const realPluginSource = `package main

import (
	"pluginhost.sh/pluginapi"
	"pluginhost.sh/pluginruntime"
)

type greeter struct{}

func (greeter) CreateBuildCommands(ctx *pluginapi.Context) ([]pluginapi.Command, error) {
	ctx.EmitDiagnostic("remark", "hello from "+ctx.Target.Name)
	return []pluginapi.Command{
		{
			Kind:        pluginapi.CommandKindBuild,
			DisplayName: "greet",
			Executable:  "true",
		},
	}, nil
}

func main() {
	pluginruntime.Main(greeter{})
}
`

func TestOrchestratorRunCompilesAndInvokesRealPlugin(t *testing.T) {
	pluginDir := t.TempDir()
	sources := writePluginSource(t, pluginDir)

	plugin := &pkggraph.TargetNode{
		Name:          "greeter",
		Directory:     pluginDir,
		Kind:          pkggraph.TargetKindPlugin,
		PluginSources: sources,
	}

	target := &pkggraph.TargetNode{
		Name: "app",
		Kind: pkggraph.TargetKindSourceModule,
		Deps: []pkggraph.Dependency{
			{Kind: pkggraph.DependencyKindTarget, Target: plugin},
		},
	}

	pkg := &pkggraph.PackageNode{
		Name:     "demo",
		Identity: "demo",
		Targets:  []*pkggraph.TargetNode{target},
	}

	orchestrator := session.NewOrchestrator(newTestConfig(t), "test", nil)

	results, err := orchestrator.Run(context.Background(), pkg, []*pkggraph.TargetNode{target})
	require.NoError(t, err)

	perTarget, ok := results[target]
	require.True(t, ok)
	require.Len(t, perTarget, 1)

	res := perTarget[0]
	require.NoError(t, res.Err)
	require.True(t, res.Success)
	require.Len(t, res.BuildCommands, 1)
	require.Equal(t, "greet", res.BuildCommands[0].Config.DisplayName)
	require.Len(t, res.Diagnostics, 1)
	require.Contains(t, res.Diagnostics[0].Message, "app")
}

func TestOrchestratorRunMissingVendedToolIsReportedPerPlugin(t *testing.T) {
	pluginDir := t.TempDir()
	sources := writePluginSource(t, pluginDir)

	missingTool := &pkggraph.TargetNode{
		Name:         "missing-tool",
		Kind:         pkggraph.TargetKindBinaryLibrary,
		ArtifactPath: filepath.Join(t.TempDir(), "does-not-exist.tar.gz"),
	}

	plugin := &pkggraph.TargetNode{
		Name:          "greeter",
		Directory:     pluginDir,
		Kind:          pkggraph.TargetKindPlugin,
		PluginSources: sources,
		Deps: []pkggraph.Dependency{
			{Kind: pkggraph.DependencyKindTarget, Target: missingTool},
		},
	}

	target := &pkggraph.TargetNode{
		Name: "app",
		Kind: pkggraph.TargetKindSourceModule,
		Deps: []pkggraph.Dependency{
			{Kind: pkggraph.DependencyKindTarget, Target: plugin},
		},
	}

	pkg := &pkggraph.PackageNode{Name: "demo", Identity: "demo", Targets: []*pkggraph.TargetNode{target}}

	orchestrator := session.NewOrchestrator(newTestConfig(t), "test", nil)

	results, err := orchestrator.Run(context.Background(), pkg, []*pkggraph.TargetNode{target})
	require.NoError(t, err)

	res := results[target][0]
	require.Error(t, res.Err)
}

func TestOrchestratorRunParallelTargetsAreIndependent(t *testing.T) {
	pluginDir := t.TempDir()
	sources := writePluginSource(t, pluginDir)

	newTarget := func(name string) *pkggraph.TargetNode {
		plugin := &pkggraph.TargetNode{
			Name:          name + "-plugin",
			Directory:     pluginDir,
			Kind:          pkggraph.TargetKindPlugin,
			PluginSources: sources,
		}
		return &pkggraph.TargetNode{
			Name: name,
			Kind: pkggraph.TargetKindSourceModule,
			Deps: []pkggraph.Dependency{{Kind: pkggraph.DependencyKindTarget, Target: plugin}},
		}
	}

	a := newTarget("a")
	b := newTarget("b")

	pkg := &pkggraph.PackageNode{Name: "demo", Identity: "demo", Targets: []*pkggraph.TargetNode{a, b}}

	orchestrator := session.NewOrchestrator(newTestConfig(t), "test", nil)

	results, err := orchestrator.Run(context.Background(), pkg, []*pkggraph.TargetNode{a, b})
	require.NoError(t, err)

	require.True(t, results[a][0].Success)
	require.True(t, results[b][0].Success)
}
