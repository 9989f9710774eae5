// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package session implements the per-target, per-plugin orchestration
// algorithm of component E: for every reachable target, resolve its
// plugins' accessible tools, compile each plugin, invoke it sandboxed,
// and fold the result into a build-plan-shaped record. Independent
// (plugin, target) invocations overlap on a bounded worker pool.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pluginhost.sh/archive"
	"pluginhost.sh/compiler"
	"pluginhost.sh/config"
	"pluginhost.sh/graph"
	"pluginhost.sh/internal/waitgroup"
	"pluginhost.sh/log"
	"pluginhost.sh/pherr"
	"pluginhost.sh/pkggraph"
	"pluginhost.sh/sandbox"
	"pluginhost.sh/wire"
)

// InvocationResult is one plugin's contribution to one target's build
// plan: its commands (with inputs/outputs promoted to absolute paths),
// its diagnostics, and whether the invocation succeeded.
type InvocationResult struct {
	Plugin           *pkggraph.TargetNode
	BuildCommands    []wire.BuildCommand
	PrebuildCommands []wire.PrebuildCommand
	UserCommands     []wire.UserCommand
	Diagnostics      []wire.Diagnostic
	Text             []string
	Success          bool
	Err              error
}

// Orchestrator drives plugin invocations for a package graph.
type Orchestrator struct {
	Compiler     *compiler.Compiler
	Runner       *sandbox.Runner
	Config       *config.Config
	Log          *logrus.Logger
	ToolsVersion string
	HostTriple   string

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	inFlight waitgroup.WaitGroup[string]
}

// NewOrchestrator wires together the compiler and sandbox runner behind
// the host's configuration. l may be nil, in which case the
// package-global logger is used.
func NewOrchestrator(cfg *config.Config, toolsVersion string, l *logrus.Logger) *Orchestrator {
	if l == nil {
		l = log.L
	}
	return &Orchestrator{
		Compiler:     compiler.New(cfg.CacheDir, cfg.GoModCache, l),
		Runner:       sandbox.NewRunner(l),
		Config:       cfg,
		Log:          l,
		ToolsVersion: toolsVersion,
		HostTriple:   compiler.HostTriple(),
		locks:        make(map[string]*sync.Mutex),
	}
}

// textSink accumulates stderr lines from one invocation into an
// in-memory buffer, since the orchestrator attaches diagnostics to the
// per-invocation result rather than streaming to a caller-owned sink.
type textSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *textSink) Write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *textSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Run implements the algorithm of spec.md §4.E: for each of targets (in
// name-sorted order), collect its plugin dependencies, resolve their
// accessible tools, and invoke each plugin, returning a per-target
// ordered list of per-plugin results.
func (o *Orchestrator) Run(ctx context.Context, pkg *pkggraph.PackageNode, targets []*pkggraph.TargetNode) (map[*pkggraph.TargetNode][]InvocationResult, error) {
	ordered := append([]*pkggraph.TargetNode(nil), targets...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	results := make(map[*pkggraph.TargetNode][]InvocationResult, len(ordered))
	var resultsMu sync.Mutex

	limit := o.Config.MaxParallelInvocations
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, target := range ordered {
		target := target
		plugins := target.PluginDependencies()
		if len(plugins) == 0 {
			continue
		}

		perTarget := make([]InvocationResult, len(plugins))
		results[target] = perTarget

		for i, plugin := range plugins {
			i, plugin := i, plugin
			g.Go(func() error {
				res := o.invokeOne(gctx, pkg, target, plugin)
				resultsMu.Lock()
				perTarget[i] = res
				resultsMu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// invokeOne runs the five numbered steps of spec.md §4.E for one
// (target, plugin) pair. Errors are attached to the returned
// InvocationResult rather than propagated, so one failing plugin never
// aborts its siblings.
func (o *Orchestrator) invokeOne(ctx context.Context, pkg *pkggraph.PackageNode, target, plugin *pkggraph.TargetNode) InvocationResult {
	result := InvocationResult{Plugin: plugin}

	builtDir := filepath.Join(o.Config.WorkDir, graph.PackageIdentity(pkg), "built")

	toolPaths, err := o.resolveTools(plugin, builtDir)
	if err != nil {
		result.Err = err
		return result
	}

	workDir := filepath.Join(o.Config.WorkDir, graph.PackageIdentity(pkg), target.Name, plugin.Name)
	if err := ensureDir(workDir); err != nil {
		result.Err = &pherr.WorkDirectoryCreationFailed{Path: workDir, Cause: err}
		return result
	}

	input, err := graph.SerializeBuildToolAction(pkg, workDir, builtDir, toolPaths, target)
	if err != nil {
		result.Err = err
		return result
	}

	compileResult, err := o.compilePlugin(ctx, plugin)
	if err != nil {
		result.Err = err
		return result
	}
	if compileResult.Executable == "" {
		result.Err = &pherr.CompilationFailed{Command: []string{"go", "build"}, Raw: compileResult.Raw}
		return result
	}

	sink := &textSink{}
	output, err := o.Runner.Invoke(ctx, compileResult.Executable, []string{workDir, filepath.Dir(compileResult.Executable)}, input, sink, nil)
	if err != nil {
		result.Err = err
		result.Text = sink.Lines()
		return result
	}

	result.BuildCommands = promoteCommands(output.BuildCommands, workDir)
	result.PrebuildCommands = output.PrebuildCommands
	result.UserCommands = output.UserCommands
	result.Diagnostics = output.Diagnostics
	result.Success = output.Success
	result.Text = sink.Lines()

	return result
}

// compilePlugin serializes concurrent compilations of the same plugin
// behind a per-plugin mutex, so two targets sharing a plugin never race
// the same cache directory entry.
func (o *Orchestrator) compilePlugin(ctx context.Context, plugin *pkggraph.TargetNode) (*compiler.CompilationResult, error) {
	key := plugin.Directory + "/" + plugin.Name

	o.mu.Lock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	o.mu.Unlock()

	o.inFlight.Add(key)
	defer o.inFlight.Done(key)

	lock.Lock()
	defer lock.Unlock()

	sources := make([]string, 0, len(plugin.PluginSources))
	for _, f := range plugin.PluginSources {
		sources = append(sources, filepath.Join(f.Directory, f.Name))
	}

	return o.Compiler.Compile(ctx, sources, o.ToolsVersion)
}

// resolveTools implements spec.md §4.E's tool-accessibility rule: for
// each of the plugin's own dependency edges naming a binary target, the
// tool is vended from that target's artifact archive; for an edge
// naming an executable target, the tool is built and lives under the
// built-products directory, so its relative path is joined onto builtDir
// (pkggraph.TargetNode.ArtifactPath doubles as "archive path" for
// binary targets and "relative path under builtDir" for executable
// targets).
func (o *Orchestrator) resolveTools(plugin *pkggraph.TargetNode, builtDir string) (map[string]string, error) {
	tools := make(map[string]string)

	for _, dep := range plugin.Deps {
		if dep.Kind != pkggraph.DependencyKindTarget {
			continue
		}

		switch dep.Target.Kind {
		case pkggraph.TargetKindBinaryLibrary:
			path, err := archive.ExtractVendedTool(dep.Target.ArtifactPath, o.HostTriple, dep.Target.Name)
			if err != nil {
				return nil, fmt.Errorf("resolving vended tool %q: %w", dep.Target.Name, err)
			}
			tools[dep.Target.Name] = path
		case pkggraph.TargetKindExecutable:
			path := dep.Target.ArtifactPath
			if !filepath.IsAbs(path) {
				path = filepath.Join(builtDir, path)
			}
			tools[dep.Target.Name] = path
		}
	}

	return tools, nil
}

// promoteCommands rewrites each BuildCommand's relative inputs/outputs
// to absolute paths under workDir, per spec.md §4.E step 5.
func promoteCommands(cmds []wire.BuildCommand, workDir string) []wire.BuildCommand {
	out := make([]wire.BuildCommand, len(cmds))
	for i, c := range cmds {
		out[i] = wire.BuildCommand{
			Config:  c.Config,
			Inputs:  promotePaths(c.Inputs, workDir),
			Outputs: promotePaths(c.Outputs, workDir),
		}
	}
	return out
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func promotePaths(paths []string, base string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = p
		} else {
			out[i] = filepath.Join(base, p)
		}
	}
	return out
}
