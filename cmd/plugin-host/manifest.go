// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pluginhost.sh/pkggraph"
)

// manifest is the YAML shape a user hands to plugin-host on the command
// line: one package, one or more build targets, each optionally naming a
// plugin (by directory + source file list) and the tool targets that
// plugin may call. It stands in for a full KConfig-backed project/target
// configuration format, deliberately flattened since nothing downstream
// of pkggraph cares how the graph was built.
type manifest struct {
	Package string           `yaml:"package"`
	Targets []manifestTarget `yaml:"targets"`
}

type manifestTarget struct {
	Name      string             `yaml:"name"`
	Directory string             `yaml:"directory"`
	Sources   []string           `yaml:"sources"`
	Plugin    *manifestPlugin    `yaml:"plugin"`
}

type manifestPlugin struct {
	Name      string       `yaml:"name"`
	Directory string       `yaml:"directory"`
	Sources   []string     `yaml:"sources"`
	Tools     []manifestTool `yaml:"tools"`
}

// manifestTool names one of the plugin's own dependency edges: either a
// vended binary archive ("binary") or an already-built executable's
// relative path under the built-products directory ("executable").
type manifestTool struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

// loadManifest reads path and builds the pkggraph it describes: one
// PackageNode holding one TargetNode per manifestTarget, each with a
// synthesized plugin TargetNode as a direct dependency when the manifest
// names one.
func loadManifest(path string) (*pkggraph.PackageNode, []*pkggraph.TargetNode, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("parsing manifest: %w", err)
	}

	pkg := &pkggraph.PackageNode{
		Name:      m.Package,
		Directory: filepath.Dir(path),
		Identity:  m.Package,
	}

	var targets []*pkggraph.TargetNode

	for _, mt := range m.Targets {
		target := &pkggraph.TargetNode{
			Name:      mt.Name,
			Directory: mt.Directory,
			Kind:      pkggraph.TargetKindSourceModule,
			ModuleName: mt.Name,
			Files:     filesOf(mt.Directory, mt.Sources),
		}

		if mt.Plugin != nil {
			plugin := &pkggraph.TargetNode{
				Name:          mt.Plugin.Name,
				Directory:     mt.Plugin.Directory,
				Kind:          pkggraph.TargetKindPlugin,
				PluginSources: filesOf(mt.Plugin.Directory, mt.Plugin.Sources),
			}

			for _, tool := range mt.Plugin.Tools {
				toolTarget := &pkggraph.TargetNode{Name: tool.Name, ArtifactPath: tool.Path}
				switch tool.Kind {
				case "binary":
					toolTarget.Kind = pkggraph.TargetKindBinaryLibrary
				default:
					toolTarget.Kind = pkggraph.TargetKindExecutable
				}
				plugin.Deps = append(plugin.Deps, pkggraph.Dependency{Kind: pkggraph.DependencyKindTarget, Target: toolTarget})
			}

			target.Deps = append(target.Deps, pkggraph.Dependency{Kind: pkggraph.DependencyKindTarget, Target: plugin})
		}

		pkg.Targets = append(pkg.Targets, target)
		targets = append(targets, target)
	}

	return pkg, targets, nil
}

func filesOf(dir string, names []string) []pkggraph.FileRef {
	files := make([]pkggraph.FileRef, 0, len(names))
	for _, n := range names {
		files = append(files, pkggraph.FileRef{Directory: dir, Name: n, Kind: pkggraph.FileKindSource})
	}
	return files
}
