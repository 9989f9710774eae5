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

// Package graph walks a pkggraph.PackageNode DAG depth-first, memoizing by
// identity, and produces a wire.Input with deduplicated, ID-based
// cross-references -- the "graph serializer" of spec.md §4.B. The
// traversal style mirrors unikraft/component's own Dependencies()
// walk; the identity-keyed memoization and path parent-first ID-ification
// are this package's own addition, layered on top for the wire
// boundary.
package graph

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"pluginhost.sh/pherr"
	"pluginhost.sh/pkggraph"
	"pluginhost.sh/wire"
)

// Serializer holds the identity-keyed memoization tables for one
// serialize() call. A Serializer is not safe for concurrent reuse across
// calls; SerializeBuildToolAction and SerializeUserCommandAction each
// construct a fresh one per invocation.
type Serializer struct {
	input *wire.Input

	pathIds    map[string]wire.PathId
	targetIds  map[*pkggraph.TargetNode]wire.TargetId
	productIds map[*pkggraph.ProductNode]wire.ProductId
	packageIds map[*pkggraph.PackageNode]wire.PackageId

	inProgress       map[*pkggraph.PackageNode]bool
	targetInProgress map[*pkggraph.TargetNode]bool
}

func newSerializer() *Serializer {
	return &Serializer{
		input: &wire.Input{
			ToolNamesToPathIds: map[string]wire.PathId{},
		},
		pathIds:          map[string]wire.PathId{},
		targetIds:        map[*pkggraph.TargetNode]wire.TargetId{},
		productIds:       map[*pkggraph.ProductNode]wire.ProductId{},
		packageIds:       map[*pkggraph.PackageNode]wire.PackageId{},
		inProgress:       map[*pkggraph.PackageNode]bool{},
		targetInProgress: map[*pkggraph.TargetNode]bool{},
	}
}

// serializeGraph flattens root, workDir, builtDir and toolPaths into s's
// Input, leaving PluginAction unset -- the caller fills it in via
// ResolveCreateBuildToolCommands or ResolvePerformUserCommand so target
// references in the action are resolved against the same identity tables
// as the rest of the graph.
func (s *Serializer) serializeGraph(root *pkggraph.PackageNode, workDir, builtDir string, toolPaths map[string]string) error {
	rootId, err := s.serializePackage(root)
	if err != nil {
		return err
	}
	s.input.RootPackageId = rootId

	s.input.PluginWorkDirId = s.serializePath(workDir)
	s.input.BuiltProductsDirId = s.serializePath(builtDir)

	names := make([]string, 0, len(toolPaths))
	for name := range toolPaths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.input.ToolNamesToPathIds[name] = s.serializePath(toolPaths[name])
	}

	return nil
}

// SerializeBuildToolAction builds the Input for a CreateBuildToolCommands
// action against target.
func SerializeBuildToolAction(root *pkggraph.PackageNode, workDir, builtDir string, toolPaths map[string]string, target *pkggraph.TargetNode) (*wire.Input, error) {
	s := newSerializer()

	if err := s.serializeGraph(root, workDir, builtDir, toolPaths); err != nil {
		return nil, err
	}

	action, err := s.ResolveCreateBuildToolCommands(target)
	if err != nil {
		return nil, err
	}
	s.input.PluginAction = action

	return s.input, nil
}

// SerializeUserCommandAction builds the Input for a PerformUserCommand
// action against targets.
func SerializeUserCommandAction(root *pkggraph.PackageNode, workDir, builtDir string, toolPaths map[string]string, targets []*pkggraph.TargetNode, arguments []string) (*wire.Input, error) {
	s := newSerializer()

	if err := s.serializeGraph(root, workDir, builtDir, toolPaths); err != nil {
		return nil, err
	}

	action, err := s.ResolvePerformUserCommand(targets, arguments)
	if err != nil {
		return nil, err
	}
	s.input.PluginAction = action

	return s.input, nil
}

// serializePath ID-ifies p's parent directory first (unless p is already
// the filesystem root), then appends a record storing only the
// basename as subpath -- guaranteeing any two paths with a common
// ancestor share that ancestor's ID (spec.md §4.B, property 2 of §8).
func (s *Serializer) serializePath(p string) wire.PathId {
	p = filepath.Clean(p)

	if id, ok := s.pathIds[p]; ok {
		return id
	}

	parent := filepath.Dir(p)
	base := filepath.Base(p)

	var rec wire.Path
	if parent == p || parent == "." || parent == string(filepath.Separator) && base == string(filepath.Separator) {
		// p is the filesystem root: no base, subpath is the root itself.
		rec = wire.Path{Subpath: p}
	} else {
		parentId := s.serializePath(parent)
		rec = wire.Path{Base: &parentId, Subpath: base}
	}

	id := wire.PathId(len(s.input.Paths))
	s.input.Paths = append(s.input.Paths, rec)
	s.pathIds[p] = id

	return id
}

func (s *Serializer) serializePackage(pkg *pkggraph.PackageNode) (wire.PackageId, error) {
	if id, ok := s.packageIds[pkg]; ok {
		return id, nil
	}

	if s.inProgress[pkg] {
		return 0, &pherr.StructuralError{Message: fmt.Sprintf("cycle detected at package %q", pkg.Name)}
	}
	s.inProgress[pkg] = true
	defer delete(s.inProgress, pkg)

	deps := make([]wire.PackageId, 0, len(pkg.Dependencies))
	for _, d := range pkg.Dependencies {
		depId, err := s.serializePackage(d)
		if err != nil {
			return 0, err
		}
		deps = append(deps, depId)
	}

	targets := make([]wire.TargetId, 0, len(pkg.Targets))
	for _, t := range pkg.Targets {
		tid, ok, err := s.serializeTarget(t)
		if err != nil {
			return 0, err
		}
		if ok {
			targets = append(targets, tid)
		}
	}

	products := make([]wire.ProductId, 0, len(pkg.Products))
	for _, p := range pkg.Products {
		pid, err := s.serializeProduct(p)
		if err != nil {
			return 0, err
		}
		products = append(products, pid)
	}

	rec := wire.Package{
		Name:         pkg.Name,
		Directory:    s.serializePath(pkg.Directory),
		Dependencies: deps,
		Products:     products,
		Targets:      targets,
	}

	id := wire.PackageId(len(s.input.Packages))
	s.input.Packages = append(s.input.Packages, rec)
	s.packageIds[pkg] = id

	return id, nil
}

// serializeTarget returns (id, true, nil) for a supported target kind, or
// (_, false, nil) for TargetKindUnsupported -- the "not serialized" case
// of spec.md §3 whose dependents drop the reference rather than fake it.
func (s *Serializer) serializeTarget(t *pkggraph.TargetNode) (wire.TargetId, bool, error) {
	if id, ok := s.targetIds[t]; ok {
		return id, true, nil
	}

	if t.Kind == pkggraph.TargetKindUnsupported {
		return 0, false, nil
	}

	if s.targetInProgress[t] {
		return 0, false, &pherr.StructuralError{Message: fmt.Sprintf("cycle detected at target %q", t.Name)}
	}
	s.targetInProgress[t] = true
	defer delete(s.targetInProgress, t)

	deps := make([]wire.Dependency, 0, len(t.Deps))
	for _, d := range t.Deps {
		switch d.Kind {
		case pkggraph.DependencyKindTarget:
			depId, ok, err := s.serializeTarget(d.Target)
			if err != nil {
				return 0, false, err
			}
			if !ok {
				continue
			}
			id := depId
			deps = append(deps, wire.Dependency{Kind: wire.DependencyKindTarget, TargetId: &id})
		case pkggraph.DependencyKindProduct:
			depId, err := s.serializeProduct(d.Product)
			if err != nil {
				return 0, false, err
			}
			id := depId
			deps = append(deps, wire.Dependency{Kind: wire.DependencyKindProduct, ProductId: &id})
		}
	}

	info, err := s.serializeTargetInfo(t)
	if err != nil {
		return 0, false, err
	}

	rec := wire.Target{
		Name:      t.Name,
		Directory: s.serializePath(t.Directory),
		Deps:      deps,
		Info:      info,
	}

	id := wire.TargetId(len(s.input.Targets))
	s.input.Targets = append(s.input.Targets, rec)
	s.targetIds[t] = id

	return id, true, nil
}

// serializeFileRecords concatenates files in source, resource, unknown
// order (header files pass through under their own declared kind,
// immediately after sources), per spec.md §4.B, and resolves each file's
// directory to a PathId via s.
func (s *Serializer) serializeFileRecords(files []pkggraph.FileRef) []wire.File {
	order := map[pkggraph.FileKind]int{
		pkggraph.FileKindSource:   0,
		pkggraph.FileKindHeader:   1,
		pkggraph.FileKindResource: 2,
		pkggraph.FileKindUnknown:  3,
	}

	sorted := make([]pkggraph.FileRef, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return order[sorted[i].Kind] < order[sorted[j].Kind]
	})

	out := make([]wire.File, len(sorted))
	for i, f := range sorted {
		out[i] = wire.File{
			Base: s.serializePath(f.Directory),
			Name: f.Name,
			Kind: wire.FileKind(f.Kind),
		}
	}

	return out
}

func (s *Serializer) serializeTargetInfo(t *pkggraph.TargetNode) (wire.TargetInfo, error) {
	switch t.Kind {
	case pkggraph.TargetKindSourceModule, pkggraph.TargetKindPlugin:
		files := t.Files
		if t.Kind == pkggraph.TargetKindPlugin {
			files = t.PluginSources
		}

		info := wire.TargetInfo{
			Kind:       wire.TargetInfoSourceModule,
			ModuleName: t.ModuleName,
			Files:      s.serializeFileRecords(files),
		}
		if t.PublicHeadersDir != "" {
			id := s.serializePath(t.PublicHeadersDir)
			info.PublicHeadersDir = &id
		}
		return info, nil

	case pkggraph.TargetKindBinaryLibrary:
		id := s.serializePath(t.ArtifactPath)
		return wire.TargetInfo{Kind: wire.TargetInfoBinaryLibrary, Path: &id}, nil

	case pkggraph.TargetKindSystemLibrary:
		info := wire.TargetInfo{Kind: wire.TargetInfoSystemLibrary}
		if t.PublicHeadersDir != "" {
			id := s.serializePath(t.PublicHeadersDir)
			info.PublicHeadersDir = &id
		}
		return info, nil

	case pkggraph.TargetKindExecutable:
		// Executables carry source-module-shaped info (their own sources);
		// the "executable-ness" is recorded on the owning Product, not here.
		return wire.TargetInfo{Kind: wire.TargetInfoSourceModule, ModuleName: t.ModuleName, Files: s.serializeFileRecords(t.Files)}, nil

	default:
		return wire.TargetInfo{}, &pherr.StructuralError{Message: fmt.Sprintf("target %q has unsupported kind %q", t.Name, t.Kind)}
	}
}

func (s *Serializer) serializeProduct(p *pkggraph.ProductNode) (wire.ProductId, error) {
	if id, ok := s.productIds[p]; ok {
		return id, nil
	}

	targetIds := make([]wire.TargetId, 0, len(p.Targets))
	var mainTargets []wire.TargetId

	for _, t := range p.Targets {
		tid, ok, err := s.serializeTarget(t)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		targetIds = append(targetIds, tid)
		if t.Kind == pkggraph.TargetKindExecutable {
			mainTargets = append(mainTargets, tid)
		}
	}

	info := wire.ProductInfo{}
	switch p.Kind {
	case pkggraph.ProductKindExecutable:
		if len(mainTargets) != 1 {
			return 0, &pherr.StructuralError{
				Message: fmt.Sprintf("product %q must have exactly one executable target, found %d", p.Name, len(mainTargets)),
			}
		}
		info.Kind = wire.ProductInfoExecutable
		main := mainTargets[0]
		info.MainTarget = &main
	case pkggraph.ProductKindLibrary:
		info.Kind = wire.ProductInfoLibrary
		info.LibraryKind = wire.LibraryKind(p.LibraryKind)
	default:
		return 0, &pherr.StructuralError{Message: fmt.Sprintf("product %q has unsupported kind %q", p.Name, p.Kind)}
	}

	rec := wire.Product{Name: p.Name, Targets: targetIds, Info: info}

	id := wire.ProductId(len(s.input.Products))
	s.input.Products = append(s.input.Products, rec)
	s.productIds[p] = id

	return id, nil
}

// ResolveCreateBuildToolCommands builds the wire.Action for "run this
// plugin's build-tool capability against this target", resolving target
// to its wire ID via the same Serializer used for the rest of the graph.
func (s *Serializer) ResolveCreateBuildToolCommands(target *pkggraph.TargetNode) (wire.Action, error) {
	id, ok, err := s.serializeTarget(target)
	if err != nil {
		return wire.Action{}, err
	}
	if !ok {
		return wire.Action{}, &pherr.StructuralError{Message: fmt.Sprintf("target %q cannot be serialized", target.Name)}
	}
	return wire.Action{Kind: wire.ActionKindCreateBuildToolCommands, Target: &id}, nil
}

// ResolvePerformUserCommand builds the wire.Action for "run this plugin's
// user-command capability against these targets with these arguments".
func (s *Serializer) ResolvePerformUserCommand(targets []*pkggraph.TargetNode, arguments []string) (wire.Action, error) {
	ids := make([]wire.TargetId, 0, len(targets))
	for _, t := range targets {
		id, ok, err := s.serializeTarget(t)
		if err != nil {
			return wire.Action{}, err
		}
		if !ok {
			return wire.Action{}, &pherr.StructuralError{Message: fmt.Sprintf("target %q cannot be serialized", t.Name)}
		}
		ids = append(ids, id)
	}
	return wire.Action{Kind: wire.ActionKindPerformUserCommand, Targets: ids, Arguments: arguments}, nil
}

// PackageIdentity derives a stable per-package directory-safe identity,
// used by session as the first path component of a work directory.
func PackageIdentity(pkg *pkggraph.PackageNode) string {
	if pkg.Identity != "" {
		return pkg.Identity
	}
	return strings.ReplaceAll(pkg.Name, "/", "_")
}
