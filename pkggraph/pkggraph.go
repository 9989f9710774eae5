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

// Package pkggraph is the in-memory package graph: the manifest-parsing
// and graph-construction collaborator the plugin host treats as external
// is represented here only by its node shapes, generalized from the
// teacher's unikraft/target and unikraft/component config structs, so a
// caller (or a test fixture) can build the DAG directly without pulling
// in a manifest parser.
package pkggraph

// TargetKind discriminates the category a TargetNode belongs to. Only the
// first five are serializable; TargetKindUnsupported represents the "not
// serialized" case of spec.md §3.
type TargetKind string

const (
	TargetKindSourceModule  TargetKind = "sourceModule"
	TargetKindBinaryLibrary TargetKind = "binaryLibrary"
	TargetKindSystemLibrary TargetKind = "systemLibrary"
	TargetKindPlugin        TargetKind = "plugin"
	TargetKindExecutable    TargetKind = "executable"
	TargetKindUnsupported   TargetKind = "unsupported"
)

// FileKind mirrors wire.FileKind; kept as a distinct type so pkggraph has
// no import-time dependency on the wire encoding.
type FileKind string

const (
	FileKindSource   FileKind = "source"
	FileKindHeader   FileKind = "header"
	FileKindResource FileKind = "resource"
	FileKindUnknown  FileKind = "unknown"
)

// FileRef is one file belonging to a TargetNode, named relative to its
// own directory.
type FileRef struct {
	Directory string
	Name      string
	Kind      FileKind
}

// DependencyKind discriminates whether an edge out of a TargetNode names
// another TargetNode or a ProductNode.
type DependencyKind string

const (
	DependencyKindTarget  DependencyKind = "target"
	DependencyKindProduct DependencyKind = "product"
)

// Dependency is a typed edge out of a TargetNode.
type Dependency struct {
	Kind    DependencyKind
	Target  *TargetNode
	Product *ProductNode
}

// TargetNode is one target within a PackageNode: a source module, a
// binary or system library, a plugin, or an executable.
type TargetNode struct {
	Name      string
	Directory string
	Kind      TargetKind
	Deps      []Dependency

	// SourceModule / fields shared with SystemLibrary.
	ModuleName       string
	PublicHeadersDir string
	Files            []FileRef

	// BinaryLibrary.
	ArtifactPath string

	// Plugin.
	PluginSources []FileRef
}

// ProductKind discriminates a ProductNode's payload.
type ProductKind string

const (
	ProductKindExecutable ProductKind = "executable"
	ProductKindLibrary    ProductKind = "library"
)

// LibraryKind mirrors wire.LibraryKind.
type LibraryKind string

const (
	LibraryKindStatic    LibraryKind = "static"
	LibraryKindDynamic   LibraryKind = "dynamic"
	LibraryKindAutomatic LibraryKind = "automatic"
)

// ProductNode is one product (executable or library) within a
// PackageNode, grouping one or more TargetNodes.
type ProductNode struct {
	Name        string
	Targets     []*TargetNode
	Kind        ProductKind
	LibraryKind LibraryKind
}

// PackageNode is one package: a directory, a set of products and
// targets, and dependencies on other packages. The same PackageNode,
// ProductNode or TargetNode may be reachable from multiple parents; the
// graph serializer is responsible for identity-based deduplication.
type PackageNode struct {
	Name         string
	Directory    string
	Identity     string
	Dependencies []*PackageNode
	Products     []*ProductNode
	Targets      []*TargetNode
}

// PluginDependencies returns the plugin-kind targets reachable from t via
// direct target edges or via product edges (a plugin target grouped into
// one of t's dependency products), in declaration order. This is the
// "direct plugin dependencies" collection of spec.md §4.E.
func (t *TargetNode) PluginDependencies() []*TargetNode {
	var plugins []*TargetNode
	seen := make(map[*TargetNode]bool)

	add := func(n *TargetNode) {
		if n.Kind == TargetKindPlugin && !seen[n] {
			seen[n] = true
			plugins = append(plugins, n)
		}
	}

	for _, d := range t.Deps {
		switch d.Kind {
		case DependencyKindTarget:
			add(d.Target)
		case DependencyKindProduct:
			for _, pt := range d.Product.Targets {
				add(pt)
			}
		}
	}

	return plugins
}
