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

// Package wire defines the flattened, ID-based package-graph representation
// and the host/plugin message protocol exchanged over framed stdio. Every
// polymorphic case (target info, product info, action, dependency, message
// kind) is a tagged union carried by a Kind discriminator field, never a
// bare interface{} blob. Message alone has an explicit
// MarshalJSON/UnmarshalJSON pair, which rejects an unknown kind; the other
// unions decode through plain struct tags, and an unknown kind in them is
// not rejected.
package wire

// PathId, TargetId, ProductId and PackageId are small non-negative
// integers, valid only within a single Input -- the "wire ID" of the
// glossary. A Target's files are embedded directly as File records (the
// Input has no separate top-level file array to index into), so no
// FileId type exists.
type (
	PathId    int
	TargetId  int
	ProductId int
	PackageId int
)

// Path is a (base, subpath) pair. A nil Base means path is a root.
type Path struct {
	Base    *PathId `json:"base,omitempty"`
	Subpath string  `json:"subpath"`
}

// FileKind discriminates a File's role within a target.
type FileKind string

const (
	FileKindSource   FileKind = "source"
	FileKindHeader   FileKind = "header"
	FileKindResource FileKind = "resource"
	FileKindUnknown  FileKind = "unknown"
)

// File is one source/header/resource/unknown file, relative to Base.
type File struct {
	Base PathId   `json:"base"`
	Name string   `json:"name"`
	Kind FileKind `json:"kind"`
}

// DependencyKind discriminates whether a Dependency names a Target or a
// Product.
type DependencyKind string

const (
	DependencyKindTarget  DependencyKind = "target"
	DependencyKindProduct DependencyKind = "product"
)

// Dependency is a tagged union over {TargetDep, ProductDep}.
type Dependency struct {
	Kind      DependencyKind `json:"kind"`
	TargetId  *TargetId      `json:"targetId,omitempty"`
	ProductId *ProductId     `json:"productId,omitempty"`
}

// TargetInfoKind discriminates a Target's kind-specific payload.
type TargetInfoKind string

const (
	TargetInfoSourceModule  TargetInfoKind = "sourceModule"
	TargetInfoBinaryLibrary TargetInfoKind = "binaryLibrary"
	TargetInfoSystemLibrary TargetInfoKind = "systemLibrary"
)

// TargetInfo is the tagged union `{ SourceModule | BinaryLibrary |
// SystemLibrary }` of spec.md's Target.info field.
type TargetInfo struct {
	Kind TargetInfoKind `json:"kind"`

	// SourceModule fields.
	ModuleName       string  `json:"moduleName,omitempty"`
	PublicHeadersDir *PathId `json:"publicHeadersDir,omitempty"`
	Files            []File  `json:"files,omitempty"`

	// BinaryLibrary fields.
	Path *PathId `json:"path,omitempty"`

	// SystemLibrary fields (reuses PublicHeadersDir above).
}

// Target is one node of the wire graph's target array.
type Target struct {
	Name      string       `json:"name"`
	Directory PathId       `json:"directory"`
	Deps      []Dependency `json:"deps"`
	Info      TargetInfo   `json:"info"`
}

// ProductInfoKind discriminates a Product's kind-specific payload.
type ProductInfoKind string

const (
	ProductInfoExecutable ProductInfoKind = "executable"
	ProductInfoLibrary    ProductInfoKind = "library"
)

// LibraryKind discriminates Library{kind}.
type LibraryKind string

const (
	LibraryKindStatic    LibraryKind = "static"
	LibraryKindDynamic   LibraryKind = "dynamic"
	LibraryKindAutomatic LibraryKind = "automatic"
)

// ProductInfo is the tagged union `{ Executable{mainTarget} |
// Library{kind} }` of spec.md's Product.info field.
type ProductInfo struct {
	Kind ProductInfoKind `json:"kind"`

	MainTarget  *TargetId   `json:"mainTarget,omitempty"`
	LibraryKind LibraryKind `json:"libraryKind,omitempty"`
}

// Product is one node of the wire graph's product array.
type Product struct {
	Name    string      `json:"name"`
	Targets []TargetId  `json:"targets"`
	Info    ProductInfo `json:"info"`
}

// Package is one node of the wire graph's package array.
type Package struct {
	Name         string      `json:"name"`
	Directory    PathId      `json:"directory"`
	Dependencies []PackageId `json:"dependencies"`
	Products     []ProductId `json:"products"`
	Targets      []TargetId  `json:"targets"`
}

// ActionKind discriminates the plugin action tagged union.
type ActionKind string

const (
	ActionKindCreateBuildToolCommands ActionKind = "createBuildToolCommands"
	ActionKindPerformUserCommand      ActionKind = "performUserCommand"
)

// Action is the tagged union `{ CreateBuildToolCommands{target} |
// PerformUserCommand{targets, arguments} }`.
type Action struct {
	Kind ActionKind `json:"kind"`

	// CreateBuildToolCommands.
	Target *TargetId `json:"target,omitempty"`

	// PerformUserCommand.
	Targets   []TargetId `json:"targets,omitempty"`
	Arguments []string   `json:"arguments,omitempty"`
}

// Input is the top-level object the host serializes and the plugin
// decodes: `paths, targets, products, packages, rootPackageId,
// pluginWorkDirId, builtProductsDirId, toolNamesToPathIds, pluginAction`.
type Input struct {
	Paths    []Path    `json:"paths"`
	Targets  []Target  `json:"targets"`
	Products []Product `json:"products"`
	Packages []Package `json:"packages"`

	RootPackageId      PackageId         `json:"rootPackageId"`
	PluginWorkDirId    PathId            `json:"pluginWorkDirId"`
	BuiltProductsDirId PathId            `json:"builtProductsDirId"`
	ToolNamesToPathIds map[string]PathId `json:"toolNamesToPathIds"`
	PluginAction       Action            `json:"pluginAction"`
}

// Severity discriminates a Diagnostic's level.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityRemark  Severity = "remark"
)

// Diagnostic is a plugin-emitted diagnostic, attached to the invocation
// result and never forwarded to the host's own log sink.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
	Line     *int     `json:"line,omitempty"`
}

// CommandConfig is the command-line shape shared by BuildCommand and
// PrebuildCommand.
type CommandConfig struct {
	DisplayName      string            `json:"displayName"`
	Executable       string            `json:"executable"`
	Arguments        []string          `json:"arguments"`
	Environment      map[string]string `json:"environment"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
}

// BuildCommand is a `DefineBuildCommand` record.
type BuildCommand struct {
	Config  CommandConfig `json:"config"`
	Inputs  []string      `json:"inputs"`
	Outputs []string      `json:"outputs"`
}

// PrebuildCommand is a `DefinePrebuildCommand` record.
type PrebuildCommand struct {
	Config               CommandConfig `json:"config"`
	OutputFilesDirectory string        `json:"outputFilesDirectory"`
}

// UserCommand is the result of a `PerformUserCommand` action: command
// only, no declared inputs/outputs.
type UserCommand struct {
	Config CommandConfig `json:"config"`
}

// Output is the host-side accumulation of one invocation's results,
// assembled as the plugin emits DefineBuildCommand / DefinePrebuildCommand
// / EmitDiagnostic messages, in emission order within each category.
type Output struct {
	BuildCommands    []BuildCommand    `json:"buildCommands"`
	PrebuildCommands []PrebuildCommand `json:"prebuildCommands"`
	UserCommands     []UserCommand     `json:"userCommands"`
	Diagnostics      []Diagnostic      `json:"diagnostics"`
	Success          bool              `json:"success"`
}
