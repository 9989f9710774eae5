// SPDX-License-Identifier: BSD-3-Clause
package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/graph"
	"pluginhost.sh/pkggraph"
)

func testGraph() (*pkggraph.PackageNode, *pkggraph.TargetNode) {
	shared := &pkggraph.TargetNode{
		Name:      "shared",
		Directory: "/a/b/shared",
		Kind:      pkggraph.TargetKindSourceModule,
		Files: []pkggraph.FileRef{
			{Directory: "/a/b/shared", Name: "shared.go", Kind: pkggraph.FileKindSource},
		},
	}

	leaf := &pkggraph.TargetNode{
		Name:      "leaf",
		Directory: "/a/b/leaf",
		Kind:      pkggraph.TargetKindSourceModule,
		Deps: []pkggraph.Dependency{
			{Kind: pkggraph.DependencyKindTarget, Target: shared},
		},
		Files: []pkggraph.FileRef{
			{Directory: "/a/b/leaf", Name: "leaf.go", Kind: pkggraph.FileKindSource},
		},
	}

	other := &pkggraph.TargetNode{
		Name:      "other",
		Directory: "/a/b/other",
		Kind:      pkggraph.TargetKindSourceModule,
		Deps: []pkggraph.Dependency{
			{Kind: pkggraph.DependencyKindTarget, Target: shared},
		},
	}

	pkg := &pkggraph.PackageNode{
		Name:      "demo",
		Directory: "/a/b",
		Identity:  "demo",
		Targets:   []*pkggraph.TargetNode{shared, leaf, other},
	}

	return pkg, leaf
}

func TestSerializeDeterministic(t *testing.T) {
	pkg, leaf := testGraph()

	in1, err := graph.SerializeBuildToolAction(pkg, "/work", "/built", nil, leaf)
	require.NoError(t, err)

	in2, err := graph.SerializeBuildToolAction(pkg, "/work", "/built", nil, leaf)
	require.NoError(t, err)

	require.Equal(t, in1, in2)
}

func TestSerializePathDedup(t *testing.T) {
	pkg, leaf := testGraph()

	in, err := graph.SerializeBuildToolAction(pkg, "/work", "/built", nil, leaf)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, p := range in.Paths {
		key := p.Subpath
		if p.Base != nil {
			key = in.Paths[*p.Base].Subpath + "/" + p.Subpath
		}
		seen[key]++
	}

	for path, count := range seen {
		require.Equalf(t, 1, count, "path %q serialized more than once", path)
	}
}

func TestSerializeCycleFails(t *testing.T) {
	a := &pkggraph.PackageNode{Name: "a", Directory: "/a"}
	b := &pkggraph.PackageNode{Name: "b", Directory: "/b"}
	a.Dependencies = []*pkggraph.PackageNode{b}
	b.Dependencies = []*pkggraph.PackageNode{a}

	target := &pkggraph.TargetNode{Name: "t", Directory: "/a", Kind: pkggraph.TargetKindSourceModule}
	a.Targets = []*pkggraph.TargetNode{target}

	_, err := graph.SerializeBuildToolAction(a, "/work", "/built", nil, target)
	require.Error(t, err)
}

func TestSerializeTargetCycleFails(t *testing.T) {
	x := &pkggraph.TargetNode{Name: "x", Directory: "/a", Kind: pkggraph.TargetKindSourceModule}
	y := &pkggraph.TargetNode{Name: "y", Directory: "/a", Kind: pkggraph.TargetKindSourceModule}
	x.Deps = []pkggraph.Dependency{{Kind: pkggraph.DependencyKindTarget, Target: y}}
	y.Deps = []pkggraph.Dependency{{Kind: pkggraph.DependencyKindTarget, Target: x}}

	pkg := &pkggraph.PackageNode{Name: "p", Directory: "/a", Targets: []*pkggraph.TargetNode{x, y}}

	_, err := graph.SerializeBuildToolAction(pkg, "/work", "/built", nil, x)
	require.Error(t, err)
}

func TestSerializeUnsupportedTargetDropped(t *testing.T) {
	unsupported := &pkggraph.TargetNode{Name: "u", Directory: "/a", Kind: pkggraph.TargetKindUnsupported}
	main := &pkggraph.TargetNode{
		Name:      "main",
		Directory: "/a",
		Kind:      pkggraph.TargetKindSourceModule,
		Deps: []pkggraph.Dependency{
			{Kind: pkggraph.DependencyKindTarget, Target: unsupported},
		},
	}
	pkg := &pkggraph.PackageNode{Name: "p", Directory: "/a", Targets: []*pkggraph.TargetNode{main}}

	in, err := graph.SerializeBuildToolAction(pkg, "/work", "/built", nil, main)
	require.NoError(t, err)

	require.Len(t, in.Targets, 1)
	require.Empty(t, in.Targets[0].Deps)
}
