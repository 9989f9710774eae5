// SPDX-License-Identifier: BSD-3-Clause
package compiler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pluginhost.sh/compiler"
)

// writeSource creates a minimal, syntactically valid Go source file so
// fingerprinting has real bytes to hash; whether the build itself
// succeeds does not matter here -- idempotency only concerns the cache
// directory layout and repeatability of the result, not a successful
// build.
func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCompileIsIdempotent(t *testing.T) {
	srcDir := t.TempDir()
	cacheDir := t.TempDir()

	src := writeSource(t, srcDir, "plugin.go", "package main\n\nfunc main() {}\n")

	c := compiler.New(cacheDir, "", nil)

	first, err := c.Compile(context.Background(), []string{src}, "1.0.0")
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := c.Compile(context.Background(), []string{src}, "1.0.0")
	require.NoError(t, err)

	require.Equal(t, first.DiagnosticsFile, second.DiagnosticsFile)
	require.Equal(t, first.Executable, second.Executable)
}

func TestCompileFingerprintChangesWithSource(t *testing.T) {
	srcDir := t.TempDir()
	cacheDir := t.TempDir()

	srcA := writeSource(t, srcDir, "a.go", "package main\n\nfunc main() {}\n")
	srcB := writeSource(t, srcDir, "b.go", "package main\n\nfunc main() { println(1) }\n")

	c := compiler.New(cacheDir, "", nil)

	resA, err := c.Compile(context.Background(), []string{srcA}, "1.0.0")
	require.NoError(t, err)

	resB, err := c.Compile(context.Background(), []string{srcB}, "1.0.0")
	require.NoError(t, err)

	require.NotEqual(t, filepath.Dir(resA.DiagnosticsFile), filepath.Dir(resB.DiagnosticsFile))
}

func TestHostTripleStable(t *testing.T) {
	require.Equal(t, compiler.HostTriple(), compiler.HostTriple())
}
