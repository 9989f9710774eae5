// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Package compiler turns a plugin's source files into a host executable.
// The plugin language is the host's own toolchain, so compilation shells
// out to `go build` the way any invocation in this codebase shells out to
// an external tool -- via exec.Process, never os/exec directly.
package compiler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"pluginhost.sh/exec"
	"pluginhost.sh/log"
	"pluginhost.sh/pherr"
)

const (
	compiledPluginName = "compiled-plugin"
	diagnosticsName     = "diagnostics.dia"
)

// CompilationResult is what Compile returns for one plugin source set.
// Executable is empty when the build failed; Raw always carries the
// compiler's combined stdout/stderr for error reporting.
type CompilationResult struct {
	Executable      string
	DiagnosticsFile string
	Raw             string
	CacheHit        bool
}

// Compiler drives `go build` invocations for plugin sources, caching
// compiled binaries under CacheDir keyed by source fingerprint.
type Compiler struct {
	CacheDir   string
	GoModCache string
	Log        *logrus.Logger
}

// New prepares a Compiler. l may be nil, in which case the package-global
// logger is used.
func New(cacheDir, goModCache string, l *logrus.Logger) *Compiler {
	if l == nil {
		l = log.L
	}
	return &Compiler{
		CacheDir:   cacheDir,
		GoModCache: goModCache,
		Log:        l,
	}
}

var (
	hostTripleOnce sync.Once
	hostTriple     string
)

// HostTriple returns the GOOS/GOARCH pair this process is running on,
// computed once and memoized process-wide.
func HostTriple() string {
	hostTripleOnce.Do(func() {
		hostTriple = fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
	})
	return hostTriple
}

// fingerprint hashes the sorted source contents together with the
// tools-version string and the host triple, so a change to any one of
// them invalidates the cache entry.
func fingerprint(sources []string, toolsVersion string) (string, error) {
	sorted := append([]string(nil), sources...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, src := range sorted {
		data, err := os.ReadFile(src)
		if err != nil {
			return "", fmt.Errorf("reading plugin source %q: %w", src, err)
		}
		fmt.Fprintf(h, "path:%s\n", src)
		h.Write(data)
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "toolsVersion:%s\n", toolsVersion)
	fmt.Fprintf(h, "hostTriple:%s\n", HostTriple())

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compile builds a plugin host executable from sources, reusing a cached
// binary when one already exists for this exact (sources, toolsVersion,
// hostTriple) combination. Compile only fails if the compiler itself
// could not be launched or the cache directory could not be prepared; a
// failed `go build` is reported through CompilationResult instead.
func (c *Compiler) Compile(ctx context.Context, sources []string, toolsVersion string) (*CompilationResult, error) {
	if len(sources) == 0 {
		return nil, &pherr.StructuralError{Message: "compiler: no plugin sources given"}
	}

	fp, err := fingerprint(sources, toolsVersion)
	if err != nil {
		return nil, err
	}

	entryDir := filepath.Join(c.CacheDir, fp)
	binPath := filepath.Join(entryDir, compiledPluginName)
	diagPath := filepath.Join(entryDir, diagnosticsName)

	if _, err := os.Stat(binPath); err == nil {
		raw, _ := os.ReadFile(diagPath)
		return &CompilationResult{
			Executable:      binPath,
			DiagnosticsFile: diagPath,
			Raw:             string(raw),
			CacheHit:        true,
		}, nil
	}

	if err := os.MkdirAll(entryDir, 0o755); err != nil {
		return nil, &pherr.WorkDirectoryCreationFailed{Path: entryDir, Cause: err}
	}

	args := []string{
		"build",
		"-json",
		"-trimpath",
		"-ldflags", fmt.Sprintf("-X pluginhost.sh/pluginapi.toolsVersion=%s", toolsVersion),
		"-o", binPath,
	}
	args = append(args, sources...)

	env := []string{"GOOS=" + runtime.GOOS, "GOARCH=" + runtime.GOARCH, "GOFLAGS=-trimpath"}
	if c.GoModCache != "" {
		env = append(env, "GOMODCACHE="+c.GoModCache)
	}

	var combined bytes.Buffer

	eopts := []exec.ExecOption{
		exec.WithContext(ctx),
		exec.WithStdout(&combined),
		exec.WithStderr(&combined),
		exec.WithLogger(c.Log),
	}
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				eopts = append(eopts, exec.WithEnvKey(kv[:i], kv[i+1:]))
				break
			}
		}
	}

	proc, err := exec.NewProcess("go", args, eopts...)
	if err != nil {
		return nil, &pherr.SubprocessDidNotStart{Message: "could not prepare go build invocation", Command: append([]string{"go"}, args...), Cause: err}
	}

	if err := proc.Start(); err != nil {
		return nil, &pherr.SubprocessDidNotStart{Message: "could not launch go build", Command: append([]string{"go"}, args...), Cause: err}
	}

	runErr := proc.Wait()

	raw := combined.Bytes()
	if werr := os.WriteFile(diagPath, raw, 0o644); werr != nil {
		c.Log.WithError(werr).Warn("compiler: could not persist diagnostics file")
	}

	result := &CompilationResult{
		DiagnosticsFile: diagPath,
		Raw:             string(raw),
	}

	if runErr != nil {
		// go build itself ran and failed (non-zero exit): report via the
		// result, not an error return, so callers can surface diagnostics.
		if _, statErr := os.Stat(binPath); statErr != nil {
			return result, nil
		}
	}

	if _, statErr := os.Stat(binPath); statErr == nil {
		result.Executable = binPath
	}

	return result, nil
}

