// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package sandbox

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// wrapCommand returns the (bin, args) pair to execute: either the plugin
// executable directly wrapped in a sandbox invocation, or the plugin
// executable unmodified if no native sandbox facility is available.
func wrapCommand(executable string, args, writableDirs []string) (bin string, finalArgs []string, unconfinedReason string) {
	switch runtime.GOOS {
	case "linux":
		if p, err := exec.LookPath("bwrap"); err == nil {
			return bwrapCommand(p, executable, args, writableDirs)
		}
		return executable, args, "bubblewrap (bwrap) not found on PATH"
	case "darwin":
		if p, err := exec.LookPath("sandbox-exec"); err == nil {
			return sandboxExecCommand(p, executable, args, writableDirs)
		}
		return executable, args, "sandbox-exec not found on PATH"
	default:
		return executable, args, fmt.Sprintf("no native sandbox facility for GOOS=%s", runtime.GOOS)
	}
}

// bwrapCommand denies network access and binds writableDirs read-write
// over an otherwise read-only root filesystem.
func bwrapCommand(bwrap, executable string, args, writableDirs []string) (string, []string, string) {
	bargs := []string{
		"--unshare-net",
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--die-with-parent",
	}
	for _, dir := range writableDirs {
		bargs = append(bargs, "--bind", dir, dir)
	}
	bargs = append(bargs, executable)
	bargs = append(bargs, args...)

	return bwrap, bargs, ""
}

// sandboxExecCommand generates a minimal deny-network, allow-listed
// writable-path .sb profile and invokes sandbox-exec with it inline via
// -p, avoiding a temp-file profile the caller would have to clean up.
func sandboxExecCommand(sandboxExec, executable string, args, writableDirs []string) (string, []string, string) {
	var allow strings.Builder
	allow.WriteString("(version 1)\n(deny network*)\n(allow default)\n(deny file-write*)\n")
	for _, dir := range writableDirs {
		fmt.Fprintf(&allow, "(allow file-write* (subpath %q))\n", dir)
	}

	sargs := []string{"-p", allow.String(), executable}
	sargs = append(sargs, args...)

	return sandboxExec, sargs, ""
}
