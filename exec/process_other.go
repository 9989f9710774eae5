//go:build !windows && !darwin

// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.
package exec

import (
	"syscall"
)

func hostAttributes() *syscall.SysProcAttr {
	// Setpgid puts the child in its own process group, so signals sent
	// to the host's process group (such as a terminal interrupt) do not
	// reach it directly. Process.Signal and Process.Kill still signal
	// only the direct child, not the rest of its group.
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
