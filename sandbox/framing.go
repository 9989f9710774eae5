// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

package sandbox

import (
	"io"

	"pluginhost.sh/wire"
)

// readFrame and writeFrame delegate to the wire package so the host and
// plugin runtime frame bytes identically; kept as unexported aliases
// here since this package's own code and tests were already written
// against these names.
func readFrame(r io.Reader) ([]byte, error)         { return wire.ReadFrame(r) }
func writeFrame(w io.Writer, payload []byte) error  { return wire.WriteFrame(w, payload) }
