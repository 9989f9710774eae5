// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.
package archive

import (
	"fmt"
	"path"
	"path/filepath"
)

// ExtractVendedTool reads a binary target's .tar.gz artifact archive and
// extracts the member named "bin/<hostTriple>/<name>", writing it out
// next to the archive and returning its absolute path. It is a thin
// domain wrapper over UntarGz: OnlyMember picks the single entry out of
// the archive and StripComponents(2) drops the "bin/<hostTriple>"
// prefix so it lands directly under the extraction directory.
func ExtractVendedTool(archivePath, hostTriple, name string) (string, error) {
	want := path.Join("bin", hostTriple, name)
	outDir := filepath.Join(filepath.Dir(archivePath), "extracted", hostTriple)

	if err := Unarchive(archivePath, outDir, OnlyMember(want), StripComponents(2)); err != nil {
		return "", fmt.Errorf("could not extract tool %s from %s: %w", want, archivePath, err)
	}

	return filepath.Join(outDir, name), nil
}
