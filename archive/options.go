// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.
package archive

type UnarchiveOptions struct {
	stripComponents int
	onlyMember      string
}

type UnarchiveOption func(uo *UnarchiveOptions) error

func StripComponents(sc int) UnarchiveOption {
	return func(uo *UnarchiveOptions) error {
		if sc < 0 {
			sc = 0
		}

		uo.stripComponents = sc
		return nil
	}
}

// OnlyMember restricts extraction to the single tar entry whose name
// (before StripComponents is applied) equals member, and turns a
// member not found into an error rather than a silent no-op. Used by
// ExtractVendedTool to pull one tool binary out of an archive without
// writing the rest of its contents to disk.
func OnlyMember(member string) UnarchiveOption {
	return func(uo *UnarchiveOptions) error {
		uo.onlyMember = member
		return nil
	}
}
