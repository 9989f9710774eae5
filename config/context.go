// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.
package config

import (
	"context"
)

// contextKey is used to retrieve the config manager from the context.
type contextKey struct{}

// WithConfigManager returns a new context carrying the given config manager.
func WithConfigManager(ctx context.Context, cfgm *ConfigManager) context.Context {
	return context.WithValue(ctx, contextKey{}, cfgm)
}

// M returns the ConfigManager in the context, or a freshly defaulted one if
// none was attached.
func M(ctx context.Context) *ConfigManager {
	v := ctx.Value(contextKey{})

	if v == nil {
		cfgm, _ := NewConfigManager()
		return cfgm
	}

	return v.(*ConfigManager)
}

// G returns the Config in the context, or default values if none was
// attached.
func G(ctx context.Context) *Config {
	return M(ctx).Config
}
