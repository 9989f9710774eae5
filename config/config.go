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

// Package config holds the plugin host's own ambient configuration: cache
// and work directories, sandboxing toggle, and toolchain environment
// overrides. It is deliberately small next to the graph/session/sandbox
// packages -- none of the values here cross the wire to a plugin.
package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
)

// Config holds every tunable the host consults when compiling and invoking
// plugins. Struct tags drive both the environment feeder (`env`) and the
// YAML feeder (`yaml`); `default` seeds a value absent from either source.
type Config struct {
	// CacheDir holds compiled plugin executables and compiler diagnostics,
	// keyed by fingerprint. Shared across invocations of the same plugin.
	CacheDir string `json:"cache_dir" yaml:"cache_dir,omitempty" env:"PLUGINHOST_CACHE_DIR"`

	// WorkDir is the root under which per-(plugin,target) work directories
	// are created.
	WorkDir string `json:"work_dir" yaml:"work_dir,omitempty" env:"PLUGINHOST_WORK_DIR"`

	// DisableSandbox is loaded from configuration and the environment
	// only: the sandbox runner does not consult it, and nothing sets it
	// automatically. The runner itself runs a plugin unconfined when no
	// sandbox facility is found on PATH.
	DisableSandbox bool `json:"disable_sandbox" yaml:"disable_sandbox" env:"PLUGINHOST_DISABLE_SANDBOX" default:"false"`

	// GoModCache, when set, is forwarded to the plugin compiler as
	// GOMODCACHE (the "module-cache override" of the compiler contract).
	GoModCache string `json:"go_mod_cache" yaml:"go_mod_cache,omitempty" env:"GOMODCACHE"`

	// MaxParallelInvocations bounds the session orchestrator's worker pool.
	MaxParallelInvocations int `json:"max_parallel_invocations" yaml:"max_parallel_invocations" env:"PLUGINHOST_MAX_PARALLEL" default:"4"`

	Log struct {
		Level string `json:"level" yaml:"level" env:"PLUGINHOST_LOG_LEVEL" default:"info"`
		Type  string `json:"type"  yaml:"type"  env:"PLUGINHOST_LOG_TYPE"  default:"fancy"`
	} `json:"log" yaml:"log"`
}

// ConfigDetail documents one configuration key for help/usage output.
type ConfigDetail struct {
	Key         string
	Description string
}

var configDetails = []ConfigDetail{
	{Key: "cache_dir", Description: "directory holding compiled plugin executables"},
	{Key: "work_dir", Description: "root directory for per-invocation plugin work directories"},
	{Key: "disable_sandbox", Description: "sandbox toggle (not consulted by the sandbox runner)"},
	{Key: "go_mod_cache", Description: "GOMODCACHE override forwarded to the plugin compiler"},
	{Key: "max_parallel_invocations", Description: "upper bound on concurrent (plugin, target) invocations"},
	{Key: "log.level", Description: "logging verbosity"},
	{Key: "log.type", Description: "logging output format"},
}

func ConfigDetails() []ConfigDetail {
	return configDetails
}

// NewDefaultConfig returns a Config with every `default` tag applied and
// directory fields seeded from the XDG-style layout in config_file.go.
func NewDefaultConfig() (*Config, error) {
	c := &Config{}

	if err := setDefaults(c); err != nil {
		return nil, fmt.Errorf("could not set defaults for config: %s", err)
	}

	if len(c.CacheDir) == 0 {
		c.CacheDir = filepath.Join(DataDir(), "plugin-cache")
	}

	if len(c.WorkDir) == 0 {
		c.WorkDir = filepath.Join(DataDir(), "plugin-work")
	}

	return c, nil
}

func setDefaults(s interface{}) error {
	return setDefaultValue(reflect.ValueOf(s), "")
}

func setDefaultValue(v reflect.Value, def string) error {
	if v.Kind() != reflect.Ptr {
		return fmt.Errorf("not a pointer value")
	}

	v = reflect.Indirect(v)

	switch v.Kind() {
	case reflect.Int:
		if len(def) > 0 {
			i, err := strconv.ParseInt(def, 10, 64)
			if err != nil {
				return fmt.Errorf("could not parse default integer value: %s", err)
			}
			v.SetInt(i)
		}

	case reflect.String:
		if len(def) > 0 {
			v.SetString(def)
		}

	case reflect.Bool:
		if len(def) > 0 {
			b, err := strconv.ParseBool(def)
			if err != nil {
				return fmt.Errorf("could not parse default boolean value: %s", err)
			}
			v.SetBool(b)
		}

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := setDefaultValue(
				v.Field(i).Addr(),
				v.Type().Field(i).Tag.Get("default"),
			); err != nil {
				return err
			}
		}

	default:
		// Ignore this value and property entirely
		return nil
	}

	return nil
}
