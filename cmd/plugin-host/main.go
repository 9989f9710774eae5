// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

// Command plugin-host is a demo CLI exercising session end to end: it
// loads a small YAML-described package graph, compiles and invokes every
// reachable plugin, and prints the resulting build plan. Grounded on
// cmd/kraftkit/kraftkit.go's single cobra root command wiring.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pluginhost.sh/config"
	"pluginhost.sh/log"
	"pluginhost.sh/session"
)

// configureLogging installs the formatter and level named by a loaded
// config's log.type/log.level fields onto the package-global logger.
func configureLogging(typ, level string) {
	switch log.LoggerTypeFromString(typ) {
	case log.JSON:
		log.L.SetFormatter(&logrus.JSONFormatter{})
	case log.QUIET:
		log.L.SetOutput(io.Discard)
	case log.FANCY:
		log.L.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default: // log.BASIC
		log.L.SetFormatter(&log.TextFormatter{DisableColors: true})
	}

	if lvl, ok := log.Levels()[level]; ok {
		log.L.SetLevel(lvl)
	}
}

func main() {
	cmd := &cobra.Command{
		Use:   "plugin-host [FLAGS] MANIFEST",
		Short: "Run build-tool plugins for a package graph",
		Long: heredoc.Doc(`
			plugin-host compiles and invokes every build-tool plugin reachable
			from a YAML-described package graph, then prints the resulting
			build plan.
		`),
		Example: heredoc.Doc(`
			# Run every plugin named in example.yaml
			$ plugin-host example.yaml
		`),
		Args: cobra.ExactArgs(1),
		RunE: run,
	}

	cmd.Flags().String("cache-dir", "", "override the plugin compilation cache directory")
	cmd.Flags().String("work-dir", "", "override the per-invocation work directory root")
	cmd.Flags().Int("max-parallel", 0, "override the maximum number of concurrent plugin invocations")

	if err := cmd.Execute(); err != nil {
		log.L.Error(err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewDefaultConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if v, _ := cmd.Flags().GetString("cache-dir"); v != "" {
		cfg.CacheDir = v
	}
	if v, _ := cmd.Flags().GetString("work-dir"); v != "" {
		cfg.WorkDir = v
	}
	if v, _ := cmd.Flags().GetInt("max-parallel"); v > 0 {
		cfg.MaxParallelInvocations = v
	}

	configureLogging(cfg.Log.Type, cfg.Log.Level)

	pkg, targets, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	orchestrator := session.NewOrchestrator(cfg, "dev", log.L)

	results, err := orchestrator.Run(context.Background(), pkg, targets)
	if err != nil {
		return fmt.Errorf("running plugins: %w", err)
	}

	for _, target := range targets {
		perPlugin, ok := results[target]
		if !ok {
			continue
		}

		fmt.Printf("target %s:\n", target.Name)
		for _, res := range perPlugin {
			printResult(target.Name, res)
		}
	}

	return nil
}

func printResult(targetName string, res session.InvocationResult) {
	fmt.Printf("  plugin %s: success=%t\n", res.Plugin.Name, res.Success)

	if res.Err != nil {
		fmt.Printf("    error: %v\n", res.Err)
	}

	for _, d := range res.Diagnostics {
		fmt.Printf("    [%s] %s\n", d.Severity, d.Message)
	}

	for _, c := range res.BuildCommands {
		fmt.Printf("    build command: %s %v\n", c.Config.Executable, c.Config.Arguments)
	}

	for _, c := range res.PrebuildCommands {
		fmt.Printf("    prebuild command: %s %v\n", c.Config.Executable, c.Config.Arguments)
	}

	for _, line := range res.Text {
		fmt.Printf("    stderr: %s\n", line)
	}
}
