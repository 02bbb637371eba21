// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsmodel/services/tsmodel/compiler"
	"github.com/AleutianAI/tsmodel/services/tsmodel/config"
)

type compileFlags struct {
	patterns   []string
	formats    []string
	outDir     string
	merge      bool
	snapshot   bool
	label      string
	allowEmpty bool
	dryRun     bool
}

func newCompileCommand(a *app) *cobra.Command {
	var f compileFlags
	cmd := &cobra.Command{
		Use:   "compile [pattern...]",
		Short: "Compile the configured patterns and write generated files",
		Example: `  tsmodel compile
  tsmodel compile model --format graphql --out gen
  tsmodel -C ./web compile --merge --snapshot --label release-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.patterns = append(f.patterns, args...)
			return a.runCompile(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.formats, "format", "f", nil, "Output formats, overriding config: json, yaml, ts, graphql")
	flags.StringVarP(&f.outDir, "out", "o", "", "Output directory, overriding config")
	flags.BoolVar(&f.merge, "merge", false, "Merge all patterns into one output")
	flags.BoolVar(&f.snapshot, "snapshot", false, "Store a snapshot of each registry")
	flags.StringVar(&f.label, "label", "", "Label for stored snapshots")
	flags.BoolVar(&f.allowEmpty, "allow-empty", false, "Accept patterns that match no files")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Compile without writing files")
	return cmd
}

func (a *app) runCompile(cmd *cobra.Command, f compileFlags) error {
	ctx := cmd.Context()
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := applyCompileFlags(cfg, f); err != nil {
		return err
	}

	opts := []compiler.Option{
		compiler.WithLogger(a.logger),
		compiler.WithLabel(f.label),
		compiler.WithAllowEmpty(f.allowEmpty),
	}
	if cfg.Snapshots.Enabled {
		mgr, closer, err := a.openSnapshots(cfg)
		if err != nil {
			return fmt.Errorf("opening snapshot store: %w", err)
		}
		defer closer.Close()
		opts = append(opts, compiler.WithSnapshots(mgr))
	}

	c, err := compiler.New(a.root, cfg, opts...)
	if err != nil {
		return err
	}
	res, err := c.Compile(ctx)
	if err != nil {
		return err
	}

	a.ui.headingf("Compiled %d pattern(s) in %s", len(res.Patterns), res.Duration.Round(time.Millisecond))
	for _, p := range res.Patterns {
		stats := p.Registry.Stats()
		a.ui.okf("%s", p.Name)
		a.ui.field("files", len(p.Files))
		a.ui.field("entities", stats.Total)
		a.ui.field("fields", stats.Fields)
		if p.Snapshot != nil {
			a.ui.field("snapshot", p.Snapshot.SnapshotID)
		}
		for _, w := range p.Warnings {
			a.ui.warnf("%s", w)
		}
	}

	if f.dryRun {
		return nil
	}
	written, err := c.Emit(ctx, res)
	if err != nil {
		return err
	}
	a.ui.headingf("Wrote %d file(s)", len(written))
	rel := make([]string, len(written))
	for i, p := range written {
		rel[i] = relativeTo(c.Root(), p)
	}
	a.ui.list(rel)
	return nil
}

// applyCompileFlags overrides config values from flags and revalidates.
func applyCompileFlags(cfg *config.Config, f compileFlags) error {
	if len(f.patterns) > 0 {
		selected := make([]config.Pattern, 0, len(f.patterns))
		for _, name := range f.patterns {
			p, ok := cfg.Pattern(name)
			if !ok {
				return fmt.Errorf("unknown pattern %q", name)
			}
			selected = append(selected, p)
		}
		cfg.Patterns = selected
	}
	if len(f.formats) > 0 {
		cfg.Output.Formats = f.formats
	}
	if f.outDir != "" {
		cfg.Output.Dir = f.outDir
	}
	if f.merge {
		cfg.Output.Merge = true
	}
	if f.snapshot {
		cfg.Snapshots.Enabled = true
	}
	return config.Validate(cfg)
}

func relativeTo(root, p string) string {
	if rel, err := filepath.Rel(root, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return p
}

// compileProject compiles one pattern, or all patterns merged when
// pattern is empty.
func (a *app) compileProject(cmd *cobra.Command, pattern string) (*compiler.PatternResult, error) {
	ctx := cmd.Context()
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	c, err := compiler.New(a.root, cfg, compiler.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if pattern != "" {
		return c.CompilePattern(ctx, pattern)
	}
	res, err := c.Compile(ctx)
	if err != nil {
		return nil, err
	}
	merged, err := res.Merged()
	if err != nil {
		return nil, err
	}
	return &compiler.PatternResult{Name: compiler.MergedBase, Registry: merged}, nil
}
