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
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsmodel/services/tsmodel/emit"
	"github.com/AleutianAI/tsmodel/services/tsmodel/snapshot"
)

func newSnapshotCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect, compare and merge stored registry snapshots",
	}
	cmd.AddCommand(
		newSnapshotListCommand(a),
		newSnapshotShowCommand(a),
		newSnapshotDiffCommand(a),
		newSnapshotMergeCommand(a),
		newSnapshotDeleteCommand(a),
	)
	return cmd
}

// withSnapshots opens the project's snapshot store for the duration of fn.
func (a *app) withSnapshots(cmd *cobra.Command, fn func(*snapshot.Manager) error) error {
	cfg, err := a.loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	mgr, closer, err := a.openSnapshots(cfg)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer closer.Close()
	return fn(mgr)
}

func (a *app) projectHash() string {
	root, err := filepath.Abs(a.root)
	if err != nil {
		root = a.root
	}
	return snapshot.ProjectHash(root)
}

func newSnapshotListCommand(a *app) *cobra.Command {
	var (
		pattern    string
		limit      int
		allProject bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSnapshots(cmd, func(mgr *snapshot.Manager) error {
				projectHash := a.projectHash()
				if allProject {
					projectHash = ""
				}
				list, err := mgr.List(cmd.Context(), projectHash, pattern, limit)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(a.stdout, "no snapshots")
					return nil
				}
				rows := make([][]string, len(list))
				for i, m := range list {
					rows[i] = []string{
						m.SnapshotID,
						m.Pattern,
						time.UnixMilli(m.CreatedAtMilli).UTC().Format(time.RFC3339),
						strconv.Itoa(m.Stats.Total),
						m.Label,
					}
				}
				a.ui.table([]string{"ID", "PATTERN", "CREATED", "ENTITIES", "LABEL"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Only list snapshots of this pattern")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum snapshots to list (0 for all)")
	cmd.Flags().BoolVar(&allProject, "all-projects", false, "List snapshots of every project in the store")
	return cmd
}

// resolveSnapshotID maps "latest" or "latest:<pattern>" to a snapshot ID.
func (a *app) resolveSnapshotID(cmd *cobra.Command, mgr *snapshot.Manager, ref string) (string, error) {
	if ref != "latest" && !strings.HasPrefix(ref, "latest:") {
		return ref, nil
	}
	pattern := strings.TrimPrefix(strings.TrimPrefix(ref, "latest"), ":")
	if pattern == "" {
		pattern = "model"
	}
	_, meta, err := mgr.LoadLatest(cmd.Context(), a.projectHash(), pattern)
	if err != nil {
		return "", fmt.Errorf("latest snapshot of pattern %q: %w", pattern, err)
	}
	return meta.SnapshotID, nil
}

func newSnapshotShowCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <id|latest[:pattern]>",
		Short: "Show snapshot metadata, or render its registry with --format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSnapshots(cmd, func(mgr *snapshot.Manager) error {
				id, err := a.resolveSnapshotID(cmd, mgr, args[0])
				if err != nil {
					return err
				}
				reg, meta, err := mgr.Load(cmd.Context(), id)
				if err != nil {
					return err
				}
				if format != "" {
					f, err := emit.ParseFormat(format)
					if err != nil {
						return err
					}
					data, err := emit.Render(reg, f)
					if err != nil {
						return err
					}
					_, err = a.stdout.Write(data)
					return err
				}

				a.ui.headingf("Snapshot %s", meta.SnapshotID)
				a.ui.field("project", meta.ProjectRoot)
				a.ui.field("pattern", meta.Pattern)
				a.ui.field("created", time.UnixMilli(meta.CreatedAtMilli).UTC().Format(time.RFC3339))
				if meta.Label != "" {
					a.ui.field("label", meta.Label)
				}
				if meta.RunID != "" {
					a.ui.field("run", meta.RunID)
				}
				a.ui.field("entities", meta.Stats.Total)
				a.ui.field("fields", meta.Stats.Fields)
				a.ui.field("size", fmt.Sprintf("%d bytes", meta.CompressedSize))
				a.ui.field("hash", meta.RegistryHash)
				a.ui.list(reg.Names())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Render the registry: json, yaml, ts, graphql")
	return cmd
}

func newSnapshotDiffCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <base> <target>",
		Short: "Compare two snapshots",
		Long: `Diff compares two snapshots entity by entity. Either side may be a
snapshot ID or latest[:pattern].`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSnapshots(cmd, func(mgr *snapshot.Manager) error {
				baseID, err := a.resolveSnapshotID(cmd, mgr, args[0])
				if err != nil {
					return err
				}
				targetID, err := a.resolveSnapshotID(cmd, mgr, args[1])
				if err != nil {
					return err
				}
				base, _, err := mgr.Load(cmd.Context(), baseID)
				if err != nil {
					return err
				}
				target, _, err := mgr.Load(cmd.Context(), targetID)
				if err != nil {
					return err
				}
				diff, err := snapshot.DiffRegistries(base, target, baseID, targetID)
				if err != nil {
					return err
				}
				a.printDiff(diff)
				return nil
			})
		},
	}
}

func (a *app) printDiff(d *snapshot.Diff) {
	if d.Empty() {
		a.ui.okf("no changes")
		return
	}
	a.ui.headingf("%d change(s), %d file(s) affected", d.Summary.TotalChanges, d.Summary.FilesAffected)
	for _, name := range d.EntitiesAdded {
		fmt.Fprintf(a.stdout, "  + %s\n", name)
	}
	for _, name := range d.EntitiesRemoved {
		fmt.Fprintf(a.stdout, "  - %s\n", name)
	}
	for _, ed := range d.EntitiesModified {
		fmt.Fprintf(a.stdout, "  ~ %s (%s: %s)\n", ed.Name, ed.Kind, ed.ChangeType)
		for _, n := range ed.Added {
			fmt.Fprintf(a.stdout, "      + %s\n", n)
		}
		for _, n := range ed.Removed {
			fmt.Fprintf(a.stdout, "      - %s\n", n)
		}
		for _, n := range ed.Changed {
			fmt.Fprintf(a.stdout, "      ~ %s\n", n)
		}
	}
}

func newSnapshotMergeCommand(a *app) *cobra.Command {
	var (
		format string
		outDir string
		base   string
	)
	cmd := &cobra.Command{
		Use:   "merge <id>...",
		Short: "Merge snapshots into one registry and write it",
		Long: `Merge loads the given snapshots in order and deep-merges them. Entities
with the same name must have the same kind and compatible fields.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := emit.ParseFormat(format)
			if err != nil {
				return err
			}
			return a.withSnapshots(cmd, func(mgr *snapshot.Manager) error {
				ids := make([]string, len(args))
				for i, ref := range args {
					if ids[i], err = a.resolveSnapshotID(cmd, mgr, ref); err != nil {
						return err
					}
				}
				reg, err := mgr.Merge(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				if outDir == "" {
					data, err := emit.Render(reg, f)
					if err != nil {
						return err
					}
					_, err = a.stdout.Write(data)
					return err
				}
				written, err := emit.WriteFiles(cmd.Context(), reg, outDir, base, []emit.Format{f})
				if err != nil {
					return err
				}
				a.ui.okf("merged %d snapshot(s) into %s", len(ids), written[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json, yaml, ts, graphql")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write to this directory instead of stdout")
	cmd.Flags().StringVar(&base, "name", "model", "Output file base name with --out")
	return cmd
}

func newSnapshotDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete snapshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSnapshots(cmd, func(mgr *snapshot.Manager) error {
				for _, id := range args {
					if err := mgr.Delete(cmd.Context(), id); err != nil {
						return fmt.Errorf("deleting %s: %w", id, err)
					}
					a.ui.okf("deleted %s", id)
				}
				return nil
			})
		},
	}
}
