// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tsmodel compiles annotated TypeScript declarations into a model
// registry and emits JSON, YAML, TypeScript and GraphQL artefacts.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsmodel/services/tsmodel/config"
	"github.com/AleutianAI/tsmodel/services/tsmodel/snapshot"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds global flag values and shared state for all subcommands.
type app struct {
	root       string
	configPath string
	logLevel   string
	logFormat  string
	tracing    string
	otlpAddr   string

	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	ui     *ui

	shutdownTracing func(context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := newRootCommand(a).ExecuteContext(ctx); err != nil {
		a.errorf("%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tsmodel",
		Short: "Compile TypeScript declarations into a model registry",
		Long: `tsmodel reads TypeScript interfaces, classes, enums and type aliases
marked with @tsModel, follows their references, and produces a model
registry. The registry is written as JSON, YAML, a TypeScript module or a
GraphQL schema, can be stored as a snapshot, and can validate input data.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdownTracing != nil {
				return a.shutdownTracing(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.root, "project", "C", ".", "Project root directory")
	flags.StringVar(&a.configPath, "config", "", "Config file (default: <project>/"+config.FileName+")")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "text", "Log format: text or json")
	flags.StringVar(&a.tracing, "trace", "none", "Trace exporter: none, stdout or otlp")
	flags.StringVar(&a.otlpAddr, "otlp-endpoint", "localhost:4317", "OTLP gRPC endpoint for --trace=otlp")

	cmd.AddCommand(
		newCompileCommand(a),
		newValidateCommand(a),
		newSnapshotCommand(a),
		newServeCommand(a),
		newVersionCommand(a),
	)
	return cmd
}

// setup configures logging, styling and tracing after flags are parsed.
func (a *app) setup(ctx context.Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(a.logFormat) {
	case "text":
		a.logger = slog.New(slog.NewTextHandler(a.stderr, opts))
	case "json":
		a.logger = slog.New(slog.NewJSONHandler(a.stderr, opts))
	default:
		return fmt.Errorf("invalid --log-format %q: want text or json", a.logFormat)
	}
	slog.SetDefault(a.logger)
	a.ui = newUI(a.stdout)

	shutdown, err := setupTracing(ctx, a.tracing, a.otlpAddr, a.stderr)
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}

// loadConfig loads the project config from --config or the project root.
func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(ctx, a.configPath)
	}
	return config.Load(ctx, a.root)
}

// openSnapshots opens the snapshot store configured for the project.
// The caller closes the returned closer.
func (a *app) openSnapshots(cfg *config.Config) (*snapshot.Manager, io.Closer, error) {
	dir := cfg.Snapshots.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.root, dir)
	}
	db, err := snapshot.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := snapshot.NewManager(db, a.logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return mgr, db, nil
}

func (a *app) errorf(format string, args ...any) {
	u := a.ui
	if u == nil {
		u = newUI(a.stderr)
	}
	fmt.Fprintln(a.stderr, u.error.Render("error:")+" "+fmt.Sprintf(format, args...))
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "tsmodel %s\n", version)
		},
	}
}
