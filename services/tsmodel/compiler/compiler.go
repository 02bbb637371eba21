// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compiler runs the model pipeline for a project.
//
// For each configured pattern it discovers source files, loads them into
// a typesys.Program, resolves the model registry and optionally stores a
// snapshot. Emit writes the generated artefacts.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tsmodel/services/tsmodel/config"
	"github.com/AleutianAI/tsmodel/services/tsmodel/emit"
	"github.com/AleutianAI/tsmodel/services/tsmodel/merge"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/resolver"
	"github.com/AleutianAI/tsmodel/services/tsmodel/snapshot"
	"github.com/AleutianAI/tsmodel/services/tsmodel/typesys"
)

// MergedBase is the output file base name when patterns are merged.
const MergedBase = "model"

// ErrNoSources is returned when a pattern selects no files.
var ErrNoSources = errors.New("pattern matched no source files")

// Options configures a Compiler.
type Options struct {
	Logger *slog.Logger

	// Snapshots stores each pattern registry after a successful compile.
	// Nil disables snapshots regardless of config.
	Snapshots *snapshot.Manager

	// Label is attached to stored snapshots.
	Label string

	// AllowEmpty compiles a pattern that selects no files into an empty
	// registry instead of failing with ErrNoSources.
	AllowEmpty bool
}

// Option is a functional option for New.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithSnapshots enables snapshot storage through m.
func WithSnapshots(m *snapshot.Manager) Option {
	return func(o *Options) {
		o.Snapshots = m
	}
}

// WithLabel sets the snapshot label.
func WithLabel(label string) Option {
	return func(o *Options) {
		o.Label = label
	}
}

// WithAllowEmpty accepts patterns that select no files.
func WithAllowEmpty(allow bool) Option {
	return func(o *Options) {
		o.AllowEmpty = allow
	}
}

// Compiler compiles the patterns of one project.
//
// Thread Safety:
//
//	Safe for concurrent use. Each call owns its state.
type Compiler struct {
	root    string
	cfg     *config.Config
	options Options
}

// New creates a Compiler for the project at root.
//
// Inputs:
//
//	root - Project root. Pattern globs and output dirs are relative to it.
//	cfg - Validated configuration. Must not be nil.
func New(root string, cfg *config.Config, opts ...Option) (*Compiler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	options := Options{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Compiler{root: abs, cfg: cfg, options: options}, nil
}

// Root returns the absolute project root.
func (c *Compiler) Root() string {
	return c.root
}

// PatternResult is the outcome of compiling one pattern.
type PatternResult struct {
	Name     string
	Files    []string
	Registry *model.Registry
	Warnings []resolver.Warning
	Stats    resolver.ResolveStats

	// Snapshot is set when the registry was stored.
	Snapshot *snapshot.Metadata
}

// Result is the outcome of one compile run.
type Result struct {
	// RunID correlates logs, spans and snapshots of one run.
	RunID    string
	Patterns []*PatternResult
	Duration time.Duration
}

// Pattern returns the result of the named pattern.
func (r *Result) Pattern(name string) (*PatternResult, bool) {
	for _, p := range r.Patterns {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Merged merges every pattern registry, in pattern order, into a new
// registry. The pattern registries are not modified.
func (r *Result) Merged() (*model.Registry, error) {
	out := model.NewRegistry()
	for _, p := range r.Patterns {
		copied, err := model.FromSerializable(p.Registry.ToSerializable())
		if err != nil {
			return nil, fmt.Errorf("copying registry of pattern %q: %w", p.Name, err)
		}
		if err := merge.Registries(out, copied); err != nil {
			return nil, fmt.Errorf("merging pattern %q: %w", p.Name, err)
		}
	}
	return out, nil
}

// Compile compiles every configured pattern in order.
//
// Description:
//
//	Patterns are independent: each gets its own program and registry.
//	The first failing pattern aborts the run.
//
// Outputs:
//
//	*Result - One PatternResult per pattern, in config order.
//	error - Discovery, read, parse or resolution failure.
func (c *Compiler) Compile(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := otel.Tracer(compilerTracerName).Start(ctx, "compiler.Compiler.Compile",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("patterns", len(c.cfg.Patterns)),
		),
	)
	defer span.End()
	start := time.Now()
	logger := c.options.Logger.With(slog.String("run_id", runID))

	res := &Result{RunID: runID}
	for _, p := range c.cfg.Patterns {
		pr, err := c.compilePattern(ctx, p, runID, logger)
		if err != nil {
			setSpanError(span, err)
			return nil, err
		}
		res.Patterns = append(res.Patterns, pr)
	}
	res.Duration = time.Since(start)

	logger.Info("compile complete",
		slog.Int("patterns", len(res.Patterns)),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// CompilePattern compiles the named pattern only.
func (c *Compiler) CompilePattern(ctx context.Context, name string) (*PatternResult, error) {
	p, ok := c.cfg.Pattern(name)
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q", name)
	}
	runID := uuid.NewString()
	return c.compilePattern(ctx, p, runID, c.options.Logger.With(slog.String("run_id", runID)))
}

func (c *Compiler) compilePattern(ctx context.Context, p config.Pattern, runID string, logger *slog.Logger) (pr *PatternResult, err error) {
	ctx, span := otel.Tracer(compilerTracerName).Start(ctx, "compiler.Compiler.compilePattern",
		trace.WithAttributes(attribute.String("pattern", p.Name)),
	)
	defer span.End()
	start := time.Now()
	defer func() {
		recordPattern(start, err)
		if err != nil {
			setSpanError(span, err)
		}
	}()

	files, err := Discover(ctx, c.root, p)
	if err != nil {
		return nil, err
	}
	filesDiscovered.Add(float64(len(files)))
	span.SetAttributes(attribute.Int("files", len(files)))
	if len(files) == 0 && !c.options.AllowEmpty {
		return nil, fmt.Errorf("%w: %q", ErrNoSources, p.Name)
	}
	logger.Debug("files discovered", slog.String("pattern", p.Name), slog.Int("files", len(files)))

	sources, err := c.readSources(ctx, files)
	if err != nil {
		return nil, err
	}

	pr, err = c.compile(ctx, p.Name, sources, logger)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", p.Name, err)
	}
	pr.Files = files

	if c.cfg.Snapshots.Enabled && c.options.Snapshots != nil {
		meta, err := c.options.Snapshots.Save(ctx, pr.Registry, snapshot.SaveOptions{
			ProjectRoot: c.root,
			Pattern:     p.Name,
			Label:       c.options.Label,
			RunID:       runID,
		})
		if err != nil {
			return nil, fmt.Errorf("saving snapshot for pattern %q: %w", p.Name, err)
		}
		pr.Snapshot = meta
	}
	return pr, nil
}

// CompileSources compiles in-memory sources as one pattern.
//
// Description:
//
//	Paths are used as given for module resolution and locations. Nothing
//	is read from disk and no snapshot is stored.
func (c *Compiler) CompileSources(ctx context.Context, name string, sources map[string][]byte) (*PatternResult, error) {
	ctx, span := otel.Tracer(compilerTracerName).Start(ctx, "compiler.Compiler.CompileSources",
		trace.WithAttributes(
			attribute.String("pattern", name),
			attribute.Int("files", len(sources)),
		),
	)
	defer span.End()
	start := time.Now()

	pr, err := c.compile(ctx, name, sources, c.options.Logger)
	recordPattern(start, err)
	if err != nil {
		setSpanError(span, err)
		return nil, err
	}
	for p := range sources {
		pr.Files = append(pr.Files, filepath.ToSlash(p))
	}
	sort.Strings(pr.Files)
	return pr, nil
}

func (c *Compiler) compile(ctx context.Context, name string, sources map[string][]byte, logger *slog.Logger) (*PatternResult, error) {
	prog, err := typesys.LoadSources(ctx, sources,
		typesys.WithCompilerOptions(c.cfg.Compiler),
		typesys.WithWorkers(c.cfg.Parser.Workers),
		typesys.WithMaxFileSize(c.cfg.Parser.MaxFileSize),
		typesys.WithMaxDeclarations(c.cfg.Parser.MaxDeclarations),
		typesys.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("loading program: %w", err)
	}

	res, err := resolver.Resolve(ctx, prog,
		resolver.WithLogger(logger),
		resolver.WithScalars(c.cfg.Scalars...),
	)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		logger.Warn("model warning",
			slog.String("pattern", name),
			slog.String("location", w.Location.String()),
			slog.String("message", w.Message))
	}
	logger.Info("pattern compiled",
		slog.String("pattern", name),
		slog.Int("entities", res.Registry.Len()),
		slog.Int("warnings", len(res.Warnings)))

	return &PatternResult{
		Name:     name,
		Registry: res.Registry,
		Warnings: res.Warnings,
		Stats:    res.Stats,
	}, nil
}

// readSources reads files relative to the project root in parallel.
func (c *Compiler) readSources(ctx context.Context, files []string) (map[string][]byte, error) {
	sources := make(map[string][]byte, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readWorkers(c.cfg.Parser.Workers))
	for _, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(c.root, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("reading %s: %w", rel, err)
			}
			mu.Lock()
			sources[rel] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

func readWorkers(configured int) int {
	if configured > 0 {
		return configured
	}
	return 16
}

// Emit writes the generated files of res under the configured output dir.
//
// Description:
//
//	Without Output.Merge each pattern writes <dir>/<pattern>.<ext>. With
//	it, all registries are merged and written as <dir>/model.<ext>.
//
// Outputs:
//
//	[]string - Written paths.
//	error - Unknown format, merge conflict or write failure.
func (c *Compiler) Emit(ctx context.Context, res *Result) ([]string, error) {
	ctx, span := otel.Tracer(compilerTracerName).Start(ctx, "compiler.Compiler.Emit")
	defer span.End()

	formats := make([]emit.Format, 0, len(c.cfg.Output.Formats))
	for _, s := range c.cfg.Output.Formats {
		f, err := emit.ParseFormat(s)
		if err != nil {
			setSpanError(span, err)
			return nil, err
		}
		formats = append(formats, f)
	}
	dir := c.cfg.Output.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.root, dir)
	}

	var written []string
	write := func(reg *model.Registry, base string) error {
		paths, err := emit.WriteFiles(ctx, reg, dir, base, formats)
		written = append(written, paths...)
		for i := range paths {
			filesEmitted.WithLabelValues(string(formats[i])).Inc()
		}
		return err
	}

	if c.cfg.Output.Merge {
		merged, err := res.Merged()
		if err != nil {
			setSpanError(span, err)
			return nil, err
		}
		if err := write(merged, MergedBase); err != nil {
			setSpanError(span, err)
			return written, err
		}
	} else {
		for _, p := range res.Patterns {
			if err := write(p.Registry, p.Name); err != nil {
				setSpanError(span, err)
				return written, fmt.Errorf("emitting pattern %q: %w", p.Name, err)
			}
		}
	}

	span.SetAttributes(attribute.Int("files", len(written)))
	c.options.Logger.Info("model emitted",
		slog.String("dir", dir),
		slog.Int("files", len(written)))
	return written, nil
}
