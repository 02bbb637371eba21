// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package typesys builds a queryable TypeScript program from lowered files.
//
// A Program answers the questions the model resolver asks of a type
// checker: which declaration does this reference name, what are the
// properties of this symbol, what is the constant value of this enum
// member. Module specifiers are resolved against the set of loaded files
// using the configured compiler options.
package typesys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/index"
)

const typesysTracerName = "tsmodel.typesys"

var (
	// ErrSymbolNotFound is returned when a reference names no declaration.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrAmbiguousSymbol is returned when a global lookup matches
	// declarations in more than one file.
	ErrAmbiguousSymbol = errors.New("ambiguous symbol")

	// ErrNotEnumMember is returned by ConstantValue for other nodes.
	ErrNotEnumMember = errors.New("not an enum member")
)

// CompilerOptions mirrors the tsconfig settings that affect module
// resolution.
type CompilerOptions struct {
	// Target is the language target, e.g. "es2022". Informational.
	Target string `yaml:"target" json:"target,omitempty"`

	// ModuleResolution is "node", "node16", "bundler" or "classic".
	// All modes resolve the same extension candidates.
	ModuleResolution string `yaml:"module_resolution" json:"module_resolution,omitempty"`

	// BaseURL is the directory non-relative specifiers are resolved from.
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`

	// Paths maps alias patterns ("@app/*") to substitutions ("src/*"),
	// relative to BaseURL.
	Paths map[string][]string `yaml:"paths" json:"paths,omitempty"`
}

// Options configures program loading.
type Options struct {
	Compiler    CompilerOptions
	Workers     int
	MaxFileSize int64

	// MaxDeclarations caps the declaration index. Zero keeps the index
	// default.
	MaxDeclarations int
	Logger          *slog.Logger
}

// Option is a functional option for Load and LoadSources.
type Option func(*Options)

// WithCompilerOptions sets module resolution options.
func WithCompilerOptions(c CompilerOptions) Option {
	return func(o *Options) {
		o.Compiler = c
	}
}

// WithWorkers sets the number of parallel parse workers.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithMaxFileSize sets the parser file size limit.
func WithMaxFileSize(bytes int64) Option {
	return func(o *Options) {
		if bytes > 0 {
			o.MaxFileSize = bytes
		}
	}
}

// WithMaxDeclarations caps the number of top-level declarations a
// program may hold.
func WithMaxDeclarations(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxDeclarations = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func defaultOptions() Options {
	return Options{
		Workers:     runtime.NumCPU(),
		MaxFileSize: ast.DefaultMaxFileSize,
		Logger:      slog.Default(),
	}
}

// Program is a set of parsed files with symbol resolution.
//
// Thread Safety:
//
//	Program is safe for concurrent reads after construction.
type Program struct {
	options Options

	files  []*ast.File
	byPath map[string]*ast.File
	index  *index.DeclarationIndex

	// symbols maps "path#name" to the merged symbol.
	symbols map[string]*ast.Symbol

	mu     sync.Mutex
	consts map[*ast.Node]any
}

// Load reads and parses files from disk.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - paths: File paths. Converted to forward slashes and cleaned.
//   - opts: Loading options.
//
// Outputs:
//   - *Program: The loaded program.
//   - error: Read or parse failure of any file.
func Load(ctx context.Context, paths []string, opts ...Option) (*Program, error) {
	sources := make(map[string][]byte, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, runtime.NumCPU()))
	for _, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("reading %s: %w", p, err)
			}
			mu.Lock()
			sources[p] = content
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return LoadSources(ctx, sources, opts...)
}

// LoadSources parses in-memory sources keyed by path.
//
// Description:
//
//	Files are parsed in parallel, then sorted by path so every later
//	step sees a deterministic order. Declarations sharing a name within
//	one file are merged into one symbol.
func LoadSources(ctx context.Context, sources map[string][]byte, opts ...Option) (*Program, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := otel.Tracer(typesysTracerName).Start(ctx, "typesys.LoadSources",
		trace.WithAttributes(attribute.Int("files", len(sources))),
	)
	defer span.End()
	start := time.Now()

	parser := ast.NewTypeScriptParser(
		ast.WithTypeScriptMaxFileSize(options.MaxFileSize),
		ast.WithTypeScriptLogger(options.Logger),
	)

	paths := make([]string, 0, len(sources))
	for p := range sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]*ast.File, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(options.Workers)
	for i, p := range paths {
		g.Go(func() error {
			file, err := parser.Parse(gctx, sources[p], normalizePath(p))
			if err != nil {
				return err
			}
			files[i] = file
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	prog := &Program{
		options: options,
		files:   files,
		byPath:  make(map[string]*ast.File, len(files)),
		index:   newIndex(options),
		symbols: make(map[string]*ast.Symbol),
		consts:  make(map[*ast.Node]any),
	}

	var all []*ast.Symbol
	for _, f := range files {
		prog.byPath[f.Path] = f
		for _, e := range f.Errors {
			options.Logger.Warn("syntax error in source",
				slog.String("file", f.Path),
				slog.String("error", e))
		}
		for _, sym := range groupSymbols(f) {
			prog.symbols[sym.Key()] = sym
			all = append(all, sym)
		}
	}
	if err := prog.index.AddBatch(all); err != nil {
		return nil, fmt.Errorf("indexing declarations: %w", err)
	}

	stats := prog.index.Stats()
	span.SetAttributes(
		attribute.Int("symbols", stats.TotalSymbols),
		attribute.Int("indexed_files", stats.FileCount),
	)
	options.Logger.Debug("program loaded",
		slog.Int("files", len(files)),
		slog.Int("symbols", stats.TotalSymbols),
		slog.Int("indexed_files", stats.FileCount),
		slog.Int("interfaces", stats.ByKind[ast.NodeInterface]),
		slog.Int("classes", stats.ByKind[ast.NodeClass]),
		slog.Int("enums", stats.ByKind[ast.NodeEnum]),
		slog.Int("aliases", stats.ByKind[ast.NodeTypeAlias]),
		slog.Duration("duration", time.Since(start)))

	return prog, nil
}

func newIndex(options Options) *index.DeclarationIndex {
	if options.MaxDeclarations > 0 {
		return index.NewDeclarationIndex(index.WithMaxSymbols(options.MaxDeclarations))
	}
	return index.NewDeclarationIndex()
}

// groupSymbols merges same-named declarations of a file, in source order.
func groupSymbols(f *ast.File) []*ast.Symbol {
	byName := make(map[string]*ast.Symbol)
	var out []*ast.Symbol
	for _, d := range f.Declarations {
		sym, ok := byName[d.Name]
		if !ok {
			sym = &ast.Symbol{Name: d.Name, File: f}
			byName[d.Name] = sym
			out = append(out, sym)
		}
		sym.Decls = append(sym.Decls, d)
	}
	return out
}

func normalizePath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// SourceFiles returns the loaded files sorted by path.
func (p *Program) SourceFiles() []*ast.File {
	out := make([]*ast.File, len(p.files))
	copy(out, p.files)
	return out
}

// File returns the loaded file at path.
func (p *Program) File(filePath string) (*ast.File, bool) {
	f, ok := p.byPath[normalizePath(filePath)]
	return f, ok
}

// CompilerOptions returns the compiler options in effect.
func (p *Program) CompilerOptions() CompilerOptions {
	return p.options.Compiler
}

// Declarations returns the declarations backing sym.
func (p *Program) Declarations(sym *ast.Symbol) []*ast.Node {
	if sym == nil {
		return nil
	}
	return sym.Decls
}

// Suggest returns names close to name for diagnostics.
func (p *Program) Suggest(name string) []string {
	return p.index.Suggest(name, 3)
}

// Properties returns the own members of sym across all its declarations.
//
// Description:
//
//	Members are returned in declaration order. When several declarations
//	(interface merging, class + interface) declare the same member name
//	the first one wins. For type aliases to object literals the literal's
//	members are returned. Inherited members are not included; see Heritage.
func (p *Program) Properties(sym *ast.Symbol) ([]*ast.Node, error) {
	if sym == nil {
		return nil, fmt.Errorf("%w: nil symbol", ErrSymbolNotFound)
	}
	seen := make(map[string]bool)
	var out []*ast.Node
	for _, d := range sym.Decls {
		members := d.Members
		if d.Kind == ast.NodeTypeAlias {
			if d.Type == nil || d.Type.Kind != ast.NodeTypeLiteral {
				continue
			}
			members = d.Type.Members
		}
		if d.Kind == ast.NodeEnum || d.Kind == ast.NodeVariable {
			continue
		}
		for _, m := range members {
			if seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// Heritage returns the `extends` references of sym's declarations.
func (p *Program) Heritage(sym *ast.Symbol) []*ast.Node {
	if sym == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []*ast.Node
	for _, d := range sym.Decls {
		for _, h := range d.Heritage {
			if h.Clause != ast.HeritageExtends || h.Type == nil {
				continue
			}
			if seen[h.Type.Text] {
				continue
			}
			seen[h.Type.Text] = true
			out = append(out, h.Type)
		}
	}
	return out
}
