// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver turns annotated TypeScript declarations into a model
// registry.
//
// Resolution runs as four explicit stages over one program:
//
//	bind     build the binding table (resolver classes, scalars, unions)
//	resolve  drain a worklist seeded with root-flagged declarations
//	name     name anonymous object types and register them
//	scalars  register bound and built-in scalars
//
// Referenced declarations are scheduled by entity name the first time they
// are seen, so self-referential types terminate and every entity is built
// exactly once.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/bindings"
	"github.com/AleutianAI/tsmodel/services/tsmodel/metadata"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/worklist"
	"go.opentelemetry.io/otel/trace"
)

// TypeSystem is the program view the resolver consumes.
//
// *typesys.Program implements it.
type TypeSystem interface {
	SourceFiles() []*ast.File
	Lookup(ref *ast.Node) (*ast.Symbol, error)
	LookupName(filePath, name string) (*ast.Symbol, error)
	Declarations(sym *ast.Symbol) []*ast.Node
	Properties(sym *ast.Symbol) ([]*ast.Node, error)
	Heritage(sym *ast.Symbol) []*ast.Node
	ConstantValue(member *ast.Node) (any, error)
	Suggest(name string) []string
}

// Result is the output of one resolution.
type Result struct {
	// Registry holds every resolved entity in registration order.
	Registry *model.Registry

	// Warnings lists skipped nodes and unused bindings.
	Warnings []Warning

	// Stats summarizes the run.
	Stats ResolveStats
}

// ResolveStats contains statistics about one resolution.
type ResolveStats struct {
	Items          int   `json:"items"`
	Entities       int   `json:"entities"`
	Anonymous      int   `json:"anonymous"`
	Bindings       int   `json:"bindings"`
	UnusedBindings int   `json:"unused_bindings"`
	DurationMilli  int64 `json:"duration_ms"`
}

// Resolver builds model registries.
//
// Thread Safety:
//
//	Resolver is safe for concurrent use. Each Resolve call owns its state.
type Resolver struct {
	options ResolverOptions
}

// NewResolver creates a resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	options := DefaultResolverOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Resolver{options: options}
}

// Resolve is a convenience wrapper around NewResolver(opts...).Resolve.
func Resolve(ctx context.Context, ts TypeSystem, opts ...ResolverOption) (*Result, error) {
	return NewResolver(opts...).Resolve(ctx, ts)
}

// scheduledEntity records which symbol claimed an entity name.
type scheduledEntity struct {
	key  string
	file string
}

// anonymous is an inline object type waiting for a name.
type anonymous struct {
	obj  *model.Object
	ref  *model.Reference
	hint string
}

// resolveState holds mutable state for one Resolve call.
type resolveState struct {
	ts       TypeSystem
	options  *ResolverOptions
	logger   *slog.Logger
	table    *bindings.Table
	registry *model.Registry
	queue    *worklist.Queue[*item]

	scheduled map[string]scheduledEntity
	builtins  map[string]bool
	nameless  []*anonymous
	warnings  []Warning
}

// Resolve builds the registry for every root-flagged declaration of ts.
//
// Description:
//
//	Runs the bind, resolve, name and scalars stages in order. The context
//	is checked between stages and between worklist items. Any fatal error
//	aborts the run and no partial registry is returned.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Must not be nil.
//	ts - The loaded program.
//
// Outputs:
//
//	*Result - The registry, warnings and statistics.
//	error - *Error, *bindings.Error or *metadata.Error on invalid input,
//	or the context error on cancellation.
//
// Example:
//
//	prog, err := typesys.Load(ctx, files)
//	res, err := resolver.Resolve(ctx, prog)
//	user, ok := res.Registry.Get("User")
func (r *Resolver) Resolve(ctx context.Context, ts TypeSystem) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("resolver: nil context")
	}
	start := time.Now()
	ctx, span := startResolveSpan(ctx, len(ts.SourceFiles()))
	defer span.End()

	state := &resolveState{
		ts:        ts,
		options:   &r.options,
		logger:    r.options.Logger,
		registry:  model.NewRegistry(),
		queue:     worklist.New[*item](),
		scheduled: make(map[string]scheduledEntity),
		builtins:  make(map[string]bool, len(r.options.Scalars)),
	}
	for _, name := range r.options.Scalars {
		state.builtins[name] = true
	}

	stages := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{StageBind, state.bind},
		{StageResolve, state.resolve},
		{StageName, state.nameAnonymous},
		{StageScalars, state.registerScalars},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(span, start, fmt.Errorf("resolver: cancelled before %s: %w", st.stage, err))
		}
		stageCtx, stageSpan := startStageSpan(ctx, st.stage)
		err := st.run(stageCtx)
		endStageSpan(stageSpan, err)
		if err != nil {
			return nil, r.fail(span, start, err)
		}
		if r.options.ProgressCallback != nil {
			r.options.ProgressCallback(Progress{Stage: st.stage, Entities: state.registry.Len(), Items: state.queue.Total()})
		}
	}

	unused := state.table.Unused()
	for _, b := range unused {
		state.warn(b.Method.Location, fmt.Sprintf("unused %s binding %s: the target has no such field", b.Mode, b.Descriptor))
	}

	result := &Result{
		Registry: state.registry,
		Warnings: state.warnings,
		Stats: ResolveStats{
			Items:          state.queue.Total(),
			Entities:       state.registry.Len(),
			Anonymous:      len(state.nameless),
			Bindings:       state.table.Len(),
			UnusedBindings: len(unused),
			DurationMilli:  time.Since(start).Milliseconds(),
		},
	}
	setResolveSpanResult(span, result)
	recordResolveMetrics(time.Since(start), result, nil)

	state.logger.Debug("model resolved",
		slog.Int("entities", result.Stats.Entities),
		slog.Int("items", result.Stats.Items),
		slog.Int("warnings", len(result.Warnings)),
		slog.Int64("duration_ms", result.Stats.DurationMilli),
	)
	return result, nil
}

func (r *Resolver) fail(span trace.Span, start time.Time, err error) error {
	recordSpanError(span, err)
	recordResolveMetrics(time.Since(start), nil, err)
	return err
}

// bind builds the binding table.
func (s *resolveState) bind(_ context.Context) error {
	table, err := bindings.Build(s.ts)
	if err != nil {
		return err
	}
	s.table = table
	s.logger.Debug("bindings built", slog.String("table", table.String()))
	return nil
}

// resolve seeds the worklist with root-flagged declarations and drains it.
func (s *resolveState) resolve(ctx context.Context) error {
	if err := s.seedRoots(); err != nil {
		return err
	}
	for it, ok := s.queue.Next(); ok; it, ok = s.queue.Next() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("resolver: cancelled after %d items: %w", s.queue.Visited(), err)
		}
		if s.queue.Total() > s.options.MaxItems {
			return fmt.Errorf("resolver: worklist exceeded %d items", s.options.MaxItems)
		}
		if err := s.visit(it); err != nil {
			var rErr *Error
			if errors.As(err, &rErr) && rErr.Path == nil {
				rErr.Path = it.path
			}
			return err
		}
	}
	return nil
}

// seedRoots pushes every root-flagged declaration in file order.
func (s *resolveState) seedRoots() error {
	for _, file := range s.ts.SourceFiles() {
		if file.Declaration {
			continue
		}
		for _, decl := range file.Declarations {
			if decl.Kind == ast.NodeVariable || s.table.IsBindingClass(decl) {
				continue
			}
			md, err := metadata.Extract(decl)
			if err != nil {
				return err
			}
			if md.Ignore || !md.Root {
				continue
			}
			if len(decl.TypeParams) > 0 {
				s.warn(decl.Location, fmt.Sprintf("generic declaration %s is only resolved when referenced with type arguments", decl.Name))
				continue
			}

			sym, err := s.ts.LookupName(file.Path, decl.Name)
			if err != nil {
				return newError(decl, ErrUnresolved, "%v", err)
			}
			t := s.classify(sym)
			if t.class == classSkip {
				continue
			}
			if !sym.Exported() {
				return newError(decl, ErrNotExported, "model declaration %s must be exported", decl.Name)
			}
			if t.class == classAlias {
				// Entities reachable from a root alias are still resolved; the
				// alias itself has no entity.
				s.queue.Push(&item{node: t.decl.Type, parent: &model.List{}, mode: bindings.ModeOutput, path: []string{decl.Name}})
				continue
			}
			if err := s.enqueue(t, bindings.ModeOutput, decl, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// enqueue schedules a declaration target unless its name is taken by the
// same symbol.
func (s *resolveState) enqueue(t *target, mode bindings.Mode, at *ast.Node, root bool) error {
	if t.builtin {
		return nil
	}
	fresh, err := s.schedule(t.name, t.key(), t.file(), at)
	if err != nil || !fresh {
		return err
	}
	s.queue.Push(&item{node: t.decl, target: t, mode: mode, root: root, path: []string{t.name}})
	return nil
}

// schedule claims name for key. fresh is false when key already holds it.
func (s *resolveState) schedule(name, key, file string, at *ast.Node) (fresh bool, err error) {
	if prev, ok := s.scheduled[name]; ok {
		if prev.key == key {
			return false, nil
		}
		return false, newError(at, ErrDuplicateEntity, "%s is defined in %s and %s", name, prev.file, file)
	}
	s.scheduled[name] = scheduledEntity{key: key, file: file}
	return true, nil
}

// warn records a non-fatal diagnostic.
func (s *resolveState) warn(loc ast.Location, msg string) {
	s.warnings = append(s.warnings, Warning{Location: loc, Message: msg})
	s.logger.Warn(msg, slog.String("location", loc.String()))
}

// registerScalars adds bound scalars and the built-in scalar set.
func (s *resolveState) registerScalars(_ context.Context) error {
	for _, b := range s.table.Scalars() {
		if existing, ok := s.registry.Get(b.Name); ok {
			if sc, ok := existing.(*model.Scalar); ok && sc.Descriptor == b.Descriptor {
				continue
			}
			file := ""
			if prev, ok := s.scheduled[b.Name]; ok {
				file = prev.file
			}
			return newError(b.Node, ErrDuplicateEntity, "%s is defined in %s and %s", b.Name, file, b.Descriptor.File)
		}
		sc := &model.Scalar{Name: b.Name, Descriptor: b.Descriptor, Location: b.Node.Location}
		if md, err := metadata.Extract(b.Node); err == nil {
			sc.Doc = md.Doc
		}
		if err := s.registry.Add(sc); err != nil {
			return newError(b.Node, ErrDuplicateEntity, "%v", err)
		}
	}
	for _, name := range s.options.Scalars {
		if s.registry.Has(name) {
			continue
		}
		if err := s.registry.Add(&model.BasicScalar{Name: name}); err != nil {
			return err
		}
	}
	return nil
}
