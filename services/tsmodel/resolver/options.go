// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"log/slog"
)

// DefaultScalars are injected as basic scalars when not declared.
var DefaultScalars = []string{
	"number", "Int", "UInt", "UFloat", "string", "boolean", "symbol", "bigint", "Buffer", "Date",
}

// Default resolver configuration values.
const (
	// DefaultMaxItems bounds the worklist. Real models stay far below it;
	// exceeding it means an unbounded generic expansion.
	DefaultMaxItems = 1_000_000

	// maxTypeDepth bounds recursive alias and generic name computation.
	maxTypeDepth = 64
)

// ResolverOptions configures Resolver behavior.
type ResolverOptions struct {
	// Logger receives escape warnings and stage diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger

	// Scalars are the built-in scalar names.
	// Default: DefaultScalars
	Scalars []string

	// MaxItems bounds the number of worklist items per run.
	// Default: DefaultMaxItems
	MaxItems int

	// ProgressCallback is called after each pipeline stage. May be nil.
	ProgressCallback ProgressFunc
}

// DefaultResolverOptions returns the default options.
func DefaultResolverOptions() ResolverOptions {
	scalars := make([]string, len(DefaultScalars))
	copy(scalars, DefaultScalars)
	return ResolverOptions{
		Logger:   slog.Default(),
		Scalars:  scalars,
		MaxItems: DefaultMaxItems,
	}
}

// ResolverOption is a functional option for configuring Resolver.
type ResolverOption func(*ResolverOptions)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(o *ResolverOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithScalars replaces the built-in scalar list.
func WithScalars(names ...string) ResolverOption {
	return func(o *ResolverOptions) {
		if len(names) > 0 {
			o.Scalars = names
		}
	}
}

// WithMaxItems sets the worklist bound.
func WithMaxItems(n int) ResolverOption {
	return func(o *ResolverOptions) {
		if n > 0 {
			o.MaxItems = n
		}
	}
}

// WithProgressCallback sets the stage progress callback.
func WithProgressCallback(fn ProgressFunc) ResolverOption {
	return func(o *ResolverOptions) {
		o.ProgressCallback = fn
	}
}

// Stage is a resolution pipeline stage.
type Stage int

const (
	// StageBind builds the binding table.
	StageBind Stage = iota

	// StageResolve drains the worklist.
	StageResolve

	// StageName names anonymous objects.
	StageName

	// StageScalars injects bound and default scalars.
	StageScalars
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageBind:
		return "bind"
	case StageResolve:
		return "resolve"
	case StageName:
		return "name"
	case StageScalars:
		return "scalars"
	default:
		return "unknown"
	}
}

// Progress reports a completed stage.
type Progress struct {
	Stage    Stage
	Entities int
	Items    int
}

// ProgressFunc is a callback for stage progress updates.
type ProgressFunc func(Progress)
