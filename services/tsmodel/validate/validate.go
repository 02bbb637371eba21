// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate checks decoded input values against a resolved model.
//
// Every field runs the same pipeline:
//
//  1. structural recursion (presence, nullability, type, nested values)
//  2. assert constraints
//  3. the field's input validator callback, if bound
//
// After all fields of an object pass, the object-level after-hook runs.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// ErrUnknownEntity is returned when the entity to validate is not in the
// registry or is not an object.
var ErrUnknownEntity = errors.New("unknown entity")

// FieldContext identifies the field an input callback runs for.
type FieldContext struct {
	Entity     string
	Field      string
	Path       string
	Descriptor model.Descriptor
}

// InputFunc runs a bound input validator. It returns the value to keep.
type InputFunc func(ctx context.Context, fc FieldContext, value any) (any, error)

// AfterFunc runs once per object after all its fields passed.
type AfterFunc func(ctx context.Context, entity string, value map[string]any) error

// Options configures a Validator.
type Options struct {
	// Input runs bound input validators. Nil skips them.
	Input InputFunc

	// After is the object-level hook. Nil skips it.
	After AfterFunc

	// Logger receives debug output.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Option is a functional option for configuring a Validator.
type Option func(*Options)

// WithInput sets the input validator callback.
func WithInput(fn InputFunc) Option {
	return func(o *Options) { o.Input = fn }
}

// WithAfter sets the object-level hook.
func WithAfter(fn AfterFunc) Option {
	return func(o *Options) { o.After = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// FieldError is one failed check.
type FieldError struct {
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// String renders path: message (rule).
func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Rule)
}

// Errors collects every failed check of one Validate call.
type Errors []FieldError

// Error implements error.
func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator validates values against one registry.
//
// Thread Safety:
//
//	Safe for concurrent use as long as the registry is not modified.
type Validator struct {
	registry *model.Registry
	checks   *validator.Validate
	options  Options
}

// New creates a validator for reg.
func New(reg *model.Registry, opts ...Option) *Validator {
	options := Options{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Validator{
		registry: reg,
		checks:   validator.New(),
		options:  options,
	}
}

// run holds the state of one Validate call.
type run struct {
	v    *Validator
	ctx  context.Context
	errs Errors

	// dry skips callbacks while probing union members.
	dry bool
}

// Validate checks value against entity and returns the normalized value:
// defaults applied and input callbacks' results stored.
//
// Outputs:
//
//	any - The normalized value, nil on failure.
//	error - Errors listing every failed check, ErrUnknownEntity, or the
//	context error.
func (v *Validator) Validate(ctx context.Context, entity string, value any) (any, error) {
	e, ok := v.registry.Get(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	if _, ok := e.(*model.Object); !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrUnknownEntity, entity, e.Kind())
	}

	r := &run{v: v, ctx: ctx}
	out, err := r.reference(&model.Reference{Name: entity}, value, entity)
	if err != nil {
		return nil, err
	}
	if len(r.errs) > 0 {
		sort.SliceStable(r.errs, func(i, j int) bool { return r.errs[i].Path < r.errs[j].Path })
		v.options.Logger.Debug("validation failed",
			slog.String("entity", entity),
			slog.Int("errors", len(r.errs)),
		)
		return nil, r.errs
	}
	return out, nil
}

func (r *run) fail(path, rule, format string, args ...any) {
	r.errs = append(r.errs, FieldError{Path: path, Rule: rule, Message: fmt.Sprintf(format, args...)})
}

// value validates one type slot. A nil value is accepted here; presence
// is checked by the caller.
func (r *run) value(t model.Type, value any, path string) (any, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	switch tt := t.(type) {
	case *model.List:
		items, ok := value.([]any)
		if !ok {
			r.fail(path, "type", "expected a list, got %s", describe(value))
			return value, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				r.fail(itemPath, "required", "list elements must not be null")
				continue
			}
			v, err := r.value(tt.Elem, item, itemPath)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *model.Reference:
		return r.reference(tt, value, path)
	default:
		return value, nil
	}
}

func (r *run) reference(ref *model.Reference, value any, path string) (any, error) {
	e, ok := r.v.registry.Get(ref.Name)
	if !ok {
		r.fail(path, "type", "unknown type %s", ref.Name)
		return value, nil
	}
	switch ent := e.(type) {
	case *model.Object:
		obj, ok := value.(map[string]any)
		if !ok {
			r.fail(path, "type", "expected %s object, got %s", ent.Name, describe(value))
			return value, nil
		}
		return r.object(ent, obj, path)
	case *model.Union:
		return r.union(ent, value, path)
	case *model.Enum:
		for _, m := range ent.Members {
			if m.Value == value {
				return value, nil
			}
		}
		r.fail(path, "enum", "%v is not a member of %s", value, ent.Name)
		return value, nil
	case *model.BasicScalar:
		if msg := r.v.checkScalar(ent.Name, value); msg != "" {
			r.fail(path, "type", "%s", msg)
		}
		return value, nil
	default:
		// Custom scalars parse their own input.
		return value, nil
	}
}

func (r *run) object(obj *model.Object, in map[string]any, path string) (any, error) {
	out := make(map[string]any, len(obj.Fields))
	before := len(r.errs)
	for _, f := range obj.Fields {
		fieldPath := f.Name
		if path != "" {
			fieldPath = path + "." + f.Name
		}
		raw, present := in[f.Name]
		if !present && f.Default != nil {
			raw, present = f.Default, true
		}
		if !present || raw == nil {
			if f.Required && f.Resolver == nil {
				r.fail(fieldPath, "required", "missing required field")
			}
			continue
		}

		fieldBefore := len(r.errs)

		// 1. structural recursion
		v, err := r.value(f.Type, raw, fieldPath)
		if err != nil {
			return nil, err
		}
		// 2. assertions
		if f.Assert != nil {
			r.assert(f.Assert, v, fieldPath)
		}
		// 3. input callback
		if !r.dry && f.Input != nil && r.v.options.Input != nil && len(r.errs) == fieldBefore {
			v, err = r.v.options.Input(r.ctx, FieldContext{
				Entity: obj.Name, Field: f.Name, Path: fieldPath, Descriptor: f.Input.Descriptor,
			}, v)
			if err != nil {
				r.fail(fieldPath, "input", "%v", err)
				continue
			}
		}
		out[f.Name] = v
	}

	// 4. after-hook, only for objects whose fields all passed
	if !r.dry && r.v.options.After != nil && len(r.errs) == before {
		if err := r.v.options.After(r.ctx, obj.Name, out); err != nil {
			r.fail(path, "after", "%v", err)
		}
	}
	return out, nil
}

// union validates value against the member named by __typename, or the
// first member it satisfies.
func (r *run) union(u *model.Union, value any, path string) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		r.fail(path, "type", "expected %s object, got %s", u.Name, describe(value))
		return value, nil
	}
	if name, ok := obj["__typename"].(string); ok {
		if u.Member(name) == nil {
			r.fail(path, "union", "%s is not a member of %s", name, u.Name)
			return value, nil
		}
		return r.reference(u.Member(name), withoutTypename(obj), path)
	}
	for _, m := range u.Members {
		trial := &run{v: r.v, ctx: r.ctx, dry: true}
		if _, err := trial.reference(m, obj, path); err != nil {
			return nil, err
		}
		if len(trial.errs) == 0 {
			return r.reference(m, obj, path)
		}
	}
	r.fail(path, "union", "value matches no member of %s", u.Name)
	return value, nil
}

func withoutTypename(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k != "__typename" {
			out[k] = v
		}
	}
	return out
}

// describe names the JSON type of v.
func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
