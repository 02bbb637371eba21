// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema materializes a resolved model as GraphQL SDL.
//
// Objects become output types. Objects reachable from resolver arguments
// become input types, suffixed with "Input" when they are also used as
// output. Argument objects themselves are spread into field arguments.
// Generic instance names are flattened: Page<User> becomes PageUser.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// ErrNameCollision is returned when two entities flatten to the same
// GraphQL name.
var ErrNameCollision = errors.New("graphql name collision")

// DefaultScalarMap maps basic scalars to GraphQL built-ins. Basic scalars
// missing from the map are declared as custom scalars.
var DefaultScalarMap = map[string]string{
	"string":  "String",
	"number":  "Float",
	"Int":     "Int",
	"UInt":    "Int",
	"UFloat":  "Float",
	"boolean": "Boolean",
}

// Options configures SDL generation.
type Options struct {
	// ScalarMap maps basic scalar names to GraphQL built-ins.
	// Default: DefaultScalarMap
	ScalarMap map[string]string

	// Descriptions emits doc comments as descriptions.
	// Default: true
	Descriptions bool
}

// Option is a functional option for Generate.
type Option func(*Options)

// WithScalarMap replaces the basic scalar mapping.
func WithScalarMap(m map[string]string) Option {
	return func(o *Options) {
		if m != nil {
			o.ScalarMap = m
		}
	}
}

// WithDescriptions toggles descriptions.
func WithDescriptions(enabled bool) Option {
	return func(o *Options) { o.Descriptions = enabled }
}

// Generate renders reg as SDL.
//
// Description:
//
//	Definitions follow registry order. Built-in scalars are not declared.
//	Fields bound to an output resolver are left out of input types.
//
// Outputs:
//
//	string - The SDL document.
//	error - Wraps ErrNameCollision when flattened names clash.
func Generate(reg *model.Registry, opts ...Option) (string, error) {
	options := Options{ScalarMap: DefaultScalarMap, Descriptions: true}
	for _, opt := range opts {
		opt(&options)
	}
	g := &generator{reg: reg, options: options}
	if err := g.plan(); err != nil {
		return "", err
	}
	return g.render(), nil
}

// Name flattens an entity name into a GraphQL name.
func Name(name string) string {
	var b strings.Builder
	upper := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if upper {
				r = unicode.ToUpper(r)
			}
			if b.Len() == 0 && unicode.IsDigit(r) {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

type generator struct {
	reg     *model.Registry
	options Options

	// args holds objects used as resolver parameters.
	args map[string]bool
	// inputs holds objects reachable from argument fields.
	inputs map[string]bool
	// outputs holds objects reachable from output positions.
	outputs map[string]bool
	// names maps entity names to GraphQL names.
	names map[string]string
}

func (g *generator) object(name string) *model.Object {
	e, ok := g.reg.Get(name)
	if !ok {
		return nil
	}
	obj, _ := e.(*model.Object)
	return obj
}

// plan classifies objects and assigns names.
func (g *generator) plan() error {
	g.args = make(map[string]bool)
	g.inputs = make(map[string]bool)
	g.outputs = make(map[string]bool)

	var inputQueue []string
	for _, e := range g.reg.Entities() {
		obj, ok := e.(*model.Object)
		if !ok {
			continue
		}
		for _, f := range obj.Fields {
			for _, m := range []*model.Method{f.Resolver, f.Input} {
				if m == nil || m.Param == nil {
					continue
				}
				if ref, ok := m.Param.Type.(*model.Reference); ok && g.object(ref.Name) != nil {
					g.args[ref.Name] = true
				} else {
					inputQueue = append(inputQueue, objectRefs(m.Param.Type)...)
				}
			}
		}
	}
	for name := range g.args {
		for _, f := range g.object(name).Fields {
			inputQueue = append(inputQueue, objectRefs(f.Type)...)
		}
	}
	g.closure(inputQueue, g.inputs, false)

	var outputQueue []string
	for _, e := range g.reg.Entities() {
		name := e.EntityName()
		switch ent := e.(type) {
		case *model.Object:
			if !g.args[name] && !g.inputs[name] {
				outputQueue = append(outputQueue, name)
			}
		case *model.Union:
			for _, m := range ent.Members {
				outputQueue = append(outputQueue, m.Name)
			}
		}
	}
	g.closure(outputQueue, g.outputs, true)

	g.names = make(map[string]string)
	owners := make(map[string]string)
	claim := func(entity, gql string) error {
		if prev, ok := owners[gql]; ok && prev != entity {
			return fmt.Errorf("%w: %s and %s both map to %s", ErrNameCollision, prev, entity, gql)
		}
		owners[gql] = entity
		return nil
	}
	for _, e := range g.reg.Entities() {
		name := e.EntityName()
		gql := Name(name)
		if b, ok := e.(*model.BasicScalar); ok {
			if mapped, ok := g.options.ScalarMap[b.Name]; ok {
				gql = mapped
			}
		}
		g.names[name] = gql
		if err := claim(name, gql); err != nil {
			return err
		}
		if g.inputs[name] && g.outputs[name] {
			if err := claim(name+"#input", gql+"Input"); err != nil {
				return err
			}
		}
	}
	return nil
}

// closure marks every object reachable from queue. Output traversal
// follows inheritance and union members but not resolver parameters.
func (g *generator) closure(queue []string, seen map[string]bool, output bool) {
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		e, ok := g.reg.Get(name)
		if !ok {
			continue
		}
		switch ent := e.(type) {
		case *model.Object:
			seen[name] = true
			for _, f := range ent.Fields {
				if !output && f.Resolver != nil {
					continue
				}
				queue = append(queue, objectRefs(f.Type)...)
			}
			if output {
				for _, ref := range ent.Inherits {
					queue = append(queue, ref.Name)
				}
			}
		case *model.Union:
			for _, m := range ent.Members {
				queue = append(queue, m.Name)
			}
		}
	}
}

// objectRefs lists the names referenced by a type slot.
func objectRefs(t model.Type) []string {
	switch tt := t.(type) {
	case *model.Reference:
		return []string{tt.Name}
	case *model.List:
		return objectRefs(tt.Elem)
	}
	return nil
}

func (g *generator) render() string {
	var blocks []string
	for _, e := range g.reg.Entities() {
		name := e.EntityName()
		switch ent := e.(type) {
		case *model.Object:
			if g.outputs[name] || (!g.args[name] && !g.inputs[name]) {
				blocks = append(blocks, g.renderObject(ent, false))
			}
			if g.inputs[name] {
				blocks = append(blocks, g.renderObject(ent, true))
			}
		case *model.Enum:
			blocks = append(blocks, g.renderEnum(ent))
		case *model.Union:
			blocks = append(blocks, g.renderUnion(ent))
		case *model.Scalar:
			blocks = append(blocks, g.description(ent.Doc, "")+"scalar "+g.names[name])
		case *model.BasicScalar:
			if _, builtin := g.options.ScalarMap[ent.Name]; !builtin {
				blocks = append(blocks, "scalar "+g.names[name])
			}
		}
	}
	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

func (g *generator) inputName(name string) string {
	if g.outputs[name] {
		return g.names[name] + "Input"
	}
	return g.names[name]
}

func (g *generator) renderObject(obj *model.Object, input bool) string {
	var b strings.Builder
	b.WriteString(g.description(obj.Doc, ""))
	if input {
		b.WriteString("input " + g.inputName(obj.Name) + " {\n")
	} else {
		b.WriteString("type " + g.names[obj.Name] + " {\n")
	}
	for _, f := range obj.Fields {
		if input && f.Resolver != nil {
			continue
		}
		b.WriteString(g.description(f.Doc, "  "))
		b.WriteString("  " + f.Name)
		if !input && f.Resolver != nil && f.Resolver.Param != nil {
			b.WriteString(g.renderArgs(f.Resolver.Param))
		}
		b.WriteString(": " + g.typeRef(f.Type, f.Required, input))
		if input && f.Default != nil {
			b.WriteString(" = " + literal(f.Default))
		}
		if !input && f.Deprecated != "" {
			b.WriteString(deprecated(f.Deprecated))
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// renderArgs spreads an argument object into an argument list.
func (g *generator) renderArgs(p *model.Param) string {
	ref, ok := p.Type.(*model.Reference)
	var obj *model.Object
	if ok {
		obj = g.object(ref.Name)
	}
	if obj == nil {
		return "(" + p.Name + ": " + g.typeRef(p.Type, true, true) + ")"
	}
	parts := make([]string, 0, len(obj.Fields))
	for _, f := range obj.Fields {
		arg := f.Name + ": " + g.typeRef(f.Type, f.Required, true)
		if f.Default != nil {
			arg += " = " + literal(f.Default)
		}
		parts = append(parts, arg)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (g *generator) typeRef(t model.Type, required, input bool) string {
	var s string
	switch tt := t.(type) {
	case *model.Reference:
		if input && g.inputs[tt.Name] {
			s = g.inputName(tt.Name)
		} else if name, ok := g.names[tt.Name]; ok {
			s = name
		} else {
			s = Name(tt.Name)
		}
	case *model.List:
		s = "[" + g.typeRef(tt.Elem, true, input) + "]"
		required = required && tt.Required
	default:
		s = "String"
	}
	if required {
		s += "!"
	}
	return s
}

func (g *generator) renderEnum(e *model.Enum) string {
	var b strings.Builder
	b.WriteString(g.description(e.Doc, ""))
	b.WriteString("enum " + g.names[e.Name] + " {\n")
	for _, m := range e.Members {
		b.WriteString(g.description(m.Doc, "  "))
		b.WriteString("  " + Name(m.Name))
		if m.Deprecated != "" {
			b.WriteString(deprecated(m.Deprecated))
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

func (g *generator) renderUnion(u *model.Union) string {
	members := make([]string, len(u.Members))
	for i, m := range u.Members {
		members[i] = g.names[m.Name]
		if members[i] == "" {
			members[i] = Name(m.Name)
		}
	}
	return g.description(u.Doc, "") + "union " + g.names[u.Name] + " = " + strings.Join(members, " | ")
}

// description renders doc as a block string. Tag lines are dropped.
func (g *generator) description(doc, indent string) string {
	if !g.options.Descriptions || doc == "" {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "@") {
			continue
		}
		lines = append(lines, strings.ReplaceAll(line, `"""`, `\"""`))
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return ""
	}
	if !strings.Contains(text, "\n") {
		return indent + `"""` + text + `"""` + "\n"
	}
	var b strings.Builder
	b.WriteString(indent + `"""` + "\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(indent + line + "\n")
	}
	b.WriteString(indent + `"""` + "\n")
	return b.String()
}

func deprecated(reason string) string {
	return " @deprecated(reason: " + strconv.Quote(reason) + ")"
}

// literal renders a default value as a GraphQL value.
func literal(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = literal(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + literal(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case nil:
		return "null"
	default:
		return strconv.Quote(fmt.Sprint(t))
	}
}
