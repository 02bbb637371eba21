// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bindings builds the side index connecting externally declared
// resolver classes, scalar implementations and union type resolvers to
// the model entities they serve.
//
// Recognized declarations:
//
//	export class UserResolvers implements ResolversOf<User> { ... }
//	export class UserInput implements InputResolversOf<User> { ... }
//	export const email: ModelScalar<Email> = { ... }
//	export type Email = ModelScalar<EmailAddress>
//	export const resolveNode: ModelUnion<Node> = ...
package bindings

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// Well-known helper type names.
const (
	ResolversOf      = "ResolversOf"
	InputResolversOf = "InputResolversOf"
	ModelScalar      = "ModelScalar"
	ModelUnion       = "ModelUnion"
)

// Mode selects the binding role of a method.
type Mode uint8

const (
	// ModeOutput binds a field resolver.
	ModeOutput Mode = iota + 1

	// ModeInput binds an input validator.
	ModeInput
)

// String returns "output" or "input".
func (m Mode) String() string {
	switch m {
	case ModeOutput:
		return "output"
	case ModeInput:
		return "input"
	default:
		return "none"
	}
}

// Program is the part of the type system the binding scan needs.
type Program interface {
	SourceFiles() []*ast.File
	Lookup(ref *ast.Node) (*ast.Symbol, error)
}

// Binding is one method bound to a target member.
type Binding struct {
	Mode       Mode
	Descriptor model.Descriptor

	// Target is the key of the bound class or interface symbol.
	Target string

	// Method is the method declaration. Its second parameter, if any,
	// becomes the field's Param.
	Method *ast.Node
}

// ScalarBinding is the implementation of a custom scalar.
type ScalarBinding struct {
	Name       string
	Descriptor model.Descriptor
	Node       *ast.Node
}

// UnionBinding is the type resolver of a named union.
type UnionBinding struct {
	Name       string
	Descriptor model.Descriptor
	Node       *ast.Node
}

type bindingKey struct {
	target string
	member string
	mode   Mode
}

// Table is the populated binding index.
//
// Thread Safety:
//
//	Not safe for concurrent use: Lookup records which bindings were used.
type Table struct {
	bindings map[bindingKey]*Binding
	order    []bindingKey
	used     map[bindingKey]bool

	// classes holds declarations that are binding classes.
	classes map[*ast.Node]bool

	scalars     map[string]*ScalarBinding
	scalarOrder []string
	unions      map[string]*UnionBinding
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		bindings: make(map[bindingKey]*Binding),
		used:     make(map[bindingKey]bool),
		classes:  make(map[*ast.Node]bool),
		scalars:  make(map[string]*ScalarBinding),
		unions:   make(map[string]*UnionBinding),
	}
}

// Build scans every non-declaration file of prog.
//
// Description:
//
//	Must run before field resolution: fields look up their bound methods
//	while they are created. Files are visited in program order so
//	duplicate reports are deterministic.
//
// Outputs:
//
//	*Table - The populated table.
//	error - *Error wrapping ErrDuplicateBinding, ErrNotExported,
//	ErrBadTarget or model.ErrDuplicateEntity.
func Build(prog Program) (*Table, error) {
	t := NewTable()
	for _, file := range prog.SourceFiles() {
		if file.Declaration {
			continue
		}
		for _, decl := range file.Declarations {
			var err error
			switch decl.Kind {
			case ast.NodeClass:
				err = t.scanClass(prog, file, decl)
			case ast.NodeVariable:
				err = t.scanVariable(file, decl)
			case ast.NodeTypeAlias:
				err = t.scanAlias(file, decl)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (t *Table) scanClass(prog Program, file *ast.File, class *ast.Node) error {
	for _, h := range class.Heritage {
		if h.Type == nil {
			continue
		}
		var mode Mode
		switch h.Type.Name {
		case ResolversOf:
			mode = ModeOutput
		case InputResolversOf:
			mode = ModeInput
		default:
			continue
		}
		t.classes[class] = true

		if !class.Exported {
			return newError(class, ErrNotExported, "resolver class %s must be exported", class.Name)
		}
		if len(h.Type.TypeArgs) != 1 || h.Type.TypeArgs[0].Kind != ast.NodeTypeReference {
			return newError(h.Type, ErrBadTarget, "%s of class %s needs one type argument naming an interface", h.Type.Name, class.Name)
		}

		arg := h.Type.TypeArgs[0]
		target, err := prog.Lookup(arg)
		if err != nil {
			return newError(arg, ErrBadTarget, "%s<%s>: %v", h.Type.Name, arg.Name, err)
		}
		primary := target.Primary()
		if primary == nil || (primary.Kind != ast.NodeInterface && primary.Kind != ast.NodeClass) {
			return newError(arg, ErrBadTarget, "%s<%s>: %s is not a class or interface", h.Type.Name, arg.Name, arg.Name)
		}

		for _, m := range class.Members {
			if m.Kind != ast.NodeMethod || m.HasModifier(ast.ModPrivate) || m.HasModifier(ast.ModProtected) {
				continue
			}
			b := &Binding{
				Mode:   mode,
				Target: target.Key(),
				Method: m,
				Descriptor: model.Descriptor{
					File:   file.Path,
					Class:  class.Name,
					Name:   m.Name,
					Static: m.HasModifier(ast.ModStatic),
				},
			}
			key := bindingKey{target: b.Target, member: m.Name, mode: mode}
			if prev, ok := t.bindings[key]; ok {
				return newError(m, ErrDuplicateBinding,
					"%s binding for %s.%s is declared by %s and %s",
					mode, target.Name, m.Name, prev.Descriptor, b.Descriptor)
			}
			t.bindings[key] = b
			t.order = append(t.order, key)
		}
	}
	return nil
}

func (t *Table) scanVariable(file *ast.File, v *ast.Node) error {
	if v.Type == nil || v.Type.Kind != ast.NodeTypeReference {
		return nil
	}
	switch v.Type.Name {
	case ModelScalar:
		name, err := bindingArg(v)
		if err != nil {
			return err
		}
		if !v.Exported {
			return newError(v, ErrNotExported, "scalar implementation %s must be exported", v.Name)
		}
		return t.addScalar(name, model.Descriptor{File: file.Path, Name: v.Name}, v)

	case ModelUnion:
		name, err := bindingArg(v)
		if err != nil {
			return err
		}
		if !v.Exported {
			return newError(v, ErrNotExported, "union resolver %s must be exported", v.Name)
		}
		if prev, ok := t.unions[name]; ok {
			return newError(v, ErrDuplicateBinding, "union %s resolver is declared by %s and %s",
				name, prev.Descriptor, model.Descriptor{File: file.Path, Name: v.Name})
		}
		t.unions[name] = &UnionBinding{Name: name, Descriptor: model.Descriptor{File: file.Path, Name: v.Name}, Node: v}
	}
	return nil
}

func (t *Table) scanAlias(file *ast.File, alias *ast.Node) error {
	if alias.Type == nil || alias.Type.Kind != ast.NodeTypeReference || alias.Type.Name != ModelScalar {
		return nil
	}
	name, err := bindingArg(alias)
	if err != nil {
		return err
	}
	return t.addScalar(name, model.Descriptor{File: file.Path, Name: alias.Name}, alias)
}

func (t *Table) addScalar(name string, d model.Descriptor, node *ast.Node) error {
	if prev, ok := t.scalars[name]; ok {
		return newError(node, model.ErrDuplicateEntity, "%s is defined in %s and %s", name, prev.Descriptor.File, d.File)
	}
	t.scalars[name] = &ScalarBinding{Name: name, Descriptor: d, Node: node}
	t.scalarOrder = append(t.scalarOrder, name)
	return nil
}

// bindingArg returns the name of the single type argument of a helper type.
func bindingArg(decl *ast.Node) (string, error) {
	ref := decl.Type
	if len(ref.TypeArgs) != 1 || ref.TypeArgs[0].Kind != ast.NodeTypeReference {
		return "", newError(decl, ErrBadTarget, "%s needs one named type argument", ref.Name)
	}
	return ref.TypeArgs[0].Name, nil
}

// Lookup returns the input and output bindings of a target member.
// Returned bindings are marked used.
func (t *Table) Lookup(target, member string) (input, output *Binding) {
	inKey := bindingKey{target: target, member: member, mode: ModeInput}
	outKey := bindingKey{target: target, member: member, mode: ModeOutput}
	if b, ok := t.bindings[inKey]; ok {
		t.used[inKey] = true
		input = b
	}
	if b, ok := t.bindings[outKey]; ok {
		t.used[outKey] = true
		output = b
	}
	return input, output
}

// Unused returns bindings never returned by Lookup, in declaration order.
func (t *Table) Unused() []*Binding {
	var out []*Binding
	for _, key := range t.order {
		if !t.used[key] {
			out = append(out, t.bindings[key])
		}
	}
	return out
}

// IsBindingClass reports whether decl implements a resolver helper type.
func (t *Table) IsBindingClass(decl *ast.Node) bool {
	return t.classes[decl]
}

// Scalar returns the implementation bound to scalar name.
func (t *Table) Scalar(name string) (*ScalarBinding, bool) {
	s, ok := t.scalars[name]
	return s, ok
}

// Scalars returns scalar bindings in declaration order.
func (t *Table) Scalars() []*ScalarBinding {
	out := make([]*ScalarBinding, 0, len(t.scalarOrder))
	for _, name := range t.scalarOrder {
		out = append(out, t.scalars[name])
	}
	return out
}

// Union returns the type resolver bound to union name.
func (t *Table) Union(name string) (*UnionBinding, bool) {
	u, ok := t.unions[name]
	return u, ok
}

// Len returns the number of method bindings.
func (t *Table) Len() int {
	return len(t.bindings)
}

// Targets returns the distinct target keys, sorted.
func (t *Table) Targets() []string {
	seen := make(map[string]bool)
	var out []string
	for key := range t.bindings {
		if !seen[key.target] {
			seen[key.target] = true
			out = append(out, key.target)
		}
	}
	sort.Strings(out)
	return out
}

// String summarizes the table for logs.
func (t *Table) String() string {
	return fmt.Sprintf("bindings(methods=%d scalars=%d unions=%d)", len(t.bindings), len(t.scalars), len(t.unions))
}
