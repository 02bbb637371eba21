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
	"fmt"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/bindings"
	"github.com/AleutianAI/tsmodel/services/tsmodel/metadata"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// item is one unit of work: a syntax node and the context it is resolved
// in.
type item struct {
	node   *ast.Node
	parent model.Node
	mode   bindings.Mode
	env    *genericEnv

	// target is set for declaration items.
	target *target
	root   bool

	// owners are the binding table keys consulted for a member, own
	// declaration first.
	owners []string

	// hint names anonymous object types found under this item.
	hint string
	path []string

	// hops counts direct re-entries without an intervening worklist item;
	// alias is the last type alias expanded on that chain.
	hops  int
	alias string
}

// child derives an item for a nested node under a new parent.
func (it *item) child(node *ast.Node, parent model.Node) *item {
	return &item{node: node, parent: parent, mode: it.mode, env: it.env, hint: it.hint, path: it.path}
}

// reenter visits sub in place of it. Alias expansion, promise unwrapping
// and single-member unions do not go through the worklist, so the chain is
// bounded here.
func (s *resolveState) reenter(it, sub *item) error {
	sub.hops = it.hops + 1
	if sub.alias == "" {
		sub.alias = it.alias
	}
	if sub.hops > maxTypeDepth {
		if sub.alias != "" {
			return newError(it.node, ErrUnsupportedType, "type alias %s circularly references itself", sub.alias)
		}
		return newError(it.node, ErrUnsupportedType, "type %s does not resolve to a model type", snippet(it.node.Text))
	}
	return s.visit(sub)
}

// visit dispatches one item on its node kind.
func (s *resolveState) visit(it *item) error {
	if it.target != nil {
		return s.visitDeclaration(it)
	}
	switch it.node.Kind {
	case ast.NodeEnumMember:
		return s.visitEnumMember(it)
	case ast.NodeProperty, ast.NodeMethod:
		return s.visitMember(it)
	case ast.NodeTypeReference:
		return s.visitReference(it)
	case ast.NodeArray:
		return s.visitArray(it)
	case ast.NodeUnion:
		return s.visitUnion(it)
	case ast.NodeTypeLiteral:
		return s.visitTypeLiteral(it)
	case ast.NodeTuple:
		return newError(it.node, ErrTuple, "use a list type instead")
	case ast.NodePrimitive:
		return s.setType(it, &model.Reference{Name: it.node.Name})
	case ast.NodeLiteral:
		name, ok := literalScalar(it.node)
		if !ok {
			return newError(it.node, ErrUnsupportedType, "%s cannot be used as a field type", it.node.Name)
		}
		return s.setType(it, &model.Reference{Name: name})
	case ast.NodeUnsupported:
		return newError(it.node, ErrUnsupportedType, "%s", snippet(it.node.Text))
	default:
		s.warn(it.node.Location, fmt.Sprintf("skipping %s: no model rule for this node", it.node))
		return nil
	}
}

// visitDeclaration creates the entity for a scheduled declaration.
func (s *resolveState) visitDeclaration(it *item) error {
	t := it.target
	md, err := metadata.Extract(t.decl)
	if err != nil {
		return err
	}
	if md.Ignore && !it.root {
		return newError(it.node, ErrUnresolved, "%s is referenced but excluded from the model", t.sym.Name)
	}
	if !t.sym.Exported() && (it.root || t.class == classEnum) {
		return newError(t.decl, ErrNotExported, "model declaration %s must be exported", t.sym.Name)
	}

	switch t.class {
	case classObject:
		return s.visitObject(it, md)
	case classEnum:
		return s.visitEnum(it, md)
	case classUnion:
		return s.visitUnionAlias(it, md)
	case classScalar:
		sc := &model.Scalar{Name: t.name, Doc: md.Doc, Location: t.decl.Location}
		if b, ok := s.table.Scalar(t.name); ok {
			sc.Descriptor = b.Descriptor
		}
		return s.register(t.decl, sc)
	case classBasicScalar:
		return s.register(t.decl, &model.BasicScalar{Name: t.name})
	default:
		return newError(t.decl, ErrUnsupportedType, "%s cannot be a model entity", t.sym.Name)
	}
}

func (s *resolveState) register(at *ast.Node, e model.Entity) error {
	if err := s.registry.Add(e); err != nil {
		return newError(at, ErrDuplicateEntity, "%s", e.EntityName())
	}
	return nil
}

func (s *resolveState) visitObject(it *item, md *metadata.Metadata) error {
	t := it.target
	obj := model.NewObject(t.name)
	obj.Generics = t.decl.TypeParamNames()
	obj.Doc = md.Doc
	obj.Deprecated = md.Deprecated
	obj.Location = t.decl.Location
	for _, d := range t.sym.Decls {
		if d.Kind == ast.NodeClass {
			obj.IsClass = true
		}
	}
	if err := s.register(t.decl, obj); err != nil {
		return err
	}

	props, err := s.ts.Properties(t.sym)
	if err != nil {
		return newError(t.decl, ErrUnresolved, "%v", err)
	}
	heritage := s.ts.Heritage(t.sym)
	if t.env != nil && len(props) == 0 && len(heritage) == 0 {
		return newError(t.decl, ErrEmptyGeneric, "%s", t.name)
	}

	owners := []string{t.sym.Key()}
	s.pushMembers(it, obj, props, t.env, owners)

	visited := map[string]bool{t.sym.Key(): true}
	return s.inherit(it, obj, heritage, t.env, owners, visited, true)
}

// inherit records the direct bases of obj and pushes inherited members
// after the own ones, nearest base first.
func (s *resolveState) inherit(it *item, obj *model.Object, heritage []*ast.Node, env *genericEnv, owners []string, visited map[string]bool, direct bool) error {
	for _, h := range heritage {
		base, err := s.resolveTarget(h, env, 0)
		if err != nil {
			return err
		}
		if base.class != classObject {
			return newError(h, ErrUnsupportedType, "%s can only extend classes or interfaces", obj.Name)
		}
		if direct {
			obj.Inherits = append(obj.Inherits, &model.Reference{Name: base.name, File: base.file()})
			if err := s.enqueue(base, it.mode, h, false); err != nil {
				return err
			}
		}
		key := base.sym.Key()
		if visited[key] {
			continue
		}
		visited[key] = true

		props, err := s.ts.Properties(base.sym)
		if err != nil {
			return newError(h, ErrUnresolved, "%v", err)
		}
		baseOwners := append(append([]string(nil), owners...), key)
		s.pushMembers(it, obj, props, base.env, baseOwners)
		if err := s.inherit(it, obj, s.ts.Heritage(base.sym), base.env, baseOwners, visited, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *resolveState) pushMembers(it *item, obj *model.Object, members []*ast.Node, env *genericEnv, owners []string) {
	for _, m := range members {
		s.queue.Push(&item{
			node:   m,
			parent: obj,
			mode:   it.mode,
			env:    env,
			owners: owners,
			path:   []string{obj.Name, m.Name},
		})
	}
}

func (s *resolveState) visitEnum(it *item, md *metadata.Metadata) error {
	t := it.target
	enum := model.NewEnum(t.name)
	enum.Doc = md.Doc
	enum.Deprecated = md.Deprecated
	enum.Location = t.decl.Location
	if err := s.register(t.decl, enum); err != nil {
		return err
	}
	for _, d := range t.sym.Decls {
		if d.Kind != ast.NodeEnum {
			continue
		}
		for _, m := range d.Members {
			s.queue.Push(&item{node: m, parent: enum, path: []string{enum.Name, m.Name}})
		}
	}
	return nil
}

func (s *resolveState) visitEnumMember(it *item) error {
	enum, ok := it.parent.(*model.Enum)
	if !ok {
		return newError(it.node, ErrOrphanMember, "enum member %s outside an enum", it.node.Name)
	}
	md, err := metadata.Extract(it.node)
	if err != nil {
		return err
	}
	if md.Ignore {
		return nil
	}
	value, err := s.ts.ConstantValue(it.node)
	if err != nil {
		return newError(it.node, ErrUnsupportedType, "enum member %s.%s: %v", enum.Name, it.node.Name, err)
	}
	enum.AddMember(&model.EnumMember{
		Name:       it.node.Name,
		Value:      value,
		Doc:        md.Doc,
		Deprecated: md.Deprecated,
	})
	return nil
}

// visitUnionAlias builds a named union. Members must be classes or
// interfaces.
func (s *resolveState) visitUnionAlias(it *item, md *metadata.Metadata) error {
	t := it.target
	u := &model.Union{Name: t.name, Doc: md.Doc, Location: t.decl.Location}
	if b, ok := s.table.Union(t.name); ok {
		d := b.Descriptor
		u.Resolver = &d
	}
	for _, m := range concreteMembers(t.decl.Type) {
		node, env, err := substitute(m, t.env)
		if err != nil {
			return err
		}
		if node.Kind != ast.NodeTypeReference {
			return newError(m, ErrUnionMember, "union %s member %s must be a class or interface", t.name, snippet(m.Text))
		}
		member, err := s.resolveTarget(node, env, 0)
		if err != nil {
			return err
		}
		if member.class != classObject || member.decl.Kind == ast.NodeTypeAlias {
			return newError(m, ErrUnionMember, "union %s member %s must be a class or interface", t.name, node.Name)
		}
		if u.Member(member.name) != nil {
			continue
		}
		u.Members = append(u.Members, &model.Reference{Name: member.name, File: member.file()})
		if err := s.enqueue(member, it.mode, node, false); err != nil {
			return err
		}
	}
	return s.register(t.decl, u)
}

// visitMember creates or completes the field for a property or method.
func (s *resolveState) visitMember(it *item) error {
	node := it.node
	obj, ok := it.parent.(*model.Object)
	if !ok {
		return newError(node, ErrOrphanMember, "member %s has no object parent", node.Name)
	}
	if node.Name == "constructor" || (node.Kind == ast.NodeProperty && node.HasModifier(ast.ModStatic)) {
		return nil
	}
	md, err := metadata.Extract(node)
	if err != nil {
		return err
	}
	if md.Ignore {
		return nil
	}

	field, created := obj.FieldOrCreate(node.Name)
	if created {
		if node.Type == nil {
			return newError(node, ErrUnsupportedType, "%s.%s needs a type annotation", obj.Name, node.Name)
		}
		field.Required = !node.Optional
		field.Doc = md.Doc
		field.Deprecated = md.Deprecated
		field.Default = md.Default
		field.Assert = md.Assert
		typeItem := it.child(node.Type, field)
		typeItem.hint = node.Name
		s.queue.Push(typeItem)
	} else {
		fillMetadata(field, md)
	}

	s.applyBindings(it, field)
	if node.Kind == ast.NodeMethod && node.HasBody {
		m := &model.Method{Descriptor: model.Descriptor{
			File:   node.Location.FilePath,
			Class:  node.Owner,
			Name:   node.Name,
			Static: node.HasModifier(ast.ModStatic),
		}}
		if attachMethod(field, m, it.mode) {
			s.pushParam(it, field, m, node)
		}
	}
	return nil
}

// fillMetadata sets metadata the field does not have yet.
func fillMetadata(f *model.Field, md *metadata.Metadata) {
	if f.Doc == "" {
		f.Doc = md.Doc
	}
	if f.Deprecated == "" {
		f.Deprecated = md.Deprecated
	}
	if f.Default == nil {
		f.Default = md.Default
	}
	if f.Assert == nil {
		f.Assert = md.Assert
	}
}

// attachMethod stores m in the slot selected by mode if it is empty.
// Own members are visited before inherited ones, so an overriding method
// keeps the slot and the base method is dropped.
func attachMethod(f *model.Field, m *model.Method, mode bindings.Mode) bool {
	slot := &f.Resolver
	if mode == bindings.ModeInput {
		slot = &f.Input
	}
	if *slot != nil {
		return false
	}
	*slot = m
	return true
}

// applyBindings attaches resolver classes bound to the field's owners.
// It runs before model methods are attached, so bindings take precedence.
func (s *resolveState) applyBindings(it *item, f *model.Field) {
	var input, output *bindings.Binding
	for _, owner := range it.owners {
		in, out := s.table.Lookup(owner, f.Name)
		if input == nil {
			input = in
		}
		if output == nil {
			output = out
		}
	}
	if output != nil && (f.Resolver == nil || f.Resolver.Descriptor != output.Descriptor) {
		m := &model.Method{Descriptor: output.Descriptor}
		f.Resolver = m
		s.pushParam(it, f, m, output.Method)
	}
	if input != nil && (f.Input == nil || f.Input.Descriptor != input.Descriptor) {
		m := &model.Method{Descriptor: input.Descriptor}
		f.Input = m
		s.pushParam(it, f, m, input.Method)
	}
}

// pushParam turns the second method parameter into m.Param. The first
// parameter is the parent value.
func (s *resolveState) pushParam(it *item, f *model.Field, m *model.Method, method *ast.Node) {
	if method == nil || len(method.Params) < 2 || method.Params[1].Type == nil {
		return
	}
	p := method.Params[1]
	m.Param = &model.Param{Name: p.Name}
	s.queue.Push(&item{
		node:   p.Type,
		parent: m.Param,
		mode:   bindings.ModeInput,
		env:    it.env,
		hint:   f.Name + "Args",
		path:   append(append([]string(nil), it.path...), p.Name),
	})
}

// setType stores t in the parent's type slot.
func (s *resolveState) setType(it *item, t model.Type) error {
	switch p := it.parent.(type) {
	case *model.Field:
		if p.Type != nil {
			return newError(it.node, ErrConflictingType, "field %s already has type %s", p.Name, model.TypeName(p.Type))
		}
		p.Type = t
	case *model.List:
		if p.Elem != nil {
			return newError(it.node, ErrConflictingType, "list already has element %s", model.TypeName(p.Elem))
		}
		p.Elem = t
	case *model.Param:
		if _, ok := t.(*model.Reference); !ok {
			return newError(it.node, ErrUnsupportedType, "argument %s must be an object type", p.Name)
		}
		if p.Type != nil {
			return newError(it.node, ErrConflictingType, "argument %s already has type %s", p.Name, model.TypeName(p.Type))
		}
		p.Type = t
	case *model.Reference:
		p.Args = append(p.Args, t)
	default:
		s.escape(it)
	}
	return nil
}

// escape records a type node whose parent has no type slot.
func (s *resolveState) escape(it *item) {
	parent := "nothing"
	if it.parent != nil {
		parent = it.parent.Kind().String()
	}
	s.warn(it.node.Location, fmt.Sprintf("skipping type %s under %s", snippet(it.node.Text), parent))
}

func (s *resolveState) hasTypeSlot(parent model.Node) bool {
	switch parent.(type) {
	case *model.Field, *model.List, *model.Param, *model.Reference:
		return true
	}
	return false
}

func (s *resolveState) visitReference(it *item) error {
	if !s.hasTypeSlot(it.parent) {
		s.escape(it)
		return nil
	}
	node, env, err := substitute(it.node, it.env)
	if err != nil {
		return err
	}
	if node != it.node {
		sub := it.child(node, it.parent)
		sub.env = env
		return s.reenter(it, sub)
	}

	if node.Qualifier == "" && len(node.TypeArgs) == 1 {
		if promiseTypes[node.Name] {
			return s.reenter(it, it.child(node.TypeArgs[0], it.parent))
		}
		if arrayTypes[node.Name] {
			list := &model.List{Required: true}
			if err := s.setType(it, list); err != nil {
				return err
			}
			s.queue.Push(it.child(node.TypeArgs[0], list))
			return nil
		}
	}

	t, err := s.resolveTarget(node, env, 0)
	if err != nil {
		return err
	}
	if t.class == classAlias {
		sub := it.child(t.decl.Type, it.parent)
		sub.env = t.env
		sub.alias = t.name
		return s.reenter(it, sub)
	}

	ref := &model.Reference{Name: t.name, File: t.file()}
	if err := s.setType(it, ref); err != nil {
		return err
	}
	if t.env != nil {
		for _, tp := range t.decl.TypeParams {
			arg := t.env.params[tp.Name]
			argItem := it.child(arg.node, ref)
			argItem.env = arg.env
			s.queue.Push(argItem)
		}
	}
	return s.enqueue(t, it.mode, node, false)
}

func (s *resolveState) visitArray(it *item) error {
	if !s.hasTypeSlot(it.parent) {
		s.escape(it)
		return nil
	}
	if it.node.Type == nil {
		return newError(it.node, ErrEmptyList, "array without element type")
	}
	list := &model.List{Required: true}
	if err := s.setType(it, list); err != nil {
		return err
	}
	s.queue.Push(it.child(it.node.Type, list))
	return nil
}

// visitUnion handles inline unions: nullish members make a field optional
// and exactly one concrete type must remain.
func (s *resolveState) visitUnion(it *item) error {
	concrete := concreteMembers(it.node)
	if len(concrete) < len(it.node.Types) {
		if f, ok := it.parent.(*model.Field); ok {
			f.Required = false
		}
	}
	switch len(concrete) {
	case 0:
		return newError(it.node, ErrUnsupportedType, "union %s has no concrete member", snippet(it.node.Text))
	case 1:
		return s.reenter(it, it.child(concrete[0], it.parent))
	}

	first, err := s.typeName(concrete[0], it.env, 0)
	if err == nil {
		same := true
		for _, m := range concrete[1:] {
			name, err := s.typeName(m, it.env, 0)
			if err != nil || name != first {
				same = false
				break
			}
		}
		if same {
			return s.reenter(it, it.child(concrete[0], it.parent))
		}
	}
	return newError(it.node, ErrUnnamedUnion, "give a name to the union %s", snippet(it.node.Text))
}

// visitTypeLiteral creates an anonymous object behind a placeholder
// reference. Names are assigned after resolution.
func (s *resolveState) visitTypeLiteral(it *item) error {
	switch it.parent.(type) {
	case *model.Field, *model.List, *model.Param:
	default:
		s.escape(it)
		return nil
	}
	obj := model.NewObject("")
	obj.Location = it.node.Location
	ref := &model.Reference{File: it.node.Location.FilePath}
	if err := s.setType(it, ref); err != nil {
		return err
	}
	s.nameless = append(s.nameless, &anonymous{obj: obj, ref: ref, hint: it.hint})
	for _, m := range it.node.Members {
		s.queue.Push(&item{
			node:   m,
			parent: obj,
			mode:   it.mode,
			env:    it.env,
			path:   append(append([]string(nil), it.path...), m.Name),
		})
	}
	return nil
}
