// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package merge deep-merges model registries produced by separate
// compilations.
//
// Registries, objects, enums and unions merge child by child. Any other
// pair of nodes at the same name path must be identical; differing leaves
// and differing kinds are fatal.
package merge

import (
	"fmt"
	"reflect"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// Merge merges source into target.
//
// Description:
//
//	The merge is validated in full before target is modified, so a failed
//	merge leaves target unchanged. Children only present in source are
//	appended to target in source order and are shared, not copied.
//
// Inputs:
//
//	target - Node receiving the merge. Must not be nil.
//	source - Node merged into target. Nil is a no-op.
//
// Outputs:
//
//	error - *Error wrapping ErrKindMismatch or ErrNotMergeable.
//
// Thread Safety:
//
//	Not safe for concurrent use with other readers or writers of target.
func Merge(target, source model.Node) error {
	if source == nil {
		return nil
	}
	if target == nil {
		return &Error{Err: ErrNotMergeable, Message: "nil target"}
	}
	if err := (&merger{}).node(target, source, nil); err != nil {
		return err
	}
	return (&merger{apply: true}).node(target, source, nil)
}

// Registries merges every entity of source into target.
func Registries(target, source *model.Registry) error {
	if source == nil {
		return nil
	}
	if target == nil {
		return &Error{Err: ErrNotMergeable, Message: "nil target registry"}
	}
	return Merge(target, source)
}

// merger walks two trees. With apply unset it only validates.
type merger struct {
	apply bool
}

func (m *merger) node(target, source model.Node, path []string) error {
	if target.Kind() != source.Kind() {
		return &Error{Path: path, Target: target.Kind(), Source: source.Kind(), Err: ErrKindMismatch}
	}
	switch t := target.(type) {
	case *model.Registry:
		return m.registry(t, source.(*model.Registry), path)
	case *model.Object:
		return m.object(t, source.(*model.Object), path)
	case *model.Enum:
		return m.enum(t, source.(*model.Enum), path)
	case *model.Union:
		return m.union(t, source.(*model.Union), path)
	default:
		return leaf(target, source, path)
	}
}

func (m *merger) registry(target, source *model.Registry, path []string) error {
	for _, se := range source.Entities() {
		te, ok := target.Get(se.EntityName())
		if !ok {
			if m.apply {
				if err := target.Add(se); err != nil {
					return fmt.Errorf("merge: %w", err)
				}
			}
			continue
		}
		if err := m.node(te, se, extend(path, se.EntityName())); err != nil {
			return err
		}
	}
	return nil
}

func (m *merger) object(target, source *model.Object, path []string) error {
	for _, sf := range source.Fields {
		tf := target.Field(sf.Name)
		if tf == nil {
			if m.apply {
				target.AddField(sf)
			}
			continue
		}
		if err := leaf(tf, sf, extend(path, sf.Name)); err != nil {
			return err
		}
	}
	if !m.apply {
		return nil
	}
	for _, ref := range source.Inherits {
		if !hasReference(target.Inherits, ref.Name) {
			target.Inherits = append(target.Inherits, ref)
		}
	}
	target.IsClass = target.IsClass || source.IsClass
	if target.Doc == "" {
		target.Doc = source.Doc
	}
	if target.Deprecated == "" {
		target.Deprecated = source.Deprecated
	}
	return nil
}

func (m *merger) enum(target, source *model.Enum, path []string) error {
	for _, sm := range source.Members {
		tm := target.Member(sm.Name)
		if tm == nil {
			if m.apply {
				target.AddMember(sm)
			}
			continue
		}
		if !reflect.DeepEqual(tm.Value, sm.Value) {
			return &Error{
				Path: extend(path, sm.Name), Target: tm.Kind(), Source: sm.Kind(), Err: ErrNotMergeable,
				Message: fmt.Sprintf("value %v differs from %v", tm.Value, sm.Value),
			}
		}
	}
	if m.apply && target.Doc == "" {
		target.Doc = source.Doc
	}
	return nil
}

func (m *merger) union(target, source *model.Union, path []string) error {
	if target.Resolver != nil && source.Resolver != nil && *target.Resolver != *source.Resolver {
		return &Error{
			Path: path, Target: target.Kind(), Source: source.Kind(), Err: ErrNotMergeable,
			Message: fmt.Sprintf("type resolver %s differs from %s", target.Resolver, source.Resolver),
		}
	}
	if !m.apply {
		return nil
	}
	for _, ref := range source.Members {
		if target.Member(ref.Name) == nil {
			target.Members = append(target.Members, ref)
		}
	}
	if target.Resolver == nil {
		target.Resolver = source.Resolver
	}
	return nil
}

// leaf accepts identical nodes and rejects everything else.
func leaf(target, source model.Node, path []string) error {
	if target.Kind() != source.Kind() {
		return &Error{Path: path, Target: target.Kind(), Source: source.Kind(), Err: ErrKindMismatch}
	}
	if sameLeaf(target, source) {
		return nil
	}
	return &Error{Path: path, Target: target.Kind(), Source: source.Kind(), Err: ErrNotMergeable, Message: "definitions differ"}
}

func sameLeaf(target, source model.Node) bool {
	switch t := target.(type) {
	case *model.BasicScalar:
		return t.Name == source.(*model.BasicScalar).Name
	case *model.Scalar:
		s := source.(*model.Scalar)
		return t.Name == s.Name && t.Descriptor == s.Descriptor
	case *model.EnumMember:
		return reflect.DeepEqual(t.Value, source.(*model.EnumMember).Value)
	case *model.Reference:
		return model.TypeName(t) == model.TypeName(source.(*model.Reference))
	case *model.Field:
		return sameField(t, source.(*model.Field))
	default:
		return reflect.DeepEqual(target, source)
	}
}

// sameField compares fields by their resolved shape. Locations and docs
// do not make two fields different.
func sameField(a, b *model.Field) bool {
	if a.Name != b.Name || a.Required != b.Required || !sameType(a.Type, b.Type) {
		return false
	}
	return reflect.DeepEqual(a.Default, b.Default) &&
		reflect.DeepEqual(a.Assert, b.Assert) &&
		sameMethod(a.Resolver, b.Resolver) &&
		sameMethod(a.Input, b.Input)
}

func sameType(a, b model.Type) bool {
	switch at := a.(type) {
	case *model.Reference:
		bt, ok := b.(*model.Reference)
		if !ok || at.Name != bt.Name || len(at.Args) != len(bt.Args) {
			return false
		}
		for i := range at.Args {
			if !sameType(at.Args[i], bt.Args[i]) {
				return false
			}
		}
		return true
	case *model.List:
		bt, ok := b.(*model.List)
		return ok && at.Required == bt.Required && sameType(at.Elem, bt.Elem)
	default:
		return a == nil && b == nil
	}
}

func sameMethod(a, b *model.Method) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Descriptor != b.Descriptor {
		return false
	}
	if a.Param == nil || b.Param == nil {
		return a.Param == nil && b.Param == nil
	}
	return a.Param.Name == b.Param.Name && sameType(a.Param.Type, b.Param.Type)
}

func hasReference(refs []*model.Reference, name string) bool {
	for _, r := range refs {
		if r.Name == name {
			return true
		}
	}
	return false
}

func extend(path []string, name string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, name)
}
