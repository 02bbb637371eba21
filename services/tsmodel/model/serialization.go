// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
)

// SchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const SchemaVersion = "1.0"

// SerializableRegistry is the JSON/YAML representation of a Registry.
//
// Description:
//
//	Entities keep registry insertion order, which is the emission order
//	consumers rely on. The same registry always serializes to the same
//	bytes, enabling content hashing and diffing.
//
// Thread Safety: SerializableRegistry is a value type with no internal state.
type SerializableRegistry struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version" yaml:"schema_version"`

	// Entities contains all entities in insertion order.
	Entities []SerializableEntity `json:"entities" yaml:"entities"`
}

// SerializableEntity is a kind-tagged entity. Only the attributes of its
// kind are populated.
type SerializableEntity struct {
	Kind       string        `json:"kind" yaml:"kind"`
	Name       string        `json:"name" yaml:"name"`
	Doc        string        `json:"doc,omitempty" yaml:"doc,omitempty"`
	Deprecated string        `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Location   *ast.Location `json:"location,omitempty" yaml:"location,omitempty"`

	// Object
	IsClass  bool                `json:"is_class,omitempty" yaml:"is_class,omitempty"`
	Generics []string            `json:"generics,omitempty" yaml:"generics,omitempty"`
	Inherits []SerializableType  `json:"inherits,omitempty" yaml:"inherits,omitempty"`
	Fields   []SerializableField `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Enum
	Members []SerializableEnumMember `json:"members,omitempty" yaml:"members,omitempty"`

	// Union
	Types    []SerializableType `json:"types,omitempty" yaml:"types,omitempty"`
	Resolver *Descriptor        `json:"resolver,omitempty" yaml:"resolver,omitempty"`

	// Scalar
	Descriptor *Descriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
}

// SerializableType is a Reference or List.
type SerializableType struct {
	Kind     string             `json:"kind" yaml:"kind"`
	Name     string             `json:"name,omitempty" yaml:"name,omitempty"`
	File     string             `json:"file,omitempty" yaml:"file,omitempty"`
	Args     []SerializableType `json:"args,omitempty" yaml:"args,omitempty"`
	Required bool               `json:"required,omitempty" yaml:"required,omitempty"`
	Elem     *SerializableType  `json:"elem,omitempty" yaml:"elem,omitempty"`
}

// SerializableField is an object field.
type SerializableField struct {
	Name       string              `json:"name" yaml:"name"`
	Required   bool                `json:"required" yaml:"required"`
	Type       *SerializableType   `json:"type,omitempty" yaml:"type,omitempty"`
	Default    any                 `json:"default,omitempty" yaml:"default,omitempty"`
	Assert     *Assertion          `json:"assert,omitempty" yaml:"assert,omitempty"`
	Resolver   *SerializableMethod `json:"resolver,omitempty" yaml:"resolver,omitempty"`
	Input      *SerializableMethod `json:"input,omitempty" yaml:"input,omitempty"`
	Doc        string              `json:"doc,omitempty" yaml:"doc,omitempty"`
	Deprecated string              `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
}

// SerializableMethod is a resolver or input validator binding.
type SerializableMethod struct {
	Descriptor Descriptor         `json:"descriptor" yaml:"descriptor"`
	Param      *SerializableParam `json:"param,omitempty" yaml:"param,omitempty"`
}

// SerializableParam is a resolver method argument.
type SerializableParam struct {
	Name string            `json:"name" yaml:"name"`
	Type *SerializableType `json:"type,omitempty" yaml:"type,omitempty"`
}

// SerializableEnumMember is an enum value.
type SerializableEnumMember struct {
	Name       string `json:"name" yaml:"name"`
	Value      any    `json:"value" yaml:"value"`
	Doc        string `json:"doc,omitempty" yaml:"doc,omitempty"`
	Deprecated string `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
}

// ToSerializable converts the registry to its wire representation.
//
// Outputs:
//
//	*SerializableRegistry - Never nil. A nil registry yields no entities.
func (r *Registry) ToSerializable() *SerializableRegistry {
	out := &SerializableRegistry{
		SchemaVersion: SchemaVersion,
		Entities:      []SerializableEntity{},
	}
	if r == nil {
		return out
	}
	for _, e := range r.Entities() {
		out.Entities = append(out.Entities, serializeEntity(e))
	}
	return out
}

func serializeEntity(e Entity) SerializableEntity {
	se := SerializableEntity{Kind: e.Kind().String(), Name: e.EntityName()}
	switch v := e.(type) {
	case *Object:
		se.Doc, se.Deprecated, se.Location = v.Doc, v.Deprecated, locationPtr(v.Location)
		se.IsClass = v.IsClass
		se.Generics = v.Generics
		for _, ref := range v.Inherits {
			se.Inherits = append(se.Inherits, *serializeType(ref))
		}
		for _, f := range v.Fields {
			se.Fields = append(se.Fields, serializeField(f))
		}
	case *Enum:
		se.Doc, se.Deprecated, se.Location = v.Doc, v.Deprecated, locationPtr(v.Location)
		for _, m := range v.Members {
			se.Members = append(se.Members, SerializableEnumMember{
				Name: m.Name, Value: m.Value, Doc: m.Doc, Deprecated: m.Deprecated,
			})
		}
	case *Union:
		se.Doc, se.Location = v.Doc, locationPtr(v.Location)
		for _, ref := range v.Members {
			se.Types = append(se.Types, *serializeType(ref))
		}
		se.Resolver = v.Resolver
	case *Scalar:
		se.Doc, se.Location = v.Doc, locationPtr(v.Location)
		d := v.Descriptor
		se.Descriptor = &d
	}
	return se
}

func serializeField(f *Field) SerializableField {
	return SerializableField{
		Name:       f.Name,
		Required:   f.Required,
		Type:       serializeType(f.Type),
		Default:    f.Default,
		Assert:     f.Assert,
		Resolver:   serializeMethod(f.Resolver),
		Input:      serializeMethod(f.Input),
		Doc:        f.Doc,
		Deprecated: f.Deprecated,
	}
}

func serializeMethod(m *Method) *SerializableMethod {
	if m == nil {
		return nil
	}
	sm := &SerializableMethod{Descriptor: m.Descriptor}
	if m.Param != nil {
		sm.Param = &SerializableParam{Name: m.Param.Name, Type: serializeType(m.Param.Type)}
	}
	return sm
}

func serializeType(t Type) *SerializableType {
	switch v := t.(type) {
	case *Reference:
		st := &SerializableType{Kind: KindReference.String(), Name: v.Name, File: v.File}
		for _, a := range v.Args {
			if s := serializeType(a); s != nil {
				st.Args = append(st.Args, *s)
			}
		}
		return st
	case *List:
		return &SerializableType{Kind: KindList.String(), Required: v.Required, Elem: serializeType(v.Elem)}
	default:
		return nil
	}
}

func locationPtr(loc ast.Location) *ast.Location {
	if loc.FilePath == "" {
		return nil
	}
	return &loc
}

// FromSerializable rebuilds a Registry from its wire representation.
//
// Outputs:
//
//	*Registry - The reconstructed registry.
//	error - Non-nil on version mismatch, unknown kinds or duplicate names.
func FromSerializable(sr *SerializableRegistry) (*Registry, error) {
	if sr == nil {
		return nil, fmt.Errorf("serializable registry must not be nil")
	}
	if sr.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (expected %q)", sr.SchemaVersion, SchemaVersion)
	}

	reg := NewRegistry()
	for i, se := range sr.Entities {
		e, err := deserializeEntity(se)
		if err != nil {
			return nil, fmt.Errorf("entity %d (%s): %w", i, se.Name, err)
		}
		if err := reg.Add(e); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func deserializeEntity(se SerializableEntity) (Entity, error) {
	kind, ok := ParseKind(se.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", se.Kind)
	}
	var loc ast.Location
	if se.Location != nil {
		loc = *se.Location
	}

	switch kind {
	case KindObject:
		o := NewObject(se.Name)
		o.IsClass, o.Generics = se.IsClass, se.Generics
		o.Doc, o.Deprecated, o.Location = se.Doc, se.Deprecated, loc
		for _, st := range se.Inherits {
			t, err := deserializeType(&st)
			if err != nil {
				return nil, err
			}
			ref, ok := t.(*Reference)
			if !ok {
				return nil, fmt.Errorf("inherits entry must be a reference")
			}
			o.Inherits = append(o.Inherits, ref)
		}
		for _, sf := range se.Fields {
			f, err := deserializeField(sf)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", sf.Name, err)
			}
			if !o.AddField(f) {
				return nil, fmt.Errorf("duplicate field %s", sf.Name)
			}
		}
		return o, nil

	case KindEnum:
		e := NewEnum(se.Name)
		e.Doc, e.Deprecated, e.Location = se.Doc, se.Deprecated, loc
		for _, sm := range se.Members {
			value, err := normalizeEnumValue(sm.Value)
			if err != nil {
				return nil, fmt.Errorf("member %s: %w", sm.Name, err)
			}
			if !e.AddMember(&EnumMember{Name: sm.Name, Value: value, Doc: sm.Doc, Deprecated: sm.Deprecated}) {
				return nil, fmt.Errorf("duplicate member %s", sm.Name)
			}
		}
		return e, nil

	case KindUnion:
		u := &Union{Name: se.Name, Resolver: se.Resolver, Doc: se.Doc, Location: loc}
		for _, st := range se.Types {
			t, err := deserializeType(&st)
			if err != nil {
				return nil, err
			}
			ref, ok := t.(*Reference)
			if !ok {
				return nil, fmt.Errorf("union member must be a reference")
			}
			u.Members = append(u.Members, ref)
		}
		return u, nil

	case KindScalar:
		s := &Scalar{Name: se.Name, Doc: se.Doc, Location: loc}
		if se.Descriptor != nil {
			s.Descriptor = *se.Descriptor
		}
		return s, nil

	case KindBasicScalar:
		return &BasicScalar{Name: se.Name}, nil
	}
	return nil, fmt.Errorf("kind %s is not an entity", se.Kind)
}

func deserializeField(sf SerializableField) (*Field, error) {
	f := &Field{
		Name:       sf.Name,
		Required:   sf.Required,
		Default:    sf.Default,
		Assert:     sf.Assert,
		Doc:        sf.Doc,
		Deprecated: sf.Deprecated,
	}
	var err error
	if sf.Type != nil {
		if f.Type, err = deserializeType(sf.Type); err != nil {
			return nil, err
		}
	}
	if f.Resolver, err = deserializeMethod(sf.Resolver); err != nil {
		return nil, err
	}
	if f.Input, err = deserializeMethod(sf.Input); err != nil {
		return nil, err
	}
	return f, nil
}

func deserializeMethod(sm *SerializableMethod) (*Method, error) {
	if sm == nil {
		return nil, nil
	}
	m := &Method{Descriptor: sm.Descriptor}
	if sm.Param != nil {
		m.Param = &Param{Name: sm.Param.Name}
		if sm.Param.Type != nil {
			t, err := deserializeType(sm.Param.Type)
			if err != nil {
				return nil, err
			}
			m.Param.Type = t
		}
	}
	return m, nil
}

func deserializeType(st *SerializableType) (Type, error) {
	switch st.Kind {
	case KindReference.String():
		ref := &Reference{Name: st.Name, File: st.File}
		for i := range st.Args {
			a, err := deserializeType(&st.Args[i])
			if err != nil {
				return nil, err
			}
			ref.Args = append(ref.Args, a)
		}
		return ref, nil
	case KindList.String():
		if st.Elem == nil {
			return nil, fmt.Errorf("list without element type")
		}
		elem, err := deserializeType(st.Elem)
		if err != nil {
			return nil, err
		}
		return &List{Required: st.Required, Elem: elem}, nil
	}
	return nil, fmt.Errorf("unknown type kind %q", st.Kind)
}

// normalizeEnumValue maps decoder number types to float64.
func normalizeEnumValue(v any) (any, error) {
	switch n := v.(type) {
	case string, float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return nil, fmt.Errorf("enum value must be a string or number, got %T", v)
}

// Hash returns the sha256 of the registry's canonical JSON encoding.
func (r *Registry) Hash() (string, error) {
	data, err := json.Marshal(r.ToSerializable())
	if err != nil {
		return "", fmt.Errorf("encoding registry: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
