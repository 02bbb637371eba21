// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the resolved entity graph produced by the resolver.
//
// Entities (objects, enums, unions, scalars) live in a Registry keyed by
// name. Fields refer to other entities through References, which are plain
// registry keys: a self-referential object is a Reference to its own name,
// never a pointer cycle.
package model

import (
	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
)

// Kind is the tag of an entity graph node.
type Kind uint8

const (
	KindRegistry Kind = iota + 1
	KindObject
	KindEnum
	KindEnumMember
	KindUnion
	KindScalar
	KindBasicScalar
	KindReference
	KindList
	KindField
	KindParam
	KindMethod
)

var kindNames = map[Kind]string{
	KindRegistry:    "registry",
	KindObject:      "object",
	KindEnum:        "enum",
	KindEnumMember:  "enum_member",
	KindUnion:       "union",
	KindScalar:      "scalar",
	KindBasicScalar: "basic_scalar",
	KindReference:   "reference",
	KindList:        "list",
	KindField:       "field",
	KindParam:       "param",
	KindMethod:      "method",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind converts a wire name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Node is any entity graph node.
type Node interface {
	Kind() Kind
}

// Entity is a top-level registry entry.
type Entity interface {
	Node
	EntityName() string
}

// Type is a node that can fill a type slot: Reference or List.
type Type interface {
	Node
	isType()
}

// Descriptor locates an externally supplied function: a resolver method,
// an input validator, a scalar's parse/serialize object or a union's type
// resolver.
type Descriptor struct {
	// File is the source file declaring the function.
	File string `json:"file" yaml:"file"`

	// Class is the owning class for methods, empty for top-level consts.
	Class string `json:"class,omitempty" yaml:"class,omitempty"`

	// Name is the method or const name.
	Name string `json:"name" yaml:"name"`

	// Static marks static class methods.
	Static bool `json:"static,omitempty" yaml:"static,omitempty"`
}

// String renders file:Class.name.
func (d Descriptor) String() string {
	if d.Class == "" {
		return d.File + ":" + d.Name
	}
	return d.File + ":" + d.Class + "." + d.Name
}

// Assertion is a merged set of validation constraints.
type Assertion struct {
	Min    *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Lt     *float64 `json:"lt,omitempty" yaml:"lt,omitempty"`
	Gt     *float64 `json:"gt,omitempty" yaml:"gt,omitempty"`
	Lte    *float64 `json:"lte,omitempty" yaml:"lte,omitempty"`
	Gte    *float64 `json:"gte,omitempty" yaml:"gte,omitempty"`
	Length *float64 `json:"length,omitempty" yaml:"length,omitempty"`
	Regex  *string  `json:"regex,omitempty" yaml:"regex,omitempty"`
	Eq     any      `json:"eq,omitempty" yaml:"eq,omitempty"`
	Ne     any      `json:"ne,omitempty" yaml:"ne,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (a *Assertion) IsEmpty() bool {
	return a == nil || (a.Min == nil && a.Max == nil && a.Lt == nil && a.Gt == nil &&
		a.Lte == nil && a.Gte == nil && a.Length == nil && a.Regex == nil && a.Eq == nil && a.Ne == nil)
}

// Merge overlays other onto a, later keys winning. Returns the result.
func (a *Assertion) Merge(other *Assertion) *Assertion {
	if other == nil {
		return a
	}
	if a == nil {
		cp := *other
		return &cp
	}
	out := *a
	if other.Min != nil {
		out.Min = other.Min
	}
	if other.Max != nil {
		out.Max = other.Max
	}
	if other.Lt != nil {
		out.Lt = other.Lt
	}
	if other.Gt != nil {
		out.Gt = other.Gt
	}
	if other.Lte != nil {
		out.Lte = other.Lte
	}
	if other.Gte != nil {
		out.Gte = other.Gte
	}
	if other.Length != nil {
		out.Length = other.Length
	}
	if other.Regex != nil {
		out.Regex = other.Regex
	}
	if other.Eq != nil {
		out.Eq = other.Eq
	}
	if other.Ne != nil {
		out.Ne = other.Ne
	}
	return &out
}

// Object is a class- or interface-backed entity.
type Object struct {
	Name     string
	Fields   []*Field
	IsClass  bool
	Inherits []*Reference
	Generics []string

	Doc        string
	Deprecated string
	Location   ast.Location

	fieldIndex map[string]*Field
}

// NewObject creates an empty object.
func NewObject(name string) *Object {
	return &Object{Name: name, fieldIndex: make(map[string]*Field)}
}

func (*Object) Kind() Kind            { return KindObject }
func (o *Object) EntityName() string { return o.Name }

// Field returns the field named name, or nil.
func (o *Object) Field(name string) *Field {
	if o.fieldIndex == nil {
		return nil
	}
	return o.fieldIndex[name]
}

// FieldOrCreate returns the existing field named name or appends a new
// required one. created reports whether the field is new.
func (o *Object) FieldOrCreate(name string) (f *Field, created bool) {
	if o.fieldIndex == nil {
		o.fieldIndex = make(map[string]*Field)
	}
	if f, ok := o.fieldIndex[name]; ok {
		return f, false
	}
	f = &Field{Name: name, Required: true}
	o.Fields = append(o.Fields, f)
	o.fieldIndex[name] = f
	return f, true
}

// AddField appends f, returning false if a field with the same name exists.
func (o *Object) AddField(f *Field) bool {
	if o.Field(f.Name) != nil {
		return false
	}
	if o.fieldIndex == nil {
		o.fieldIndex = make(map[string]*Field)
	}
	o.Fields = append(o.Fields, f)
	o.fieldIndex[f.Name] = f
	return true
}

// Enum is an enum entity.
type Enum struct {
	Name    string
	Members []*EnumMember

	Doc        string
	Deprecated string
	Location   ast.Location

	memberIndex map[string]*EnumMember
}

// NewEnum creates an empty enum.
func NewEnum(name string) *Enum {
	return &Enum{Name: name, memberIndex: make(map[string]*EnumMember)}
}

func (*Enum) Kind() Kind            { return KindEnum }
func (e *Enum) EntityName() string { return e.Name }

// Member returns the member named name, or nil.
func (e *Enum) Member(name string) *EnumMember {
	if e.memberIndex == nil {
		return nil
	}
	return e.memberIndex[name]
}

// AddMember appends m, returning false if the name is taken.
func (e *Enum) AddMember(m *EnumMember) bool {
	if e.Member(m.Name) != nil {
		return false
	}
	if e.memberIndex == nil {
		e.memberIndex = make(map[string]*EnumMember)
	}
	m.Required = true
	e.Members = append(e.Members, m)
	e.memberIndex[m.Name] = m
	return true
}

// EnumMember is one enum value. Value is a string or float64.
type EnumMember struct {
	Name       string
	Value      any
	Required   bool
	Doc        string
	Deprecated string
}

func (*EnumMember) Kind() Kind { return KindEnumMember }

// Union is a named union of object references.
type Union struct {
	Name     string
	Members  []*Reference
	Resolver *Descriptor

	Doc      string
	Location ast.Location
}

func (*Union) Kind() Kind            { return KindUnion }
func (u *Union) EntityName() string { return u.Name }

// Member returns the member reference named name, or nil.
func (u *Union) Member(name string) *Reference {
	for _, m := range u.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Scalar is a custom scalar with user-supplied parse/serialize logic.
type Scalar struct {
	Name       string
	Descriptor Descriptor

	Doc      string
	Location ast.Location
}

func (*Scalar) Kind() Kind            { return KindScalar }
func (s *Scalar) EntityName() string { return s.Name }

// BasicScalar is a predefined scalar with no custom logic.
type BasicScalar struct {
	Name string
}

func (*BasicScalar) Kind() Kind            { return KindBasicScalar }
func (b *BasicScalar) EntityName() string { return b.Name }

// Reference points at a registry entity by name.
type Reference struct {
	// Name is the registry key, including generic arguments (`Page<User>`).
	Name string

	// File is the declaring file, for diagnostics. Empty for built-ins.
	File string

	// Args are the generic arguments when referencing a generic entity.
	Args []Type
}

func (*Reference) Kind() Kind { return KindReference }
func (*Reference) isType()    {}

// List is an array type. Elem is never nil once resolved.
type List struct {
	Required bool
	Elem     Type
}

func (*List) Kind() Kind { return KindList }
func (*List) isType()    {}

// Field is a member of an object.
type Field struct {
	Name     string
	Required bool
	Type     Type
	Default  any
	Assert   *Assertion
	Resolver *Method
	Input    *Method

	Doc        string
	Deprecated string
}

func (*Field) Kind() Kind { return KindField }

// Param is the argument object of a resolver method.
type Param struct {
	Name string
	Type Type
}

func (*Param) Kind() Kind { return KindParam }

// Method is a resolver or input validator bound to a field. Its result
// type is the owning field's Type.
type Method struct {
	Descriptor Descriptor
	Param      *Param
}

func (*Method) Kind() Kind { return KindMethod }

// TypeName renders a type slot for diagnostics: `User`, `[User]!`.
func TypeName(t Type) string {
	switch v := t.(type) {
	case *Reference:
		return v.Name
	case *List:
		inner := "?"
		if v.Elem != nil {
			inner = TypeName(v.Elem)
		}
		if v.Required {
			return "[" + inner + "]!"
		}
		return "[" + inner + "]"
	default:
		return "<nil>"
	}
}
