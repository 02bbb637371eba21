// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast lowers TypeScript source into the small, closed set of syntax
// categories the model resolver understands.
//
// The tree-sitter concrete syntax tree is walked once per file and every
// declaration, member and type expression relevant to model extraction is
// converted into a *Node carrying one NodeKind. Consumers pattern-match on
// Kind and never see tree-sitter node type strings.
package ast

import (
	"fmt"
	"strings"
)

// NodeKind is the syntax category of a lowered node.
//
// The set is closed: the parser decides the kind once and the resolver
// dispatches on it with a plain switch.
type NodeKind uint8

const (
	// NodeUnknown is the zero value and never produced by the parser.
	NodeUnknown NodeKind = iota

	// NodeInterface is an interface declaration.
	NodeInterface

	// NodeClass is a class declaration (abstract or concrete).
	NodeClass

	// NodeTypeAlias is a `type X = ...` declaration.
	NodeTypeAlias

	// NodeEnum is an enum declaration.
	NodeEnum

	// NodeEnumMember is a single enum member.
	NodeEnumMember

	// NodeVariable is an annotated top-level const/let declarator.
	NodeVariable

	// NodeProperty is a property signature, field definition or getter.
	NodeProperty

	// NodeMethod is a method signature or method definition.
	NodeMethod

	// NodeParameter is a formal parameter of a method.
	NodeParameter

	// NodeTypeReference is a named type, optionally with type arguments.
	NodeTypeReference

	// NodeArray is `T[]`.
	NodeArray

	// NodeUnion is `A | B | ...`, flattened.
	NodeUnion

	// NodeTypeLiteral is an inline object type `{ a: string }`.
	NodeTypeLiteral

	// NodeTuple is `[A, B]`.
	NodeTuple

	// NodePrimitive is one of string, number, boolean, symbol, bigint.
	NodePrimitive

	// NodeLiteral is a literal type: undefined, null, 'x', 1, true.
	NodeLiteral

	// NodeUnsupported is any other type expression (function, conditional,
	// intersection, mapped, ...). Text holds the source.
	NodeUnsupported
)

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	switch k {
	case NodeInterface:
		return "interface"
	case NodeClass:
		return "class"
	case NodeTypeAlias:
		return "type_alias"
	case NodeEnum:
		return "enum"
	case NodeEnumMember:
		return "enum_member"
	case NodeVariable:
		return "variable"
	case NodeProperty:
		return "property"
	case NodeMethod:
		return "method"
	case NodeParameter:
		return "parameter"
	case NodeTypeReference:
		return "type_reference"
	case NodeArray:
		return "array"
	case NodeUnion:
		return "union"
	case NodeTypeLiteral:
		return "type_literal"
	case NodeTuple:
		return "tuple"
	case NodePrimitive:
		return "primitive"
	case NodeLiteral:
		return "literal"
	case NodeUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// IsDeclaration returns true for top-level declaration kinds.
func (k NodeKind) IsDeclaration() bool {
	switch k {
	case NodeInterface, NodeClass, NodeTypeAlias, NodeEnum, NodeVariable:
		return true
	}
	return false
}

// Modifiers is a bit set of member and declaration modifiers.
type Modifiers uint16

const (
	ModPrivate Modifiers = 1 << iota
	ModProtected
	ModPublic
	ModAbstract
	ModStatic
	ModReadonly
	ModAsync
	ModDeclare
	ModGetter
	ModSetter
)

// Has reports whether all bits of m2 are set.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

// Location identifies a span of source text.
type Location struct {
	// FilePath is the path of the file as it was loaded (forward slashes).
	FilePath string `json:"file" yaml:"file"`

	// Line is the 1-indexed start line.
	Line int `json:"line" yaml:"line"`

	// Column is the 0-indexed start column.
	Column int `json:"column" yaml:"column"`

	// EndLine is the 1-indexed end line.
	EndLine int `json:"end_line,omitempty" yaml:"end_line,omitempty"`

	// Offset is the start byte offset within the file.
	Offset int `json:"offset" yaml:"offset"`
}

// String formats the location as file:line:col.
func (l Location) String() string {
	if l.FilePath == "" {
		return fmt.Sprintf("<unknown>:%d:%d", l.Line, l.Column+1)
	}
	return fmt.Sprintf("%s:%d:%d", l.FilePath, l.Line, l.Column+1)
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.FilePath == "" && l.Line == 0 && l.Offset == 0
}

// Decorator is a `@name` or `@name(args)` decorator.
type Decorator struct {
	// Name is the decorator callee, e.g. "assert" or "tsModel".
	Name string

	// Args holds the raw source text of each call argument.
	Args []string

	// Text is the raw source text of the whole decorator.
	Text string

	// Location is where the decorator appears.
	Location Location
}

// TypeParam is a declared generic type parameter.
type TypeParam struct {
	// Name is the parameter name, e.g. "T".
	Name string

	// Constraint is the `extends` constraint, nil if absent.
	Constraint *Node

	// Default is the `= Default` type, nil if absent.
	Default *Node
}

// HeritageClause distinguishes extends from implements.
type HeritageClause uint8

const (
	HeritageExtends HeritageClause = iota + 1
	HeritageImplements
)

// Heritage is one entry of an extends/implements clause.
type Heritage struct {
	Clause HeritageClause

	// Type is the referenced type (always NodeTypeReference).
	Type *Node
}

// Node is a lowered syntax node.
//
// Description:
//
//	Only the fields relevant to Kind are populated:
//	  - declarations: Name, Exported, Doc, Decorators, TypeParams, Heritage, Members
//	  - NodeTypeAlias: Type is the aliased type
//	  - NodeVariable: Type is the annotation
//	  - NodeProperty: Type, Optional, Initializer
//	  - NodeMethod: Type (return type), Params, HasBody
//	  - NodeParameter: Name, Type, Optional
//	  - NodeEnumMember: Name, Init
//	  - NodeTypeReference: Name, Qualifier, TypeArgs
//	  - NodeArray: Type (element)
//	  - NodeUnion, NodeTuple: Types
//	  - NodeTypeLiteral: Members
//	  - NodePrimitive, NodeLiteral: Name is the keyword or literal text
//
// Thread Safety:
//
//	Nodes are immutable after parsing and safe for concurrent reads.
type Node struct {
	Kind NodeKind

	// Name is the declared, referenced or keyword name.
	Name string

	// Qualifier is the namespace part of a qualified reference (`ns.Foo`).
	Qualifier string

	// Text is the raw source text of the node.
	Text string

	// Location is the node's source position.
	Location Location

	Exported  bool
	Default   bool
	Optional  bool
	HasBody   bool
	Modifiers Modifiers

	Decorators []Decorator
	Doc        *DocComment

	TypeParams []TypeParam
	Heritage   []Heritage

	// Members holds properties/methods of object-like nodes and the
	// members of enums.
	Members []*Node

	// Type is the single child type slot (see Kind-specific notes).
	Type *Node

	// Params holds the formal parameters of methods.
	Params []*Node

	// TypeArgs holds the type arguments of references.
	TypeArgs []*Node

	// Types holds union and tuple members.
	Types []*Node

	// Init is the constant expression of an enum member.
	Init *Expr

	// Initializer is the initializer expression of a class property.
	Initializer *Expr

	// Owner is the name of the enclosing declaration for members.
	Owner string
}

// HasModifier reports whether the node carries the modifier.
func (n *Node) HasModifier(m Modifiers) bool {
	return n != nil && n.Modifiers.Has(m)
}

// Member returns the first member named name, or nil.
func (n *Node) Member(name string) *Node {
	if n == nil {
		return nil
	}
	for _, m := range n.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Decorator returns the first decorator named name, or nil.
func (n *Node) Decorator(name string) *Decorator {
	if n == nil {
		return nil
	}
	for i := range n.Decorators {
		if n.Decorators[i].Name == name {
			return &n.Decorators[i]
		}
	}
	return nil
}

// TypeParamNames returns the declared generic parameter names.
func (n *Node) TypeParamNames() []string {
	if n == nil || len(n.TypeParams) == 0 {
		return nil
	}
	names := make([]string, len(n.TypeParams))
	for i, tp := range n.TypeParams {
		names[i] = tp.Name
	}
	return names
}

// Key returns a stable identity for a declaration: file, offset and name.
func (n *Node) Key() string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf("%s@%d#%s", n.Location.FilePath, n.Location.Offset, n.Name)
}

// QualifiedName returns Qualifier.Name for references, Name otherwise.
func (n *Node) QualifiedName() string {
	if n.Qualifier == "" {
		return n.Name
	}
	return n.Qualifier + "." + n.Name
}

// String renders a short description used in diagnostics.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	text := n.Text
	if len(text) > 60 {
		text = text[:57] + "..."
	}
	text = strings.Join(strings.Fields(text), " ")
	if n.Name != "" && n.Kind.IsDeclaration() {
		return fmt.Sprintf("%s %s", n.Kind, n.Name)
	}
	return fmt.Sprintf("%s %q", n.Kind, text)
}

// Import is a single ES module import statement.
type Import struct {
	// Source is the module specifier, e.g. "./user".
	Source string

	// Names maps local names to imported names for named imports.
	Names map[string]string

	// Default is the local name of a default import.
	Default string

	// Namespace is the local name of `import * as ns`.
	Namespace string

	// TypeOnly is true for `import type`.
	TypeOnly bool

	Location Location
}

// ReExport is an `export ... from` statement.
type ReExport struct {
	// Source is the module specifier.
	Source string

	// Names maps exported names to original names. Empty for `export *`.
	Names map[string]string

	// Star is true for `export * from`.
	Star bool
}

// File is the lowered form of one source file.
type File struct {
	// Path is the file path (forward slashes).
	Path string

	// Hash is SHA256 of the content.
	Hash string

	// Declaration is true for .d.ts files.
	Declaration bool

	// Declarations holds top-level declarations in source order.
	Declarations []*Node

	Imports   []Import
	ReExports []ReExport

	// LocalExports maps exported names to local names for
	// `export { a as b }` without a source module.
	LocalExports map[string]string

	// DefaultExport is the local name exported as default, if any.
	DefaultExport string

	// Errors holds non-fatal syntax diagnostics.
	Errors []string
}

// Lookup returns the top-level declarations of the file named name.
func (f *File) Lookup(name string) []*Node {
	var out []*Node
	for _, d := range f.Declarations {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// Symbol is a named top-level entity of one file, possibly backed by
// several merged declarations (e.g. interface declaration merging).
type Symbol struct {
	Name  string
	File  *File
	Decls []*Node
}

// Key returns the symbol identity: file path and name.
func (s *Symbol) Key() string {
	if s == nil {
		return ""
	}
	return s.File.Path + "#" + s.Name
}

// Primary returns the first declaration.
func (s *Symbol) Primary() *Node {
	if s == nil || len(s.Decls) == 0 {
		return nil
	}
	return s.Decls[0]
}

// Exported reports whether any declaration is exported.
func (s *Symbol) Exported() bool {
	for _, d := range s.Decls {
		if d.Exported {
			return true
		}
	}
	return false
}
