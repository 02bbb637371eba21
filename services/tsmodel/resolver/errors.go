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
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

var (
	// ErrDuplicateEntity is returned when two declarations resolve to the
	// same entity name.
	ErrDuplicateEntity = model.ErrDuplicateEntity

	// ErrOrphanMember is returned for a field, parameter or enum member
	// without a parent of the expected kind.
	ErrOrphanMember = errors.New("member has no matching parent")

	// ErrEmptyList is returned for a list without an element type.
	ErrEmptyList = errors.New("list has no element type")

	// ErrUnnamedUnion is returned for an inline union of several types.
	ErrUnnamedUnion = errors.New("ambiguous union")

	// ErrTuple is returned for tuple types.
	ErrTuple = errors.New("tuple types are not supported")

	// ErrNotExported is returned for declarations that must be exported.
	ErrNotExported = errors.New("declaration is not exported")

	// ErrUnresolved is returned when a reference names no declaration.
	ErrUnresolved = errors.New("unresolved type reference")

	// ErrEmptyGeneric is returned for a generic instantiation without
	// properties.
	ErrEmptyGeneric = errors.New("generic declaration has no properties")

	// ErrUnionMember is returned when a union member is not a class or
	// interface.
	ErrUnionMember = errors.New("invalid union member")

	// ErrUnsupportedType is returned for type expressions the model cannot
	// represent.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrConflictingType is returned when a type slot is filled twice.
	ErrConflictingType = errors.New("conflicting types")
)

// Error is a fatal resolution error tied to a source position.
//
// Description:
//
//	Prints as `file:line:col: sentinel: message (near "text")`. Path is
//	the entity/field path being resolved, when known.
type Error struct {
	Location ast.Location
	Text     string
	Path     []string
	Message  string
	Err      error
}

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Location, e.Err)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " [at %s]", strings.Join(e.Path, "."))
	}
	if e.Text != "" {
		fmt.Fprintf(&b, " (near %q)", e.Text)
	}
	return b.String()
}

// Unwrap returns the sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an Error positioned at node.
func newError(node *ast.Node, sentinel error, format string, args ...any) *Error {
	e := &Error{Err: sentinel, Message: fmt.Sprintf(format, args...)}
	if node != nil {
		e.Location = node.Location
		e.Text = snippet(node.Text)
	}
	return e
}

func snippet(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	return text
}

// Warning is a non-fatal diagnostic: a node skipped because its parent
// has no slot for it.
type Warning struct {
	Location ast.Location `json:"location"`
	Message  string       `json:"message"`
}

// String formats the warning as file:line:col: message.
func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Location, w.Message)
}
