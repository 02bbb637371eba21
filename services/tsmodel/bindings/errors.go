// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bindings

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
)

var (
	// ErrDuplicateBinding is returned when a (target, member, mode) or a
	// union resolver is bound twice.
	ErrDuplicateBinding = errors.New("duplicate definition")

	// ErrNotExported is returned for binding classes and scalar consts
	// without export visibility.
	ErrNotExported = errors.New("must be exported")

	// ErrBadTarget is returned when a binding type argument does not name
	// a class or interface declaration.
	ErrBadTarget = errors.New("invalid binding target")
)

// Error is a binding table failure tied to a source position.
type Error struct {
	Location ast.Location
	Message  string
	Text     string
	Err      error
}

// Error formats the error as file:line:col: message (near "text").
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Location, e.Err, e.Message)
	if e.Text != "" {
		msg += fmt.Sprintf(" (near %q)", e.Text)
	}
	return msg
}

// Unwrap returns the sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(node *ast.Node, err error, format string, args ...any) *Error {
	e := &Error{Err: err, Message: fmt.Sprintf(format, args...)}
	if node != nil {
		e.Location = node.Location
		e.Text = firstLine(node.Text)
	}
	return e
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
