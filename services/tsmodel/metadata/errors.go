// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
)

// ErrInvalidAssertion is returned when an assert literal cannot be parsed.
var ErrInvalidAssertion = errors.New("invalid assertion")

// Error is a metadata extraction failure tied to a source position.
type Error struct {
	// Location is where the offending annotation appears.
	Location ast.Location

	// Text is the offending literal.
	Text string

	// Message describes the failure.
	Message string

	// Err is the sentinel this error wraps.
	Err error
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
