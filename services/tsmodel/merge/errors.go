// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package merge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

var (
	// ErrKindMismatch is returned when two nodes at the same path have
	// different kinds.
	ErrKindMismatch = errors.New("kind mismatch")

	// ErrNotMergeable is returned when two differing nodes at the same path
	// have no children to merge.
	ErrNotMergeable = errors.New("node with no mergeable children")
)

// Error is a merge failure at a name path.
type Error struct {
	// Path is the dotted name path from the merge root, e.g. User.id.
	Path []string

	Target model.Kind
	Source model.Kind

	Message string
	Err     error
}

// Error implements error.
func (e *Error) Error() string {
	path := strings.Join(e.Path, ".")
	if path == "" {
		path = "<root>"
	}
	msg := fmt.Sprintf("merge %s: %s", path, e.Err)
	if errors.Is(e.Err, ErrKindMismatch) {
		msg += fmt.Sprintf(" (target %s, source %s)", e.Target, e.Source)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap returns the sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}
