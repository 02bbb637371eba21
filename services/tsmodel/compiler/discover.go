// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compiler

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/config"
)

// Discover returns the source files of root selected by a pattern.
//
// Description:
//
//	Walks root and keeps regular files that match at least one include
//	glob and no exclude glob. Paths are relative to root, use forward
//	slashes, and are sorted. Declaration files (.d.ts) are kept only when
//	an include glob names them explicitly.
//
// Inputs:
//
//	ctx - Checked between directory entries.
//	root - Project root directory.
//	p - The pattern to apply.
//
// Outputs:
//
//	[]string - Matching relative paths. Empty, not nil, when nothing matches.
//	error - Non-nil if root cannot be walked.
func Discover(ctx context.Context, root string, p config.Pattern) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(root, func(current string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && excludedDir(rel, p.Exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !ast.IsSourceFile(rel) {
			return nil
		}
		if selected(rel, p) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering files for pattern %q: %w", p.Name, err)
	}
	sort.Strings(files)
	return files, nil
}

func selected(rel string, p config.Pattern) bool {
	included := false
	for _, g := range p.Include {
		if MatchGlob(g, rel) {
			if strings.HasSuffix(rel, ".d.ts") && !strings.HasSuffix(g, ".d.ts") {
				continue
			}
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, g := range p.Exclude {
		if MatchGlob(g, rel) {
			return false
		}
	}
	return true
}

// excludedDir reports whether an exclude glob of the form "x/**" covers
// the whole directory, so the walk can skip it.
func excludedDir(rel string, excludes []string) bool {
	for _, g := range excludes {
		if strings.HasSuffix(g, "/**") && MatchGlob(strings.TrimSuffix(g, "/**"), rel) {
			return true
		}
	}
	return false
}

// MatchGlob reports whether a slash-separated path matches a glob.
//
// A "**" segment matches zero or more whole path segments. Every other
// segment uses path.Match semantics, so a single "*" does not cross "/".
// A trailing "/**" also matches the prefix directory itself.
func MatchGlob(pattern, name string) bool {
	pattern = strings.TrimPrefix(pattern, "./")
	name = strings.TrimPrefix(name, "./")
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], name[0]); !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
