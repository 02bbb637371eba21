// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metadata extracts model annotations from declarations.
//
// Annotations are written either as JSDoc tags or as decorators; both
// forms are equivalent:
//
//	/** @assert {min: 1} */          @assert({min: 1})
//	/** @tsModel */                   @tsModel()
//	/** @deprecated use `b` */        @deprecated('use `b`')
//	/** @ignore */                    @ignore()
package metadata

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// Recognized annotation names.
const (
	TagAssert     = "assert"
	TagRoot       = "tsModel"
	TagIgnore     = "ignore"
	TagDeprecated = "deprecated"
	TagDefault    = "default"
)

// DefaultDeprecationReason is used when @deprecated carries no message.
const DefaultDeprecationReason = "No longer supported"

var recognized = map[string]bool{
	TagAssert:     true,
	TagRoot:       true,
	TagIgnore:     true,
	TagDeprecated: true,
	TagDefault:    true,
}

// Metadata is the normalized annotation record of one node.
type Metadata struct {
	// Ignore excludes the node from the model.
	Ignore bool

	// Root marks a declaration as a model entity even when unreferenced.
	Root bool

	// Doc is the doc comment description followed by the raw text of
	// every recognized tag and decorator, newline-joined.
	Doc string

	// Deprecated is the deprecation message, empty if not deprecated.
	Deprecated string

	// Default is the default value, nil if none.
	Default any

	// Assert holds the merged constraints, nil if none.
	Assert *model.Assertion
}

// Extract reads the annotations of node.
//
// Description:
//
//	JSDoc tags are processed before decorators; within each form source
//	order is kept. Multiple assert literals are shallow-merged with later
//	keys winning. Members with private, protected or abstract modifiers
//	are always ignored.
//
// Inputs:
//
//	node - A declaration or member. Nil yields an empty record.
//
// Outputs:
//
//	*Metadata - Never nil on success.
//	error - *Error wrapping ErrInvalidAssertion for a malformed literal.
//
// Thread Safety:
//
//	Safe for concurrent use; node is not modified.
func Extract(node *ast.Node) (*Metadata, error) {
	md := &Metadata{}
	if node == nil {
		return md, nil
	}

	isMember := node.Kind == ast.NodeProperty || node.Kind == ast.NodeMethod
	if isMember && (node.HasModifier(ast.ModPrivate) || node.HasModifier(ast.ModProtected) || node.HasModifier(ast.ModAbstract)) {
		md.Ignore = true
	}

	var doc []string
	if node.Doc != nil && node.Doc.Description != "" {
		doc = append(doc, node.Doc.Description)
	}

	if node.Doc != nil {
		for _, tag := range node.Doc.Tags {
			if !recognized[tag.Name] {
				continue
			}
			doc = append(doc, tag.Raw)
			loc := node.Doc.Location
			if loc.IsZero() {
				loc = node.Location
			}
			if err := md.apply(tag.Name, tag.Text, loc, false); err != nil {
				return nil, err
			}
		}
	}

	for _, dec := range node.Decorators {
		if !recognized[dec.Name] {
			continue
		}
		doc = append(doc, dec.Text)
		arg := ""
		if len(dec.Args) > 0 {
			arg = dec.Args[0]
		}
		if err := md.apply(dec.Name, arg, dec.Location, true); err != nil {
			return nil, err
		}
	}

	if md.Default == nil && node.Initializer != nil {
		if v, err := node.Initializer.Fold(nil); err == nil && v != nil {
			md.Default = v
		}
	}

	md.Doc = strings.Join(doc, "\n")
	return md, nil
}

func (md *Metadata) apply(name, text string, loc ast.Location, decorator bool) error {
	switch name {
	case TagRoot:
		md.Root = true
	case TagIgnore:
		md.Ignore = true
	case TagDeprecated:
		msg := strings.TrimSpace(text)
		if decorator {
			msg = unquote(msg)
		}
		if msg == "" {
			msg = DefaultDeprecationReason
		}
		md.Deprecated = msg
	case TagDefault:
		md.Default = parseDefault(text)
	case TagAssert:
		a, err := ParseAssertion(text)
		if err != nil {
			return &Error{Location: loc, Text: text, Message: err.Error(), Err: ErrInvalidAssertion}
		}
		md.Assert = md.Assert.Merge(a)
	}
	return nil
}

// parseDefault decodes a default value literal as a YAML scalar, so
// numbers, booleans, null and quoted strings keep their type.
func parseDefault(text string) any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return v
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
