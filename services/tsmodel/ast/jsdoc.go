// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"strings"
)

// DocTag is one `@tag text` entry of a JSDoc comment.
type DocTag struct {
	// Name is the tag name without '@'.
	Name string

	// Text is the tag body with continuation lines joined by '\n'.
	Text string

	// Raw is the tag exactly as written (first line plus continuations).
	Raw string
}

// DocComment is a parsed `/** ... */` comment.
type DocComment struct {
	// Description is the free text before the first tag.
	Description string

	// Tags in source order.
	Tags []DocTag

	// Raw is the original comment text.
	Raw string

	// Location is where the comment starts.
	Location Location
}

// ParseDocComment parses a JSDoc block comment.
//
// Description:
//
//	Strips the comment delimiters and the leading '*' gutter of every line,
//	then splits the body into a description and tags. A tag starts at a
//	line beginning with '@' and runs until the next tag. Tag names end at
//	whitespace, '(' or '{' so both `@assert {min: 1}` and
//	`@assert({min: 1})` are recognised.
//
// Inputs:
//
//	raw - The full comment text including `/**` and `*/`.
//
// Outputs:
//
//	*DocComment - Parsed comment. Nil if raw is not a JSDoc comment.
func ParseDocComment(raw string) *DocComment {
	if !strings.HasPrefix(raw, "/**") {
		return nil
	}
	body := strings.TrimPrefix(raw, "/**")
	body = strings.TrimSuffix(body, "*/")

	doc := &DocComment{Raw: raw}
	var desc []string
	var cur *DocTag

	flush := func() {
		if cur != nil {
			cur.Text = strings.TrimSpace(cur.Text)
			cur.Raw = strings.TrimRight(cur.Raw, " \t\n")
			doc.Tags = append(doc.Tags, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if strings.HasPrefix(line, "*") {
			line = strings.TrimPrefix(line, "*")
			line = strings.TrimPrefix(line, " ")
		}
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "@") {
			flush()
			name, text := splitTag(trimmed[1:])
			cur = &DocTag{Name: name, Text: text, Raw: trimmed}
			continue
		}
		if cur != nil {
			cur.Text += "\n" + trimmed
			cur.Raw += "\n" + trimmed
			continue
		}
		desc = append(desc, trimmed)
	}
	flush()

	doc.Description = strings.TrimSpace(strings.Join(desc, "\n"))
	return doc
}

// splitTag separates a tag name from its body.
func splitTag(s string) (string, string) {
	end := strings.IndexAny(s, " \t({")
	if end < 0 {
		return s, ""
	}
	return s[:end], strings.TrimSpace(s[end:])
}
