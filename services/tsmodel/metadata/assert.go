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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// ParseAssertion parses a JSON-like constraint literal.
//
// Description:
//
//	The literal is an object such as `{min: 1, regex: /^[a-z]+$/}`.
//	Unquoted keys, single or double quoted strings and JavaScript regex
//	literals are accepted. A literal wrapped in parentheses, as written
//	in `@assert({...})`, is unwrapped first.
//
// Inputs:
//
//	literal - The raw literal text.
//
// Outputs:
//
//	*model.Assertion - The parsed constraints.
//	error - Describes the first problem. Not a *Error; Extract adds the
//	location.
func ParseAssertion(literal string) (*model.Assertion, error) {
	text := strings.TrimSpace(literal)
	for strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, fmt.Errorf("expected an object literal")
	}

	normalized, err := quoteRegexLiterals(text)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(normalized), &raw); err != nil {
		return nil, fmt.Errorf("malformed literal: %v", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	a := &model.Assertion{}
	for _, key := range keys {
		value := raw[key]
		switch key {
		case "min", "max", "lt", "gt", "lte", "gte", "length":
			n, ok := toFloat(value)
			if !ok {
				return nil, fmt.Errorf("%s must be a number, got %v", key, value)
			}
			switch key {
			case "min":
				a.Min = &n
			case "max":
				a.Max = &n
			case "lt":
				a.Lt = &n
			case "gt":
				a.Gt = &n
			case "lte":
				a.Lte = &n
			case "gte":
				a.Gte = &n
			case "length":
				a.Length = &n
			}
		case "regex":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("regex must be a string or regex literal, got %v", value)
			}
			a.Regex = &s
		case "eq":
			a.Eq = normalizeScalar(value)
		case "ne":
			a.Ne = normalizeScalar(value)
		default:
			return nil, fmt.Errorf("unknown constraint %q", key)
		}
	}
	return a, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func normalizeScalar(v any) any {
	if n, ok := toFloat(v); ok {
		return n
	}
	return v
}

// quoteRegexLiterals rewrites `/pattern/flags` values to quoted strings.
// Supported flags i, m and s become inline Go regexp flags.
func quoteRegexLiterals(text string) (string, error) {
	var b strings.Builder
	var quote byte
	expectValue := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(text) {
				i++
				b.WriteByte(text[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
			expectValue = false
			b.WriteByte(c)
		case c == ':':
			// YAML flow mappings need a space after the key indicator.
			expectValue = true
			b.WriteByte(c)
			if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\t' && text[i+1] != '\n' {
				b.WriteByte(' ')
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(c)
		case c == '/' && expectValue:
			pattern, flags, end, err := scanRegex(text, i)
			if err != nil {
				return "", err
			}
			var prefix string
			for _, f := range flags {
				switch f {
				case 'i', 'm', 's':
					prefix += string(f)
				}
			}
			if prefix != "" {
				pattern = "(?" + prefix + ")" + pattern
			}
			quoted, _ := json.Marshal(pattern)
			b.Write(quoted)
			i = end - 1
			expectValue = false
		default:
			expectValue = false
			b.WriteByte(c)
		}
	}
	if quote != 0 {
		return "", fmt.Errorf("unterminated string")
	}
	return b.String(), nil
}

// scanRegex reads a regex literal starting at the opening slash. It
// returns the pattern, the flags and the index just past the literal.
func scanRegex(text string, start int) (pattern, flags string, end int, err error) {
	inClass := false
	for i := start + 1; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\\':
			i++
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			pattern = text[start+1 : i]
			j := i + 1
			for j < len(text) && text[j] >= 'a' && text[j] <= 'z' {
				j++
			}
			return pattern, text[i+1 : j], j, nil
		case c == '\n':
			return "", "", 0, fmt.Errorf("unterminated regex literal")
		}
	}
	return "", "", 0, fmt.Errorf("unterminated regex literal")
}
