// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// bound is one numeric assert constraint and the validator tag that
// checks it.
type bound struct {
	key   string
	tag   string
	value *float64
}

// assert applies the constraints of a to v. Numeric bounds compare the
// value of numbers and the length of strings and lists.
func (r *run) assert(a *model.Assertion, v any, path string) {
	measure, measurable := measureOf(v)
	bounds := []bound{
		{"min", "min", a.Min},
		{"max", "max", a.Max},
		{"lt", "lt", a.Lt},
		{"gt", "gt", a.Gt},
		{"lte", "lte", a.Lte},
		{"gte", "gte", a.Gte},
		{"length", "len", a.Length},
	}
	for _, b := range bounds {
		if b.value == nil {
			continue
		}
		if !measurable {
			r.fail(path, b.key, "%s does not apply to %s", b.key, describe(v))
			continue
		}
		if b.key == "length" {
			if _, isNumber := v.(float64); isNumber {
				r.fail(path, b.key, "length does not apply to number")
				continue
			}
		}
		param := strconv.FormatFloat(*b.value, 'f', -1, 64)
		if err := r.v.checks.Var(measure, b.tag+"="+param); err != nil {
			r.fail(path, b.key, "%s must be %s %s, got %s", subject(v), b.key, param,
				strconv.FormatFloat(measure, 'f', -1, 64))
		}
	}

	if a.Regex != nil {
		s, ok := v.(string)
		if !ok {
			r.fail(path, "regex", "regex does not apply to %s", describe(v))
		} else if re, err := regexp.Compile(*a.Regex); err != nil {
			r.fail(path, "regex", "invalid pattern %q: %v", *a.Regex, err)
		} else if !re.MatchString(s) {
			r.fail(path, "regex", "%q does not match %s", s, *a.Regex)
		}
	}

	if a.Eq != nil && !r.v.equal(v, a.Eq) {
		r.fail(path, "eq", "must equal %v, got %v", a.Eq, v)
	}
	if a.Ne != nil && r.v.equal(v, a.Ne) {
		r.fail(path, "ne", "must not equal %v", a.Ne)
	}
}

// equal compares v to want with the validator's eq rule when both have
// the same kind. Values of different kinds are never equal.
func (v *Validator) equal(got, want any) bool {
	want = normalizeNumber(want)
	got = normalizeNumber(got)
	if reflect.TypeOf(got) != reflect.TypeOf(want) {
		return false
	}
	switch w := want.(type) {
	case string:
		return v.checks.Var(got, "eq="+escapeParam(w)) == nil
	case float64:
		return v.checks.Var(got, "eq="+strconv.FormatFloat(w, 'f', -1, 64)) == nil
	case bool:
		return v.checks.Var(got, "eq="+strconv.FormatBool(w)) == nil
	default:
		return reflect.DeepEqual(got, want)
	}
}

// checkScalar returns a message when value is not a valid basic scalar.
// Unknown scalar names accept any value.
func (v *Validator) checkScalar(name string, value any) string {
	switch name {
	case "string":
		if _, ok := value.(string); !ok {
			return "expected string, got " + describe(value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return "expected boolean, got " + describe(value)
		}
	case "number", "UFloat", "Int", "UInt":
		n, ok := normalizeNumber(value).(float64)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Sprintf("expected %s, got %s", name, describe(value))
		}
		if (name == "Int" || name == "UInt") && n != math.Trunc(n) {
			return fmt.Sprintf("expected %s, got fractional %v", name, n)
		}
		if (name == "UInt" || name == "UFloat") && v.checks.Var(n, "gte=0") != nil {
			return fmt.Sprintf("expected %s, got negative %v", name, n)
		}
	case "Date":
		switch d := value.(type) {
		case string:
			if v.checks.Var(d, "datetime="+time.RFC3339) != nil {
				return fmt.Sprintf("expected RFC 3339 date, got %q", d)
			}
		case float64:
		default:
			return "expected Date, got " + describe(value)
		}
	}
	return ""
}

// measureOf returns the number bounds compare against.
func measureOf(v any) (float64, bool) {
	switch t := normalizeNumber(v).(type) {
	case float64:
		return t, true
	case string:
		return float64(utf8.RuneCountInString(t)), true
	case []any:
		return float64(len(t)), true
	}
	return 0, false
}

func subject(v any) string {
	switch v.(type) {
	case string:
		return "length"
	case []any:
		return "item count"
	default:
		return "value"
	}
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

// escapeParam encodes the characters the tag syntax reserves.
func escapeParam(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ',':
			out = append(out, "0x2C"...)
		case '|':
			out = append(out, "0x7C"...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
