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
	"context"
	"strconv"
	"strings"
	"unicode"
)

// defaultAnonymousName is used when an inline object has no usable hint.
const defaultAnonymousName = "Entity"

// nameAnonymous names inline object types in discovery order and
// registers them. A name already taken by an entity, a built-in scalar or
// a bound scalar gets the first free numeric suffix.
func (s *resolveState) nameAnonymous(_ context.Context) error {
	for _, a := range s.nameless {
		base := pascalCase(a.hint)
		if base == "" {
			base = defaultAnonymousName
		}
		name := base
		for i := 1; s.nameTaken(name); i++ {
			name = base + strconv.Itoa(i)
		}
		a.obj.Name = name
		a.ref.Name = name
		s.scheduled[name] = scheduledEntity{key: "anonymous:" + name, file: a.ref.File}
		if err := s.registry.Add(a.obj); err != nil {
			return err
		}
	}
	return nil
}

func (s *resolveState) nameTaken(name string) bool {
	if _, ok := s.scheduled[name]; ok {
		return true
	}
	return s.registry.Has(name) || s.isBuiltin(name)
}

// pascalCase converts a field name to a type name:
// "shipping_address" becomes "ShippingAddress", "itemsArgs" becomes
// "ItemsArgs".
func pascalCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if b.Len() == 0 && unicode.IsDigit(r) {
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
