// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateEntity is returned when a name is registered twice.
var ErrDuplicateEntity = errors.New("already defined entity")

// Registry is the name-keyed, insertion-ordered entity store.
//
// Description:
//
//	The registry is the arena for one compilation: every entity is
//	created once and fetched by name afterwards. Emission order is
//	insertion order.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. Each compilation owns its registry.
type Registry struct {
	order    []string
	entities map[string]Entity
}

// RegistryStats summarizes a registry.
type RegistryStats struct {
	Total  int            `json:"total"`
	ByKind map[string]int `json:"by_kind"`
	Fields int            `json:"fields"`
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]Entity)}
}

func (*Registry) Kind() Kind { return KindRegistry }

// Add registers e under its name.
//
// Outputs:
//
//	error - ErrDuplicateEntity if the name is already taken.
func (r *Registry) Add(e Entity) error {
	name := e.EntityName()
	if _, ok := r.entities[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, name)
	}
	r.entities[name] = e
	r.order = append(r.order, name)
	return nil
}

// Get returns the entity named name.
func (r *Registry) Get(name string) (Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entities[name]
	return ok
}

// Names returns entity names in insertion order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Entities returns entities in insertion order.
func (r *Registry) Entities() []Entity {
	out := make([]Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// Len returns the number of entities.
func (r *Registry) Len() int {
	return len(r.order)
}

// Stats counts entities by kind and object fields.
func (r *Registry) Stats() RegistryStats {
	stats := RegistryStats{ByKind: make(map[string]int)}
	for _, e := range r.Entities() {
		stats.Total++
		stats.ByKind[e.Kind().String()]++
		if o, ok := e.(*Object); ok {
			stats.Fields += len(o.Fields)
		}
	}
	return stats
}
