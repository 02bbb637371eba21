// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

// Change types reported in EntityDiff.ChangeType.
const (
	ChangeKind     = "kind_changed"
	ChangeFields   = "fields_changed"
	ChangeMembers  = "members_changed"
	ChangeResolver = "resolver_changed"
	ChangeDoc      = "doc_changed"
	ChangeMoved    = "moved"
	ChangeOther    = "definition_changed"
)

// Diff contains the differences between two registries.
type Diff struct {
	BaseSnapshotID   string `json:"base_snapshot_id"`
	TargetSnapshotID string `json:"target_snapshot_id"`

	// EntitiesAdded are names present in target but not in base.
	EntitiesAdded []string `json:"entities_added"`

	// EntitiesRemoved are names present in base but not in target.
	EntitiesRemoved []string `json:"entities_removed"`

	// EntitiesModified are entities that changed between snapshots.
	EntitiesModified []EntityDiff `json:"entities_modified"`

	Summary DiffSummary `json:"summary"`
}

// EntityDiff describes how one entity changed.
type EntityDiff struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	ChangeType string `json:"change_type"`

	// Added, Removed and Changed name the fields of an object or the
	// members of an enum or union.
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Changed []string `json:"changed,omitempty"`
}

// DiffSummary aggregates a diff.
type DiffSummary struct {
	// TotalChanges counts added, removed and modified entities.
	TotalChanges int `json:"total_changes"`

	// FilesAffected is the number of distinct declaring files touched.
	FilesAffected int `json:"files_affected"`

	// ChangeRatio is the fraction of entities that changed (0.0 to 1.0).
	ChangeRatio float64 `json:"change_ratio"`
}

// Empty reports whether the registries were identical.
func (d *Diff) Empty() bool {
	return d.Summary.TotalChanges == 0
}

// DiffRegistries computes the differences between two registries.
//
// Description:
//
//	Entities are compared by name through their serialized form.
//	Source locations only count as a change when the declaring file
//	changes. Results are sorted by name.
//
// Outputs:
//
//	*Diff - The computed differences.
//	error - Non-nil if either registry is nil.
func DiffRegistries(base, target *model.Registry, baseSnapshotID, targetSnapshotID string) (*Diff, error) {
	if base == nil {
		return nil, fmt.Errorf("base registry must not be nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target registry must not be nil")
	}

	diff := &Diff{
		BaseSnapshotID:   baseSnapshotID,
		TargetSnapshotID: targetSnapshotID,
		EntitiesAdded:    []string{},
		EntitiesRemoved:  []string{},
		EntitiesModified: []EntityDiff{},
	}

	baseEntities := byName(base)
	targetEntities := byName(target)
	affectedFiles := make(map[string]bool)

	for name, te := range targetEntities {
		be, exists := baseEntities[name]
		if !exists {
			diff.EntitiesAdded = append(diff.EntitiesAdded, name)
			markFile(affectedFiles, te)
			continue
		}
		if ed, changed := compareEntity(be, te); changed {
			diff.EntitiesModified = append(diff.EntitiesModified, ed)
			markFile(affectedFiles, be)
			markFile(affectedFiles, te)
		}
	}
	for name, be := range baseEntities {
		if _, exists := targetEntities[name]; !exists {
			diff.EntitiesRemoved = append(diff.EntitiesRemoved, name)
			markFile(affectedFiles, be)
		}
	}

	sort.Strings(diff.EntitiesAdded)
	sort.Strings(diff.EntitiesRemoved)
	sort.Slice(diff.EntitiesModified, func(i, j int) bool {
		return diff.EntitiesModified[i].Name < diff.EntitiesModified[j].Name
	})

	total := max(len(baseEntities), len(targetEntities))
	changed := len(diff.EntitiesAdded) + len(diff.EntitiesRemoved) + len(diff.EntitiesModified)
	ratio := 0.0
	if total > 0 {
		ratio = float64(changed) / float64(total)
	}
	diff.Summary = DiffSummary{
		TotalChanges:  changed,
		FilesAffected: len(affectedFiles),
		ChangeRatio:   ratio,
	}
	return diff, nil
}

func byName(reg *model.Registry) map[string]model.SerializableEntity {
	sr := reg.ToSerializable()
	out := make(map[string]model.SerializableEntity, len(sr.Entities))
	for _, e := range sr.Entities {
		out[e.Name] = e
	}
	return out
}

func markFile(files map[string]bool, e model.SerializableEntity) {
	if e.Location != nil && e.Location.FilePath != "" {
		files[e.Location.FilePath] = true
	}
}

// compareEntity classifies the change between two entities of one name.
func compareEntity(base, target model.SerializableEntity) (EntityDiff, bool) {
	ed := EntityDiff{Name: target.Name, Kind: target.Kind}
	if base.Kind != target.Kind {
		ed.ChangeType = ChangeKind
		return ed, true
	}

	baseFile, targetFile := fileOf(base), fileOf(target)
	base.Location, target.Location = nil, nil
	if reflect.DeepEqual(base, target) {
		if baseFile != targetFile {
			ed.ChangeType = ChangeMoved
			return ed, true
		}
		return ed, false
	}

	switch {
	case !reflect.DeepEqual(base.Fields, target.Fields):
		ed.ChangeType = ChangeFields
		ed.Added, ed.Removed, ed.Changed = compareNamed(fieldMap(base.Fields), fieldMap(target.Fields))
	case !reflect.DeepEqual(base.Members, target.Members):
		ed.ChangeType = ChangeMembers
		ed.Added, ed.Removed, ed.Changed = compareNamed(memberMap(base.Members), memberMap(target.Members))
	case !reflect.DeepEqual(base.Types, target.Types):
		ed.ChangeType = ChangeMembers
		ed.Added, ed.Removed, ed.Changed = compareNamed(typeMap(base.Types), typeMap(target.Types))
	case !reflect.DeepEqual(base.Resolver, target.Resolver) || !reflect.DeepEqual(base.Descriptor, target.Descriptor):
		ed.ChangeType = ChangeResolver
	case base.Doc != target.Doc || base.Deprecated != target.Deprecated:
		ed.ChangeType = ChangeDoc
	default:
		ed.ChangeType = ChangeOther
	}
	return ed, true
}

func fileOf(e model.SerializableEntity) string {
	if e.Location == nil {
		return ""
	}
	return e.Location.FilePath
}

func fieldMap(fields []model.SerializableField) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = f
	}
	return out
}

func memberMap(members []model.SerializableEnumMember) map[string]any {
	out := make(map[string]any, len(members))
	for _, m := range members {
		out[m.Name] = m
	}
	return out
}

func typeMap(types []model.SerializableType) map[string]any {
	out := make(map[string]any, len(types))
	for _, t := range types {
		out[t.Name] = t
	}
	return out
}

// compareNamed returns the sorted names added, removed and changed.
func compareNamed(base, target map[string]any) (added, removed, changed []string) {
	for name, t := range target {
		b, ok := base[name]
		switch {
		case !ok:
			added = append(added, name)
		case !reflect.DeepEqual(b, t):
			changed = append(changed, name)
		}
	}
	for name := range base {
		if _, ok := target[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	return added, removed, changed
}
