// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
)

func TestDiffRegistries_Identical(t *testing.T) {
	diff, err := DiffRegistries(userRegistry(t, "id"), userRegistry(t, "id"), "a", "b")
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Equal(t, "a", diff.BaseSnapshotID)
	assert.Empty(t, diff.EntitiesAdded)
	assert.Empty(t, diff.EntitiesModified)
}

func TestDiffRegistries_Changes(t *testing.T) {
	base := userRegistry(t, "id", "email", "age")
	role := model.NewEnum("Role")
	role.Location = ast.Location{FilePath: "src/role.ts"}
	role.AddMember(&model.EnumMember{Name: "Admin", Value: "admin"})
	require.NoError(t, base.Add(role))

	target := model.NewRegistry()
	user := model.NewObject("User")
	user.Location = ast.Location{FilePath: "src/user.ts", Line: 1}
	user.AddField(&model.Field{Name: "id", Required: true, Type: &model.Reference{Name: "string"}})
	user.AddField(&model.Field{Name: "email", Type: &model.Reference{Name: "string"}})
	user.AddField(&model.Field{Name: "name", Required: true, Type: &model.Reference{Name: "string"}})
	post := model.NewObject("Post")
	post.Location = ast.Location{FilePath: "src/post.ts"}
	require.NoError(t, target.Add(user))
	require.NoError(t, target.Add(post))
	require.NoError(t, target.Add(&model.BasicScalar{Name: "string"}))

	diff, err := DiffRegistries(base, target, "", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Post"}, diff.EntitiesAdded)
	assert.Equal(t, []string{"Role"}, diff.EntitiesRemoved)
	require.Len(t, diff.EntitiesModified, 1)
	ed := diff.EntitiesModified[0]
	assert.Equal(t, "User", ed.Name)
	assert.Equal(t, ChangeFields, ed.ChangeType)
	assert.Equal(t, []string{"name"}, ed.Added)
	assert.Equal(t, []string{"age"}, ed.Removed)
	assert.Equal(t, []string{"email"}, ed.Changed)

	assert.Equal(t, 3, diff.Summary.TotalChanges)
	assert.Equal(t, 3, diff.Summary.FilesAffected)
	assert.InDelta(t, 1.0, diff.Summary.ChangeRatio, 0.001)
}

func TestDiffRegistries_Classification(t *testing.T) {
	withUser := func(mutate func(*model.Object)) *model.Registry {
		reg := model.NewRegistry()
		user := model.NewObject("User")
		user.Location = ast.Location{FilePath: "src/user.ts", Line: 1}
		mutate(user)
		require.NoError(t, reg.Add(user))
		return reg
	}
	base := withUser(func(*model.Object) {})

	tests := []struct {
		name   string
		target *model.Registry
		want   string
	}{
		{"line move only", withUser(func(o *model.Object) { o.Location.Line = 40 }), ""},
		{"file move", withUser(func(o *model.Object) { o.Location.FilePath = "src/people.ts" }), ChangeMoved},
		{"doc", withUser(func(o *model.Object) { o.Doc = "A user." }), ChangeDoc},
		{"other", withUser(func(o *model.Object) { o.IsClass = true }), ChangeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff, err := DiffRegistries(base, tt.target, "", "")
			require.NoError(t, err)
			if tt.want == "" {
				assert.True(t, diff.Empty())
				return
			}
			require.Len(t, diff.EntitiesModified, 1)
			assert.Equal(t, tt.want, diff.EntitiesModified[0].ChangeType)
		})
	}

	kindChanged := model.NewRegistry()
	require.NoError(t, kindChanged.Add(model.NewEnum("User")))
	diff, err := DiffRegistries(base, kindChanged, "", "")
	require.NoError(t, err)
	require.Len(t, diff.EntitiesModified, 1)
	assert.Equal(t, ChangeKind, diff.EntitiesModified[0].ChangeType)
}

func TestDiffRegistries_NilArguments(t *testing.T) {
	_, err := DiffRegistries(nil, model.NewRegistry(), "", "")
	assert.Error(t, err)
	_, err = DiffRegistries(model.NewRegistry(), nil, "", "")
	assert.Error(t, err)
}
