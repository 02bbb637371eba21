// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/resolver"
	"github.com/AleutianAI/tsmodel/services/tsmodel/typesys"
)

func objectWith(name string, fields ...*model.Field) *model.Object {
	obj := model.NewObject(name)
	for _, f := range fields {
		obj.AddField(f)
	}
	return obj
}

func stringField(name string) *model.Field {
	return &model.Field{Name: name, Required: true, Type: &model.Reference{Name: "string"}}
}

func registryOf(t *testing.T, entities ...model.Entity) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	for _, e := range entities {
		require.NoError(t, reg.Add(e))
	}
	return reg
}

func TestRegistries_DisjointEntities(t *testing.T) {
	target := registryOf(t, objectWith("User", stringField("id")))
	source := registryOf(t, objectWith("Post", stringField("title")), &model.BasicScalar{Name: "string"})

	require.NoError(t, Registries(target, source))
	assert.Equal(t, []string{"User", "Post", "string"}, target.Names())
}

func TestRegistries_MergesObjectFields(t *testing.T) {
	target := registryOf(t, objectWith("User", stringField("id")))
	srcUser := objectWith("User", stringField("id"), stringField("email"))
	srcUser.Doc = "A user."
	srcUser.Inherits = []*model.Reference{{Name: "Base"}}
	source := registryOf(t, srcUser)

	require.NoError(t, Registries(target, source))

	e, ok := target.Get("User")
	require.True(t, ok)
	user := e.(*model.Object)
	require.Len(t, user.Fields, 2)
	assert.Equal(t, "email", user.Fields[1].Name)
	assert.Equal(t, "A user.", user.Doc)
	require.Len(t, user.Inherits, 1)
}

func TestRegistries_EnumsAndUnions(t *testing.T) {
	te := model.NewEnum("Status")
	te.AddMember(&model.EnumMember{Name: "On", Value: "on"})
	se := model.NewEnum("Status")
	se.AddMember(&model.EnumMember{Name: "On", Value: "on"})
	se.AddMember(&model.EnumMember{Name: "Off", Value: "off"})

	tu := &model.Union{Name: "Node", Members: []*model.Reference{{Name: "User"}}}
	su := &model.Union{
		Name:     "Node",
		Members:  []*model.Reference{{Name: "User"}, {Name: "Post"}},
		Resolver: &model.Descriptor{File: "src/node.ts", Name: "resolveNode"},
	}

	target := registryOf(t, te, tu)
	require.NoError(t, Registries(target, registryOf(t, se, su)))

	assert.Len(t, te.Members, 2)
	assert.Len(t, tu.Members, 2)
	require.NotNil(t, tu.Resolver)
	assert.Equal(t, "resolveNode", tu.Resolver.Name)
}

func TestRegistries_IdenticalLeavesDeduplicated(t *testing.T) {
	d := model.Descriptor{File: "src/scalars.ts", Name: "email"}
	target := registryOf(t, &model.BasicScalar{Name: "string"}, &model.Scalar{Name: "Email", Descriptor: d})
	source := registryOf(t, &model.BasicScalar{Name: "string"}, &model.Scalar{Name: "Email", Descriptor: d})

	require.NoError(t, Registries(target, source))
	assert.Equal(t, 2, target.Len())
}

func TestRegistries_Failures(t *testing.T) {
	tests := []struct {
		name   string
		target model.Entity
		source model.Entity
		want   error
		path   string
	}{
		{
			name:   "kind mismatch",
			target: objectWith("User"),
			source: model.NewEnum("User"),
			want:   ErrKindMismatch,
			path:   "User",
		},
		{
			name:   "different scalar descriptors",
			target: &model.Scalar{Name: "Email", Descriptor: model.Descriptor{File: "a.ts", Name: "email"}},
			source: &model.Scalar{Name: "Email", Descriptor: model.Descriptor{File: "b.ts", Name: "email"}},
			want:   ErrNotMergeable,
			path:   "Email",
		},
		{
			name:   "field type differs",
			target: objectWith("User", stringField("id")),
			source: objectWith("User", &model.Field{Name: "id", Required: true, Type: &model.Reference{Name: "number"}}),
			want:   ErrNotMergeable,
			path:   "User.id",
		},
		{
			name:   "field optionality differs",
			target: objectWith("User", stringField("id")),
			source: objectWith("User", &model.Field{Name: "id", Type: &model.Reference{Name: "string"}}),
			want:   ErrNotMergeable,
			path:   "User.id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := registryOf(t, tt.target)
			err := Registries(target, registryOf(t, tt.source))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "expected %v, got %v", tt.want, err)

			var mErr *Error
			require.True(t, errors.As(err, &mErr))
			assert.Equal(t, tt.path, strings.Join(mErr.Path, "."))
		})
	}
}

func TestRegistries_KindMismatchNamesBothKinds(t *testing.T) {
	err := Registries(registryOf(t, objectWith("User")), registryOf(t, model.NewEnum("User")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target object")
	assert.Contains(t, err.Error(), "source enum")
	assert.Contains(t, err.Error(), "User")
}

func TestRegistries_FailedMergeLeavesTargetUnchanged(t *testing.T) {
	target := registryOf(t, objectWith("User", stringField("id")))
	source := registryOf(t,
		objectWith("Post", stringField("title")),
		objectWith("User", stringField("name"), &model.Field{Name: "id", Type: &model.Reference{Name: "number"}}),
	)

	require.Error(t, Registries(target, source))
	assert.Equal(t, []string{"User"}, target.Names())
	e, _ := target.Get("User")
	assert.Len(t, e.(*model.Object).Fields, 1)
}

func TestMerge_EnumValueConflict(t *testing.T) {
	a := model.NewEnum("Status")
	a.AddMember(&model.EnumMember{Name: "On", Value: "on"})
	b := model.NewEnum("Status")
	b.AddMember(&model.EnumMember{Name: "On", Value: 1.0})

	err := Merge(a, b)
	require.ErrorIs(t, err, ErrNotMergeable)
	assert.Contains(t, err.Error(), "On")
}

func TestMerge_NilArguments(t *testing.T) {
	assert.NoError(t, Merge(model.NewRegistry(), nil))
	assert.ErrorIs(t, Merge(nil, model.NewRegistry()), ErrNotMergeable)
	assert.NoError(t, Registries(model.NewRegistry(), nil))
}

func TestRegistries_ResolvedPatterns(t *testing.T) {
	resolve := func(src string) *model.Registry {
		prog, err := typesys.LoadSources(context.Background(), map[string][]byte{"src/model.ts": []byte(src)})
		require.NoError(t, err)
		res, err := resolver.Resolve(context.Background(), prog,
			resolver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
		require.NoError(t, err)
		return res.Registry
	}

	first := resolve(`/** @tsModel */ export interface User { id: string }`)
	second := resolve(`/** @tsModel */ export interface User { id: string; name?: string }
/** @tsModel */ export enum Role { Admin = 'admin' }`)

	require.NoError(t, Registries(first, second))
	assert.True(t, first.Has("Role"))
	e, _ := first.Get("User")
	assert.NotNil(t, e.(*model.Object).Field("name"))
}
