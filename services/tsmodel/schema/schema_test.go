// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schema

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/resolver"
	"github.com/AleutianAI/tsmodel/services/tsmodel/typesys"
)

func ref(name string) *model.Reference { return &model.Reference{Name: name} }

func mustAdd(t *testing.T, reg *model.Registry, entities ...model.Entity) {
	t.Helper()
	for _, e := range entities {
		if err := reg.Add(e); err != nil {
			t.Fatalf("Add(%s): %v", e.EntityName(), err)
		}
	}
}

func TestGenerate_Document(t *testing.T) {
	reg := model.NewRegistry()

	user := model.NewObject("User")
	user.Doc = "A registered user.\n@tsModel"
	user.AddField(&model.Field{Name: "id", Required: true, Type: ref("string")})
	user.AddField(&model.Field{Name: "nick", Type: ref("string"), Deprecated: "use name"})
	user.AddField(&model.Field{Name: "role", Required: true, Type: ref("Role")})
	user.AddField(&model.Field{
		Name: "posts", Required: true,
		Type: &model.List{Required: true, Elem: ref("Page<Post>")},
		Resolver: &model.Method{
			Descriptor: model.Descriptor{File: "src/user.ts", Class: "UserResolvers", Name: "posts"},
			Param:      &model.Param{Name: "PostsArgs", Type: ref("PostsArgs")},
		},
	})

	args := model.NewObject("PostsArgs")
	args.AddField(&model.Field{Name: "limit", Type: ref("Int"), Default: 10.0})
	args.AddField(&model.Field{Name: "filter", Type: ref("PostFilter")})

	filter := model.NewObject("PostFilter")
	filter.AddField(&model.Field{Name: "tags", Type: &model.List{Required: true, Elem: ref("string")}})

	page := model.NewObject("Page<Post>")
	page.AddField(&model.Field{Name: "items", Required: true, Type: &model.List{Required: true, Elem: ref("Post")}})
	post := model.NewObject("Post")
	post.AddField(&model.Field{Name: "title", Required: true, Type: ref("string")})

	role := model.NewEnum("Role")
	role.AddMember(&model.EnumMember{Name: "Admin", Value: "admin"})
	role.AddMember(&model.EnumMember{Name: "Guest", Value: "guest", Deprecated: "no guests"})

	mustAdd(t, reg, user, args, filter, page, post, role,
		&model.Union{Name: "Feed", Members: []*model.Reference{ref("Post"), ref("User")}},
		&model.Scalar{Name: "Email", Doc: "RFC 5322 address."},
		&model.BasicScalar{Name: "string"}, &model.BasicScalar{Name: "Int"}, &model.BasicScalar{Name: "Date"},
	)

	sdl, err := Generate(reg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := `"""A registered user."""
type User {
  id: String!
  nick: String @deprecated(reason: "use name")
  role: Role!
  posts(limit: Int = 10, filter: PostFilter): [PagePost!]!
}

input PostFilter {
  tags: [String!]
}

type PagePost {
  items: [Post!]!
}

type Post {
  title: String!
}

enum Role {
  Admin
  Guest @deprecated(reason: "no guests")
}

union Feed = Post | User

"""RFC 5322 address."""
scalar Email

scalar Date
`
	if sdl != want {
		t.Errorf("unexpected SDL:\n%s\nwant:\n%s", sdl, want)
	}
}

func TestGenerate_SharedInputAndOutput(t *testing.T) {
	reg := model.NewRegistry()
	addr := model.NewObject("Address")
	addr.AddField(&model.Field{Name: "city", Required: true, Type: ref("string")})
	user := model.NewObject("User")
	user.AddField(&model.Field{Name: "address", Required: true, Type: ref("Address")})
	user.AddField(&model.Field{
		Name: "nearby", Required: true, Type: &model.List{Required: true, Elem: ref("User")},
		Resolver: &model.Method{Param: &model.Param{Name: "NearbyArgs", Type: ref("NearbyArgs")}},
	})
	nearby := model.NewObject("NearbyArgs")
	nearby.AddField(&model.Field{Name: "from", Required: true, Type: ref("Address")})
	mustAdd(t, reg, addr, user, nearby, &model.BasicScalar{Name: "string"})

	sdl, err := Generate(reg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, part := range []string{
		"type Address {",
		"input AddressInput {",
		"nearby(from: AddressInput!): [User!]!",
	} {
		if !strings.Contains(sdl, part) {
			t.Errorf("expected %q in:\n%s", part, sdl)
		}
	}
	if strings.Contains(sdl, "NearbyArgs") {
		t.Errorf("argument objects should be spread, got:\n%s", sdl)
	}
}

func TestGenerate_NameCollision(t *testing.T) {
	reg := model.NewRegistry()
	mustAdd(t, reg, model.NewObject("Page<User>"), model.NewObject("PageUser"))
	if _, err := Generate(reg); !errors.Is(err, ErrNameCollision) {
		t.Fatalf("expected ErrNameCollision, got %v", err)
	}
}

func TestGenerate_WithoutDescriptions(t *testing.T) {
	reg := model.NewRegistry()
	obj := model.NewObject("User")
	obj.Doc = "Documented."
	mustAdd(t, reg, obj)
	sdl, err := Generate(reg, WithDescriptions(false))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(sdl, "Documented") {
		t.Errorf("expected no description, got:\n%s", sdl)
	}
}

func TestName(t *testing.T) {
	tests := map[string]string{
		"User":             "User",
		"Page<User>":       "PageUser",
		"Page<Page<User>>": "PagePageUser",
		"Box<string>":      "BoxString",
		"Map<string,Int>":  "MapStringInt",
		"1st":              "_1st",
		"<>":               "_",
	}
	for in, want := range tests {
		if got := Name(in); got != want {
			t.Errorf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerate_ResolvedModel(t *testing.T) {
	prog, err := typesys.LoadSources(context.Background(), map[string][]byte{
		"src/model.ts": []byte(`
export interface Page<T> { items: T[]; total: Int }

/** @tsModel */
export interface Author {
  name: string;
  books: Page<Book>;
}

export interface Book { title: string }
`),
	})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	res, err := resolver.Resolve(context.Background(), prog,
		resolver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	sdl, err := Generate(res.Registry)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, part := range []string{"books: PageBook!", "type PageBook {", "items: [Book!]!", "total: Int!"} {
		if !strings.Contains(sdl, part) {
			t.Errorf("expected %q in:\n%s", part, sdl)
		}
	}
}
