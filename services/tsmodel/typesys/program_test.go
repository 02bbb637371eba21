// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package typesys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/index"
)

func loadTestProgram(t *testing.T, sources map[string]string, opts ...Option) *Program {
	t.Helper()
	in := make(map[string][]byte, len(sources))
	for p, s := range sources {
		in[p] = []byte(s)
	}
	prog, err := LoadSources(context.Background(), in, opts...)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	return prog
}

func ref(file, name string) *ast.Node {
	return &ast.Node{Kind: ast.NodeTypeReference, Name: name, Location: ast.Location{FilePath: file}}
}

func TestLoadSources_SortedFiles(t *testing.T) {
	prog := loadTestProgram(t, map[string]string{
		"src/b.ts": `export interface B { x: string }`,
		"src/a.ts": `export interface A { y: string }`,
	})
	files := prog.SourceFiles()
	if len(files) != 2 || files[0].Path != "src/a.ts" || files[1].Path != "src/b.ts" {
		t.Fatalf("expected files sorted by path, got %v", files)
	}
	if _, ok := prog.File("src/a.ts"); !ok {
		t.Error("expected File to find src/a.ts")
	}
}

func TestLoadSources_MaxDeclarations(t *testing.T) {
	in := map[string][]byte{
		"src/a.ts": []byte(`export interface A { x: string }
export enum E { One = 1 }`),
	}
	_, err := LoadSources(context.Background(), in, WithMaxDeclarations(1))
	if !errors.Is(err, index.ErrMaxSymbolsExceeded) {
		t.Fatalf("expected ErrMaxSymbolsExceeded, got %v", err)
	}
	if _, err := LoadSources(context.Background(), in, WithMaxDeclarations(2)); err != nil {
		t.Fatalf("expected two declarations to fit, got %v", err)
	}
}

func TestLoad_FromDisk(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "user.ts")
	if err := os.WriteFile(p, []byte(`export interface User { id: string }`), 0o644); err != nil {
		t.Fatal(err)
	}
	prog, err := Load(context.Background(), []string{p})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(prog.SourceFiles()) != 1 {
		t.Fatalf("expected 1 file, got %d", len(prog.SourceFiles()))
	}

	if _, err := Load(context.Background(), []string{filepath.Join(dir, "missing.ts")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLookup_LocalAndImports(t *testing.T) {
	prog := loadTestProgram(t, map[string]string{
		"src/user.ts": `export interface User { id: string }
interface Profile { bio: string }
export default Profile;`,
		"src/query.ts": `import Profile, { User as Account } from './user';
import * as models from './models';
export interface Query { me: Account; profile: Profile; post: models.Post }`,
		"src/models/index.ts": `export * from './post';`,
		"src/models/post.ts":  `export interface Post { title: string }`,
	})

	sym, err := prog.Lookup(ref("src/query.ts", "Account"))
	if err != nil || sym.Name != "User" || sym.File.Path != "src/user.ts" {
		t.Fatalf("expected aliased import to resolve to User, got %v (%v)", sym, err)
	}

	sym, err = prog.Lookup(ref("src/query.ts", "Profile"))
	if err != nil || sym.Name != "Profile" {
		t.Fatalf("expected default import to resolve, got %v (%v)", sym, err)
	}

	qualified := ref("src/query.ts", "Post")
	qualified.Qualifier = "models"
	sym, err = prog.Lookup(qualified)
	if err != nil || sym.File.Path != "src/models/post.ts" {
		t.Fatalf("expected namespace import through star re-export, got %v (%v)", sym, err)
	}
}

func TestLookup_PathAliases(t *testing.T) {
	prog := loadTestProgram(t, map[string]string{
		"src/app/user.ts": `export interface User { id: string }`,
		"src/query.ts":    `import { User } from '@app/user.js'; export interface Q { u: User }`,
	}, WithCompilerOptions(CompilerOptions{
		BaseURL: "src",
		Paths:   map[string][]string{"@app/*": {"app/*"}},
	}))

	sym, err := prog.Lookup(ref("src/query.ts", "User"))
	if err != nil || sym.File.Path != "src/app/user.ts" {
		t.Fatalf("expected path alias to resolve, got %v (%v)", sym, err)
	}
}

func TestLookup_GlobalFallback(t *testing.T) {
	prog := loadTestProgram(t, map[string]string{
		"types/global.d.ts": `declare interface Ambient { a: string }`,
		"src/a.ts":          `export interface Twice { a: string }`,
		"src/b.ts":          `export interface Twice { b: string }`,
		"src/q.ts":          `export interface Q { x: Ambient }`,
	})

	if sym, err := prog.Lookup(ref("src/q.ts", "Ambient")); err != nil || sym.Name != "Ambient" {
		t.Errorf("expected ambient declaration, got %v (%v)", sym, err)
	}
	if _, err := prog.Lookup(ref("src/q.ts", "Twice")); !errors.Is(err, ErrAmbiguousSymbol) {
		t.Errorf("expected ErrAmbiguousSymbol, got %v", err)
	}
	if _, err := prog.Lookup(ref("src/q.ts", "Nope")); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
	if sym, err := prog.Lookup(ref("src/a.ts", "Twice")); err != nil || sym.File.Path != "src/a.ts" {
		t.Errorf("expected local declaration to win, got %v (%v)", sym, err)
	}
}

func TestProperties_DeclarationMerging(t *testing.T) {
	prog := loadTestProgram(t, map[string]string{
		"src/user.ts": `export interface User { id: string; name: string }
export interface User { email: string; name: number }
export type Page = { items: string[] };
export interface Admin extends User { level: number }`,
	})

	user, err := prog.LookupName("src/user.ts", "User")
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Declarations(user)) != 2 {
		t.Fatalf("expected 2 merged declarations, got %d", len(prog.Declarations(user)))
	}
	props, err := prog.Properties(user)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range props {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "id" || names[1] != "name" || names[2] != "email" {
		t.Errorf("unexpected merged properties %v", names)
	}
	if props[1].Type.Name != "string" {
		t.Errorf("expected first declaration of name to win, got %s", props[1].Type.Name)
	}

	page, _ := prog.LookupName("src/user.ts", "Page")
	if props, _ := prog.Properties(page); len(props) != 1 || props[0].Name != "items" {
		t.Errorf("expected alias literal members, got %v", props)
	}

	admin, _ := prog.LookupName("src/user.ts", "Admin")
	if h := prog.Heritage(admin); len(h) != 1 || h[0].Name != "User" {
		t.Errorf("expected extends User, got %v", h)
	}
}

func TestConstantValue(t *testing.T) {
	prog := loadTestProgram(t, map[string]string{
		"src/enums.ts": `export enum Color { Red, Green, Blue = 10, Cyan }
export enum Mode { Read = 'r', Write = 'w' }
export enum Mixed { A = Color.Blue * 2, B = A + 1, C = 'x' + 'y' }
export enum Bad { A = 'a', B }`,
	})

	value := func(enum, member string) (any, error) {
		sym, err := prog.LookupName("src/enums.ts", enum)
		if err != nil {
			t.Fatal(err)
		}
		return prog.ConstantValue(sym.Primary().Member(member))
	}

	tests := []struct {
		enum, member string
		want         any
	}{
		{"Color", "Red", float64(0)},
		{"Color", "Green", float64(1)},
		{"Color", "Blue", float64(10)},
		{"Color", "Cyan", float64(11)},
		{"Mode", "Write", "w"},
		{"Mixed", "A", float64(20)},
		{"Mixed", "B", float64(21)},
		{"Mixed", "C", "xy"},
	}
	for _, tt := range tests {
		got, err := value(tt.enum, tt.member)
		if err != nil {
			t.Errorf("%s.%s: unexpected error %v", tt.enum, tt.member, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s.%s = %v, want %v", tt.enum, tt.member, got, tt.want)
		}
	}

	if _, err := value("Bad", "B"); !errors.Is(err, ast.ErrNotConstant) {
		t.Errorf("expected ErrNotConstant for member after string, got %v", err)
	}
	if _, err := prog.ConstantValue(&ast.Node{Kind: ast.NodeProperty}); !errors.Is(err, ErrNotEnumMember) {
		t.Errorf("expected ErrNotEnumMember, got %v", err)
	}
}

func TestSuggest(t *testing.T) {
	prog := loadTestProgram(t, map[string]string{
		"src/user.ts": `export interface User { id: string }`,
	})
	if got := prog.Suggest("Usr"); len(got) != 1 || got[0] != "User" {
		t.Errorf("expected [User], got %v", got)
	}
}

func TestMatchPathPattern(t *testing.T) {
	if got, ok := matchPathPattern("@app/*", "@app/user"); !ok || got != "user" {
		t.Errorf("expected capture 'user', got %q %v", got, ok)
	}
	if _, ok := matchPathPattern("@app/*", "lodash"); ok {
		t.Error("expected no match")
	}
	if _, ok := matchPathPattern("exact", "exact"); !ok {
		t.Error("expected exact match")
	}
}
