// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
)

func testSymbol(path, name string, kind ast.NodeKind) *ast.Symbol {
	file := &ast.File{Path: path}
	decl := &ast.Node{Kind: kind, Name: name, Location: ast.Location{FilePath: path}}
	file.Declarations = append(file.Declarations, decl)
	return &ast.Symbol{Name: name, File: file, Decls: []*ast.Node{decl}}
}

func TestDeclarationIndex_AddAndGet(t *testing.T) {
	idx := NewDeclarationIndex()
	user := testSymbol("src/user.ts", "User", ast.NodeInterface)
	other := testSymbol("src/legacy/user.ts", "User", ast.NodeClass)

	if err := idx.Add(user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := idx.Add(other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := idx.Get("src/user.ts", "User")
	if !ok || got != user {
		t.Errorf("expected user symbol, got %v", got)
	}

	byName := idx.GetByName("User")
	if len(byName) != 2 {
		t.Fatalf("expected 2 symbols named User, got %d", len(byName))
	}
	if byName[0] != other {
		t.Errorf("expected results ordered by key, got %s first", byName[0].Key())
	}

	stats := idx.Stats()
	if stats.TotalSymbols != 2 || stats.FileCount != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.ByKind[ast.NodeClass] != 1 || stats.ByKind[ast.NodeInterface] != 1 {
		t.Errorf("unexpected kind counts %v", stats.ByKind)
	}
}

func TestDeclarationIndex_Duplicate(t *testing.T) {
	idx := NewDeclarationIndex()
	if err := idx.Add(testSymbol("a.ts", "A", ast.NodeInterface)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := idx.Add(testSymbol("a.ts", "A", ast.NodeInterface))
	if !errors.Is(err, ErrDuplicateSymbol) {
		t.Errorf("expected ErrDuplicateSymbol, got %v", err)
	}
}

func TestDeclarationIndex_Invalid(t *testing.T) {
	idx := NewDeclarationIndex()
	if err := idx.Add(nil); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("expected ErrInvalidSymbol for nil, got %v", err)
	}
	if err := idx.Add(&ast.Symbol{Name: "X"}); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("expected ErrInvalidSymbol for missing file, got %v", err)
	}
}

func TestDeclarationIndex_Capacity(t *testing.T) {
	idx := NewDeclarationIndex(WithMaxSymbols(1))
	if err := idx.Add(testSymbol("a.ts", "A", ast.NodeInterface)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := idx.Add(testSymbol("b.ts", "B", ast.NodeInterface)); !errors.Is(err, ErrMaxSymbolsExceeded) {
		t.Errorf("expected ErrMaxSymbolsExceeded, got %v", err)
	}
}

func TestDeclarationIndex_AddBatchAtomic(t *testing.T) {
	idx := NewDeclarationIndex()
	batch := []*ast.Symbol{
		testSymbol("a.ts", "A", ast.NodeInterface),
		testSymbol("a.ts", "A", ast.NodeInterface),
	}
	if err := idx.AddBatch(batch); !errors.Is(err, ErrDuplicateSymbol) {
		t.Fatalf("expected ErrDuplicateSymbol, got %v", err)
	}
	if idx.Stats().TotalSymbols != 0 {
		t.Error("expected no symbols after failed batch")
	}
}

func TestDeclarationIndex_Search(t *testing.T) {
	idx := NewDeclarationIndex()
	for _, name := range []string{"User", "UserProfile", "AdminUser", "Post"} {
		_ = idx.Add(testSymbol(strings.ToLower(name)+".ts", name, ast.NodeInterface))
	}

	results, err := idx.Search(context.Background(), "user", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Name != "User" || results[1].Name != "UserProfile" || results[2].Name != "AdminUser" {
		t.Errorf("unexpected order: %s, %s, %s", results[0].Name, results[1].Name, results[2].Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Search(ctx, "user", 0); err == nil {
		t.Error("expected error from canceled context")
	}
}

func TestDeclarationIndex_Suggest(t *testing.T) {
	idx := NewDeclarationIndex()
	_ = idx.Add(testSymbol("user.ts", "User", ast.NodeInterface))
	_ = idx.Add(testSymbol("post.ts", "Post", ast.NodeInterface))

	got := idx.Suggest("Usr", 3)
	if len(got) != 1 || got[0] != "User" {
		t.Errorf("expected [User], got %v", got)
	}
	if got := idx.Suggest("User", 3); len(got) != 0 {
		t.Errorf("expected the query itself to be excluded, got %v", got)
	}
}

func TestComputeMatchScore(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		symbolName    string
		wantMatchType string
	}{
		{"exact", "User", "user", "exact"},
		{"prefix", "User", "UserProfile", "prefix"},
		{"camelCase", "Profile", "UserProfile", "camelCase"},
		{"substring", "ser", "AdminUsers", "substring"},
		{"fuzzy", "Usre", "User", "fuzzy"},
		{"no match", "Invoice", "User", "no_match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, matchType := computeMatchScore(tt.query, strings.ToLower(tt.query),
				tt.symbolName, strings.ToLower(tt.symbolName), ast.NodeInterface)
			if matchType != tt.wantMatchType {
				t.Errorf("expected %s, got %s (score %d)", tt.wantMatchType, matchType, score)
			}
			if (score >= 0) != (tt.wantMatchType != "no_match") {
				t.Errorf("unexpected score %d for %s", score, matchType)
			}
		})
	}
}
