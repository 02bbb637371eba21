// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"testing"
)

func TestParseDocComment(t *testing.T) {
	raw := `/**
 * A user of the system.
 * Second line.
 *
 * @tsModel
 * @assert {min: 1,
 *   max: 3}
 * @default 42
 */`
	doc := ParseDocComment(raw)
	if doc == nil {
		t.Fatal("expected doc comment")
	}
	if doc.Description != "A user of the system.\nSecond line." {
		t.Errorf("unexpected description %q", doc.Description)
	}
	if len(doc.Tags) != 3 {
		t.Fatalf("expected 3 tags, got %d: %+v", len(doc.Tags), doc.Tags)
	}
	if doc.Tags[0].Name != "tsModel" || doc.Tags[0].Text != "" {
		t.Errorf("unexpected first tag %+v", doc.Tags[0])
	}
	if got := doc.Tags[1].Text; got != "{min: 1,\nmax: 3}" {
		t.Errorf("unexpected assert text %q", got)
	}
	if def := doc.Tags[2]; def.Name != "default" || def.Text != "42" {
		t.Errorf("unexpected default tag %+v", def)
	}
}

func TestParseDocComment_CallSyntax(t *testing.T) {
	doc := ParseDocComment(`/** @assert({ min: 1 }) */`)
	if doc == nil || len(doc.Tags) != 1 {
		t.Fatalf("expected one tag, got %+v", doc)
	}
	if doc.Tags[0].Name != "assert" || doc.Tags[0].Text != "({ min: 1 })" {
		t.Errorf("unexpected tag %+v", doc.Tags[0])
	}
}

func TestParseDocComment_NotJSDoc(t *testing.T) {
	if doc := ParseDocComment("/* plain */"); doc != nil {
		t.Errorf("expected nil for plain comment, got %+v", doc)
	}
}

func TestExprFold(t *testing.T) {
	num := func(v float64) *Expr { return &Expr{Kind: ExprNumber, Number: v} }
	str := func(s string) *Expr { return &Expr{Kind: ExprString, Str: s} }
	bin := func(l *Expr, op string, r *Expr) *Expr {
		return &Expr{Kind: ExprBinary, Left: l, Op: op, Right: r}
	}

	tests := []struct {
		name string
		expr *Expr
		want any
	}{
		{"number", num(3), float64(3)},
		{"negate", &Expr{Kind: ExprUnary, Op: "-", Left: num(2)}, float64(-2)},
		{"complement", &Expr{Kind: ExprUnary, Op: "~", Left: num(0)}, float64(-1)},
		{"shift", bin(num(1), "<<", num(4)), float64(16)},
		{"or", bin(num(1), "|", num(2)), float64(3)},
		{"pow", bin(num(2), "**", num(10)), float64(1024)},
		{"concat", bin(str("v"), "+", num(2)), "v2"},
		{"unsigned shift", bin(&Expr{Kind: ExprUnary, Op: "-", Left: num(1)}, ">>>", num(28)), float64(15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.expr.Fold(nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExprFold_NotConstant(t *testing.T) {
	ident := &Expr{Kind: ExprIdent, Name: "x", Text: "x"}
	if _, err := ident.Fold(nil); !errors.Is(err, ErrNotConstant) {
		t.Errorf("expected ErrNotConstant, got %v", err)
	}
	call := &Expr{Kind: ExprOther, Text: "f()"}
	if _, err := call.Fold(nil); !errors.Is(err, ErrNotConstant) {
		t.Errorf("expected ErrNotConstant, got %v", err)
	}
	sub := &Expr{Kind: ExprBinary, Op: "-", Left: &Expr{Kind: ExprString, Str: "a"}, Right: &Expr{Kind: ExprNumber, Number: 1}}
	if _, err := sub.Fold(nil); !errors.Is(err, ErrNotConstant) {
		t.Errorf("expected ErrNotConstant for string arithmetic, got %v", err)
	}
}
