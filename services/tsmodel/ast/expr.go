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
	"fmt"
	"math"
)

// ExprKind is the category of a lowered constant expression.
type ExprKind uint8

const (
	ExprNumber ExprKind = iota + 1
	ExprString
	ExprBool
	ExprNull
	ExprIdent
	ExprMember
	ExprUnary
	ExprBinary
	ExprOther
)

// Expr is a constant expression lowered from an enum initializer or a
// class property initializer.
type Expr struct {
	Kind ExprKind

	// Number holds the value of ExprNumber.
	Number float64

	// Str holds the value of ExprString.
	Str string

	// Bool holds the value of ExprBool.
	Bool bool

	// Name is the identifier (ExprIdent) or property name (ExprMember).
	Name string

	// Object is the object name of ExprMember (`Enum.Member`).
	Object string

	// Op is the operator of ExprUnary and ExprBinary.
	Op string

	Left  *Expr
	Right *Expr

	// Text is the raw source text.
	Text string
}

// ErrNotConstant is returned when an expression cannot be folded.
var ErrNotConstant = errors.New("expression is not a compile-time constant")

// IdentResolver resolves identifiers and `Object.Name` references during
// folding. object is empty for bare identifiers.
type IdentResolver func(object, name string) (any, error)

// Fold evaluates the expression to a string or float64.
//
// Description:
//
//	Follows the TypeScript constant enum expression rules: numeric and
//	string literals, unary + - ~, binary arithmetic/bitwise operators on
//	numbers, + on strings, parentheses (removed during lowering) and
//	references resolved through resolve.
//
// Inputs:
//
//	resolve - Resolver for identifiers. May be nil, in which case any
//	identifier makes the expression non-constant.
//
// Outputs:
//
//	any - string or float64 (bool/nil for initializer literals).
//	error - Wraps ErrNotConstant when folding fails.
func (e *Expr) Fold(resolve IdentResolver) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: empty expression", ErrNotConstant)
	}
	switch e.Kind {
	case ExprNumber:
		return e.Number, nil
	case ExprString:
		return e.Str, nil
	case ExprBool:
		return e.Bool, nil
	case ExprNull:
		return nil, nil
	case ExprIdent, ExprMember:
		if resolve == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotConstant, e.Text)
		}
		return resolve(e.Object, e.Name)
	case ExprUnary:
		v, err := e.Left.Fold(resolve)
		if err != nil {
			return nil, err
		}
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: unary %s on non-number in %q", ErrNotConstant, e.Op, e.Text)
		}
		switch e.Op {
		case "-":
			return -n, nil
		case "+":
			return n, nil
		case "~":
			return float64(^toInt32(n)), nil
		}
	case ExprBinary:
		l, err := e.Left.Fold(resolve)
		if err != nil {
			return nil, err
		}
		r, err := e.Right.Fold(resolve)
		if err != nil {
			return nil, err
		}
		return foldBinary(e, l, r)
	}
	return nil, fmt.Errorf("%w: %q", ErrNotConstant, e.Text)
}

func foldBinary(e *Expr, l, r any) (any, error) {
	_, lStr := l.(string)
	_, rStr := r.(string)
	if e.Op == "+" && (lStr || rStr) {
		return displayConst(l) + displayConst(r), nil
	}
	if lStr || rStr {
		return nil, fmt.Errorf("%w: operator %s on string in %q", ErrNotConstant, e.Op, e.Text)
	}
	a, aok := l.(float64)
	b, bok := r.(float64)
	if !aok || !bok {
		return nil, fmt.Errorf("%w: operator %s in %q", ErrNotConstant, e.Op, e.Text)
	}
	switch e.Op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		return a / b, nil
	case "%":
		return math.Mod(a, b), nil
	case "**":
		return math.Pow(a, b), nil
	case "|":
		return float64(toInt32(a) | toInt32(b)), nil
	case "&":
		return float64(toInt32(a) & toInt32(b)), nil
	case "^":
		return float64(toInt32(a) ^ toInt32(b)), nil
	case "<<":
		return float64(toInt32(a) << (uint32(toInt32(b)) & 31)), nil
	case ">>":
		return float64(toInt32(a) >> (uint32(toInt32(b)) & 31)), nil
	case ">>>":
		return float64(uint32(toInt32(a)) >> (uint32(toInt32(b)) & 31)), nil
	}
	return nil, fmt.Errorf("%w: unsupported operator %s in %q", ErrNotConstant, e.Op, e.Text)
}

// toInt32 applies the ECMAScript ToInt32 conversion.
func toInt32(v float64) int32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int32(int64(math.Mod(math.Trunc(v), 1<<32)))
}

// displayConst formats a folded value the way JavaScript string
// concatenation would.
func displayConst(v any) string {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e21 {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprint(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
