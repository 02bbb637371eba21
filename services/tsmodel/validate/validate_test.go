// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/AleutianAI/tsmodel/services/tsmodel/model"
	"github.com/AleutianAI/tsmodel/services/tsmodel/resolver"
	"github.com/AleutianAI/tsmodel/services/tsmodel/typesys"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string    { return &v }

func ref(name string) *model.Reference { return &model.Reference{Name: name} }

// testRegistry builds:
//
//	User { id: string; name: string @assert{min:1,max:8}; age?: Int @assert{gte:0};
//	       role: Role = "user"; tags?: string[]; pet?: Pet; posts?: Post[] (resolver) }
//	Role = admin | user
//	Pet = Cat | Dog
func testRegistry(t *testing.T) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()

	user := model.NewObject("User")
	user.AddField(&model.Field{Name: "id", Required: true, Type: ref("string")})
	user.AddField(&model.Field{Name: "name", Required: true, Type: ref("string"),
		Assert: &model.Assertion{Min: f64(1), Max: f64(8)}})
	user.AddField(&model.Field{Name: "age", Type: ref("Int"), Assert: &model.Assertion{Gte: f64(0)}})
	user.AddField(&model.Field{Name: "role", Required: true, Type: ref("Role"), Default: "user"})
	user.AddField(&model.Field{Name: "tags", Type: &model.List{Required: true, Elem: ref("string")}})
	user.AddField(&model.Field{Name: "pet", Type: ref("Pet")})
	user.AddField(&model.Field{Name: "posts", Required: true, Type: &model.List{Required: true, Elem: ref("string")},
		Resolver: &model.Method{Descriptor: model.Descriptor{File: "src/user.ts", Class: "UserResolvers", Name: "posts"}}})

	role := model.NewEnum("Role")
	role.AddMember(&model.EnumMember{Name: "Admin", Value: "admin"})
	role.AddMember(&model.EnumMember{Name: "User", Value: "user"})

	cat := model.NewObject("Cat")
	cat.AddField(&model.Field{Name: "lives", Required: true, Type: ref("UInt")})
	dog := model.NewObject("Dog")
	dog.AddField(&model.Field{Name: "barks", Required: true, Type: ref("boolean")})
	pet := &model.Union{Name: "Pet", Members: []*model.Reference{ref("Cat"), ref("Dog")}}

	for _, e := range []model.Entity{
		user, role, cat, dog, pet,
		&model.BasicScalar{Name: "string"}, &model.BasicScalar{Name: "Int"},
		&model.BasicScalar{Name: "UInt"}, &model.BasicScalar{Name: "boolean"},
	} {
		if err := reg.Add(e); err != nil {
			t.Fatalf("Add(%s): %v", e.EntityName(), err)
		}
	}
	return reg
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func expectRules(t *testing.T, err error, want map[string]string) {
	t.Helper()
	var errs Errors
	if !errors.As(err, &errs) {
		t.Fatalf("expected Errors, got %v", err)
	}
	got := make(map[string]string, len(errs))
	for _, fe := range errs {
		got[fe.Path] = fe.Rule
	}
	for path, rule := range want {
		if got[path] != rule {
			t.Errorf("%s: expected rule %q, got %q (all: %v)", path, rule, got[path], errs)
		}
	}
	if len(got) != len(want) {
		t.Errorf("expected %d failures, got %d: %v", len(want), len(got), errs)
	}
}

func TestValidate_ValidInputAppliesDefaults(t *testing.T) {
	v := New(testRegistry(t), quiet())
	out, err := v.Validate(context.Background(), "User", map[string]any{
		"id": "u1", "name": "ada", "age": 36.0, "tags": []any{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := out.(map[string]any)
	if got["role"] != "user" {
		t.Errorf("expected default role, got %v", got["role"])
	}
	if _, ok := got["posts"]; ok {
		t.Error("resolver field must not be required on input")
	}
}

func TestValidate_StructuralFailures(t *testing.T) {
	v := New(testRegistry(t), quiet())
	_, err := v.Validate(context.Background(), "User", map[string]any{
		"name": 7.0,
		"age":  1.5,
		"role": "root",
		"tags": []any{"a", nil, true},
	})
	expectRules(t, err, map[string]string{
		"User.id":      "required",
		"User.name":    "type",
		"User.age":     "type",
		"User.role":    "enum",
		"User.tags[1]": "required",
		"User.tags[2]": "type",
	})
}

func TestValidate_Assertions(t *testing.T) {
	tests := []struct {
		name   string
		assert *model.Assertion
		value  any
		ok     bool
	}{
		{"string min length", &model.Assertion{Min: f64(3)}, "ab", false},
		{"string max length", &model.Assertion{Max: f64(3)}, "abc", true},
		{"string length counts runes", &model.Assertion{Length: f64(2)}, "日本", true},
		{"number lt", &model.Assertion{Lt: f64(10)}, 10.0, false},
		{"number gt", &model.Assertion{Gt: f64(0)}, 0.5, true},
		{"number lte", &model.Assertion{Lte: f64(1)}, 1.0, true},
		{"length on number", &model.Assertion{Length: f64(1)}, 1.0, false},
		{"list length", &model.Assertion{Max: f64(1)}, []any{"a", "b"}, false},
		{"regex match", &model.Assertion{Regex: str("(?i)^[a-z]+$")}, "Ada", true},
		{"regex mismatch", &model.Assertion{Regex: str("^[a-z]+$")}, "Ada", false},
		{"regex on number", &model.Assertion{Regex: str("^1$")}, 1.0, false},
		{"eq string", &model.Assertion{Eq: "a,b"}, "a,b", true},
		{"eq number", &model.Assertion{Eq: 2.0}, 2.0, true},
		{"eq other kind", &model.Assertion{Eq: "2"}, 2.0, false},
		{"ne bool", &model.Assertion{Ne: true}, true, false},
		{"ne other value", &model.Assertion{Ne: "x"}, "y", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(model.NewRegistry(), quiet())
			r := &run{v: v, ctx: context.Background()}
			r.assert(tt.assert, tt.value, "f")
			if ok := len(r.errs) == 0; ok != tt.ok {
				t.Errorf("expected ok=%v, got errors %v", tt.ok, r.errs)
			}
		})
	}
}

func TestValidate_AssertMessage(t *testing.T) {
	v := New(testRegistry(t), quiet())
	_, err := v.Validate(context.Background(), "User", map[string]any{"id": "u1", "name": "much too long"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "User.name: length must be max 8, got 13 (max)") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestValidate_Unions(t *testing.T) {
	v := New(testRegistry(t), quiet())
	tests := []struct {
		name string
		pet  any
		rule string
	}{
		{"first matching member", map[string]any{"barks": true}, ""},
		{"typename selects member", map[string]any{"__typename": "Cat", "lives": 9.0}, ""},
		{"typename member fails", map[string]any{"__typename": "Cat", "lives": -1.0}, "type"},
		{"unknown typename", map[string]any{"__typename": "Fish"}, "union"},
		{"no member matches", map[string]any{"fins": 2.0}, "union"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), "User", map[string]any{"id": "u", "name": "n", "pet": tt.pet})
			if tt.rule == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var errs Errors
			if !errors.As(err, &errs) || errs[0].Rule != tt.rule {
				t.Fatalf("expected rule %q, got %v", tt.rule, err)
			}
		})
	}
}

func TestValidate_Order(t *testing.T) {
	reg := testRegistry(t)
	e, _ := reg.Get("User")
	name := e.(*model.Object).Field("name")
	name.Input = &model.Method{Descriptor: model.Descriptor{File: "src/user.ts", Class: "UserInput", Name: "name"}}

	var calls []string
	input := func(_ context.Context, fc FieldContext, value any) (any, error) {
		calls = append(calls, "input:"+fc.Path+":"+fc.Descriptor.String())
		return strings.ToUpper(value.(string)), nil
	}
	after := func(_ context.Context, entity string, value map[string]any) error {
		calls = append(calls, fmt.Sprintf("after:%s:%v", entity, value["name"]))
		return nil
	}
	v := New(reg, quiet(), WithInput(input), WithAfter(after))

	out, err := v.Validate(context.Background(), "User", map[string]any{"id": "u", "name": "ada"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.(map[string]any)["name"] != "ADA" {
		t.Errorf("expected input callback result to be kept, got %v", out)
	}
	want := []string{"input:User.name:src/user.ts:UserInput.name", "after:User:ADA"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}

	// A failed assertion skips the callback and the after-hook.
	calls = nil
	_, err = v.Validate(context.Background(), "User", map[string]any{"id": "u", "name": ""})
	if err == nil {
		t.Fatal("expected assertion failure")
	}
	if len(calls) != 0 {
		t.Errorf("expected no callbacks after a failed assertion, got %v", calls)
	}
}

func TestValidate_CallbackErrors(t *testing.T) {
	reg := testRegistry(t)
	e, _ := reg.Get("User")
	e.(*model.Object).Field("id").Input = &model.Method{Descriptor: model.Descriptor{File: "src/user.ts", Name: "checkID"}}

	v := New(reg, quiet(),
		WithInput(func(context.Context, FieldContext, any) (any, error) { return nil, errors.New("taken") }),
	)
	_, err := v.Validate(context.Background(), "User", map[string]any{"id": "u", "name": "n"})
	expectRules(t, err, map[string]string{"User.id": "input"})

	v = New(reg, quiet(),
		WithAfter(func(context.Context, string, map[string]any) error { return errors.New("inconsistent") }),
	)
	_, err = v.Validate(context.Background(), "User", map[string]any{"id": "u", "name": "n"})
	expectRules(t, err, map[string]string{"User": "after"})
}

func TestValidate_UnknownEntity(t *testing.T) {
	v := New(testRegistry(t), quiet())
	for _, name := range []string{"Missing", "Role"} {
		if _, err := v.Validate(context.Background(), name, map[string]any{}); !errors.Is(err, ErrUnknownEntity) {
			t.Errorf("%s: expected ErrUnknownEntity, got %v", name, err)
		}
	}
}

func TestValidate_Cancelled(t *testing.T) {
	v := New(testRegistry(t), quiet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Validate(ctx, "User", map[string]any{"id": "u", "name": "n"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestValidate_BasicScalars(t *testing.T) {
	v := New(model.NewRegistry(), quiet())
	tests := []struct {
		scalar string
		value  any
		ok     bool
	}{
		{"number", 1.5, true},
		{"number", "1", false},
		{"Int", 2.0, true},
		{"UInt", -1.0, false},
		{"UFloat", 0.25, true},
		{"UFloat", -0.25, false},
		{"boolean", false, true},
		{"Date", "2025-03-01T10:00:00Z", true},
		{"Date", "yesterday", false},
		{"Date", 1700000000000.0, true},
		{"Buffer", []any{1.0}, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.scalar, tt.value), func(t *testing.T) {
			msg := v.checkScalar(tt.scalar, tt.value)
			if (msg == "") != tt.ok {
				t.Errorf("checkScalar(%s, %v) = %q, want ok=%v", tt.scalar, tt.value, msg, tt.ok)
			}
		})
	}
}

func TestValidate_ResolvedModel(t *testing.T) {
	prog, err := typesys.LoadSources(context.Background(), map[string][]byte{
		"src/model.ts": []byte(`
/** @tsModel */
export interface Signup {
  /** @assert {regex: /^[^@]+@[^@]+$/} */
  email: string;
  /** @assert {min: 13} */
  age: Int;
}
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

	v := New(res.Registry, quiet())
	if _, err := v.Validate(context.Background(), "Signup", map[string]any{"email": "a@b.c", "age": 30.0}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	_, err = v.Validate(context.Background(), "Signup", map[string]any{"email": "nope", "age": 12.0})
	expectRules(t, err, map[string]string{"Signup.email": "regex", "Signup.age": "min"})
}
