// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
	"github.com/AleutianAI/tsmodel/services/tsmodel/bindings"
)

// Built-in wrapper types recognized by name.
var (
	promiseTypes = map[string]bool{"Promise": true, "PromiseLike": true}
	arrayTypes   = map[string]bool{"Array": true, "ReadonlyArray": true}
)

// declClass is what a declaration becomes in the model.
type declClass uint8

const (
	classSkip declClass = iota
	classObject
	classEnum
	classUnion
	classScalar
	classBasicScalar

	// classAlias is a type alias resolved through its aliased type.
	classAlias
)

// target is a resolved type reference.
type target struct {
	sym   *ast.Symbol
	decl  *ast.Node
	class declClass
	name  string

	// env binds the declaration's type parameters for this reference.
	env *genericEnv

	// builtin is set for names without a declaration: default scalars and
	// scalars known only through a ModelScalar binding.
	builtin bool
}

// key identifies the source of an entity name for duplicate detection.
func (t *target) key() string {
	switch {
	case t.builtin:
		return "builtin:" + t.name
	case t.class == classScalar:
		return "scalar:" + t.name
	default:
		return t.sym.Key()
	}
}

// file returns the declaring file path, empty for built-ins.
func (t *target) file() string {
	if t.sym == nil || t.sym.File == nil {
		return ""
	}
	return t.sym.File.Path
}

// genericArg is a type argument bound together with the environment it
// must be evaluated in.
type genericArg struct {
	node *ast.Node
	env  *genericEnv
}

// genericEnv maps type parameter names to their arguments.
type genericEnv struct {
	params map[string]genericArg
}

func (e *genericEnv) lookup(ref *ast.Node) (genericArg, bool) {
	if e == nil || ref.Kind != ast.NodeTypeReference || ref.Qualifier != "" || len(ref.TypeArgs) > 0 {
		return genericArg{}, false
	}
	arg, ok := e.params[ref.Name]
	return arg, ok
}

// substitute follows type parameter bindings until node is not a
// parameter of env.
func substitute(node *ast.Node, env *genericEnv) (*ast.Node, *genericEnv, error) {
	for depth := 0; ; depth++ {
		arg, ok := env.lookup(node)
		if !ok {
			return node, env, nil
		}
		if depth > maxTypeDepth {
			return nil, nil, newError(node, ErrUnsupportedType, "type parameter %s does not resolve", node.Name)
		}
		node, env = arg.node, arg.env
	}
}

// instantiate binds decl's type parameters to args evaluated in caller.
// Missing arguments take the declared default, evaluated in the new
// environment so defaults may mention earlier parameters.
func instantiate(decl *ast.Node, ref *ast.Node, caller *genericEnv) (*genericEnv, error) {
	params := decl.TypeParams
	if len(ref.TypeArgs) > len(params) {
		return nil, newError(ref, ErrUnsupportedType, "%s expects %d type arguments, got %d", decl.Name, len(params), len(ref.TypeArgs))
	}
	env := &genericEnv{params: make(map[string]genericArg, len(params))}
	for i, tp := range params {
		switch {
		case i < len(ref.TypeArgs):
			env.params[tp.Name] = genericArg{node: ref.TypeArgs[i], env: caller}
		case tp.Default != nil:
			env.params[tp.Name] = genericArg{node: tp.Default, env: env}
		default:
			return nil, newError(ref, ErrUnsupportedType, "missing type argument %s for %s", tp.Name, decl.Name)
		}
	}
	return env, nil
}

// resolveTarget resolves a type reference to the declaration it names.
func (s *resolveState) resolveTarget(ref *ast.Node, env *genericEnv, depth int) (*target, error) {
	if depth > maxTypeDepth {
		return nil, newError(ref, ErrUnsupportedType, "type %s is nested too deeply", ref.QualifiedName())
	}
	sym, err := s.ts.Lookup(ref)
	if err != nil {
		if ref.Qualifier == "" && s.isBuiltin(ref.Name) {
			return &target{name: ref.Name, builtin: true, class: classBasicScalar}, nil
		}
		return nil, s.unresolved(ref, err)
	}

	t := s.classify(sym)
	switch t.class {
	case classSkip:
		return nil, newError(ref, ErrUnsupportedType, "%s is a value, not a type", ref.Name)
	case classEnum, classScalar, classBasicScalar:
		if len(ref.TypeArgs) > 0 {
			return nil, newError(ref, ErrUnsupportedType, "%s is not generic", sym.Name)
		}
		return t, nil
	}

	if len(t.decl.TypeParams) == 0 {
		if len(ref.TypeArgs) > 0 {
			return nil, newError(ref, ErrUnsupportedType, "%s is not generic", sym.Name)
		}
		return t, nil
	}

	t.env, err = instantiate(t.decl, ref, env)
	if err != nil {
		return nil, err
	}
	if t.class == classAlias {
		return t, nil
	}
	args := make([]string, len(t.decl.TypeParams))
	for i, tp := range t.decl.TypeParams {
		arg := t.env.params[tp.Name]
		if args[i], err = s.typeName(arg.node, arg.env, depth+1); err != nil {
			return nil, err
		}
	}
	t.name = fmt.Sprintf("%s<%s>", sym.Name, strings.Join(args, ","))
	return t, nil
}

func (s *resolveState) isBuiltin(name string) bool {
	if s.builtins[name] {
		return true
	}
	_, ok := s.table.Scalar(name)
	return ok
}

func (s *resolveState) unresolved(ref *ast.Node, cause error) error {
	msg := fmt.Sprintf("cannot resolve %s: %v", ref.QualifiedName(), cause)
	if suggestions := s.ts.Suggest(ref.Name); len(suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
	}
	return newError(ref, ErrUnresolved, "%s", msg)
}

// classify decides what sym becomes in the model.
func (s *resolveState) classify(sym *ast.Symbol) *target {
	t := &target{sym: sym, name: sym.Name}
	decls := s.ts.Declarations(sym)
	for _, d := range decls {
		switch d.Kind {
		case ast.NodeEnum:
			t.decl, t.class = d, classEnum
			return t
		case ast.NodeInterface, ast.NodeClass:
			if t.decl == nil {
				t.decl, t.class = d, classObject
			}
		}
	}
	if t.decl != nil || len(decls) == 0 {
		return t
	}

	t.decl = decls[0]
	if t.decl.Kind != ast.NodeTypeAlias || t.decl.Type == nil {
		t.class = classSkip
		return t
	}

	aliased := t.decl.Type
	switch aliased.Kind {
	case ast.NodeTypeLiteral:
		t.class = classObject
	case ast.NodeTypeReference:
		t.class = classAlias
		if name, ok := scalarArg(aliased); ok {
			t.class, t.name = classScalar, name
		}
	case ast.NodePrimitive, ast.NodeLiteral:
		t.class = s.scalarClass(t.name)
	case ast.NodeUnion:
		concrete := concreteMembers(aliased)
		switch {
		case len(concrete) > 0 && allScalarMembers(concrete):
			t.class = s.scalarClass(t.name)
		case len(concrete) > 1:
			t.class = classUnion
		default:
			t.class = classAlias
		}
	default:
		t.class = classAlias
	}
	return t
}

func (s *resolveState) scalarClass(name string) declClass {
	if _, ok := s.table.Scalar(name); ok {
		return classScalar
	}
	return classBasicScalar
}

// scalarArg returns X for ModelScalar<X>.
func scalarArg(ref *ast.Node) (string, bool) {
	if ref.Name != bindings.ModelScalar || ref.Qualifier != "" || len(ref.TypeArgs) != 1 {
		return "", false
	}
	arg := ref.TypeArgs[0]
	if arg.Kind != ast.NodeTypeReference {
		return "", false
	}
	return arg.Name, true
}

// isNullish reports undefined, null and void.
func isNullish(n *ast.Node) bool {
	if n.Kind != ast.NodeLiteral {
		return false
	}
	switch n.Name {
	case "undefined", "null", "void":
		return true
	}
	return false
}

// concreteMembers returns the union members that are not nullish.
func concreteMembers(union *ast.Node) []*ast.Node {
	out := make([]*ast.Node, 0, len(union.Types))
	for _, m := range union.Types {
		if !isNullish(m) {
			out = append(out, m)
		}
	}
	return out
}

func allScalarMembers(nodes []*ast.Node) bool {
	for _, n := range nodes {
		if n.Kind != ast.NodePrimitive && n.Kind != ast.NodeLiteral {
			return false
		}
	}
	return true
}

// literalScalar maps a literal type to its primitive name.
func literalScalar(n *ast.Node) (string, bool) {
	text := n.Name
	switch {
	case text == "":
		return "", false
	case text == "true" || text == "false":
		return "boolean", true
	case text[0] == '\'' || text[0] == '"' || text[0] == '`':
		return "string", true
	case isNullish(n):
		return "", false
	default:
		return "number", true
	}
}

// typeName computes the entity name a type expression resolves to. It is
// used for generic instance names and for collapsing unions.
func (s *resolveState) typeName(node *ast.Node, env *genericEnv, depth int) (string, error) {
	if depth > maxTypeDepth {
		return "", newError(node, ErrUnsupportedType, "type is nested too deeply")
	}
	node, env, err := substitute(node, env)
	if err != nil {
		return "", err
	}

	switch node.Kind {
	case ast.NodePrimitive:
		return node.Name, nil

	case ast.NodeLiteral:
		if name, ok := literalScalar(node); ok {
			return name, nil
		}
		return "", newError(node, ErrUnsupportedType, "%s is not a model type", node.Name)

	case ast.NodeArray:
		if node.Type == nil {
			return "", newError(node, ErrEmptyList, "array without element type")
		}
		elem, err := s.typeName(node.Type, env, depth+1)
		if err != nil {
			return "", err
		}
		return elem + "[]", nil

	case ast.NodeUnion:
		var names []string
		seen := make(map[string]bool)
		for _, m := range concreteMembers(node) {
			name, err := s.typeName(m, env, depth+1)
			if err != nil {
				return "", err
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		if len(names) != 1 {
			return "", newError(node, ErrUnnamedUnion, "give a name to the union %s", node.Text)
		}
		return names[0], nil

	case ast.NodeTypeReference:
		if node.Qualifier == "" && len(node.TypeArgs) == 1 {
			if promiseTypes[node.Name] {
				return s.typeName(node.TypeArgs[0], env, depth+1)
			}
			if arrayTypes[node.Name] {
				elem, err := s.typeName(node.TypeArgs[0], env, depth+1)
				if err != nil {
					return "", err
				}
				return elem + "[]", nil
			}
		}
		t, err := s.resolveTarget(node, env, depth+1)
		if err != nil {
			return "", err
		}
		if t.class == classAlias {
			return s.typeName(t.decl.Type, t.env, depth+1)
		}
		return t.name, nil

	case ast.NodeTuple:
		return "", newError(node, ErrTuple, "use a list type instead")

	case ast.NodeTypeLiteral:
		return "", newError(node, ErrUnsupportedType, "inline object types cannot be used as type arguments")

	default:
		return "", newError(node, ErrUnsupportedType, "%s", node.Text)
	}
}
