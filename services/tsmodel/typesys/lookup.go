// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typesys

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/tsmodel/services/tsmodel/ast"
)

// Lookup resolves a type reference to the symbol it names.
//
// Description:
//
//	Resolution follows the file the reference appears in:
//	  1. a declaration of the name in the same file
//	  2. a named, default or namespace import of a loaded module,
//	     following re-exports and `export { a as b }` aliases
//	  3. a unique declaration of the name anywhere in the program
//	     (ambient declarations, unresolvable module specifiers)
//
// Inputs:
//
//	ref - A NodeTypeReference (or any node with Name and Location).
//
// Outputs:
//
//	*ast.Symbol - The resolved symbol.
//	error - ErrSymbolNotFound or ErrAmbiguousSymbol.
func (p *Program) Lookup(ref *ast.Node) (*ast.Symbol, error) {
	if ref == nil || ref.Name == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrSymbolNotFound)
	}

	file := p.byPath[ref.Location.FilePath]
	if file != nil {
		if ref.Qualifier != "" {
			if sym := p.lookupQualified(file, ref.Qualifier, ref.Name); sym != nil {
				return sym, nil
			}
		} else if sym := p.resolveInFile(file, ref.Name, make(map[string]bool)); sym != nil {
			return sym, nil
		}
	}

	return p.lookupGlobal(ref.Name)
}

// LookupName resolves name as seen from the file at filePath.
func (p *Program) LookupName(filePath, name string) (*ast.Symbol, error) {
	return p.Lookup(&ast.Node{Kind: ast.NodeTypeReference, Name: name, Location: ast.Location{FilePath: filePath}})
}

func (p *Program) lookupGlobal(name string) (*ast.Symbol, error) {
	candidates := p.index.GetByName(name)
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	case 1:
		return candidates[0], nil
	}
	files := make([]string, len(candidates))
	for i, c := range candidates {
		files[i] = c.File.Path
	}
	return nil, fmt.Errorf("%w: %s is declared in %s", ErrAmbiguousSymbol, name, strings.Join(files, ", "))
}

// lookupQualified resolves `ns.Name` through a namespace import.
func (p *Program) lookupQualified(file *ast.File, qualifier, name string) *ast.Symbol {
	for _, imp := range file.Imports {
		if imp.Namespace != qualifier {
			continue
		}
		target := p.resolveModule(file.Path, imp.Source)
		if target == nil {
			return nil
		}
		return p.resolveExport(target, name, make(map[string]bool))
	}
	return nil
}

// resolveInFile resolves a name in the scope of a file.
func (p *Program) resolveInFile(file *ast.File, name string, visited map[string]bool) *ast.Symbol {
	key := file.Path + "#" + name
	if visited[key] {
		return nil
	}
	visited[key] = true

	if sym, ok := p.symbols[key]; ok {
		return sym
	}

	for _, imp := range file.Imports {
		imported, named := imp.Names[name]
		isDefault := imp.Default == name
		if !named && !isDefault {
			continue
		}
		target := p.resolveModule(file.Path, imp.Source)
		if target == nil {
			return nil
		}
		if isDefault {
			return p.resolveExport(target, "default", visited)
		}
		return p.resolveExport(target, imported, visited)
	}
	return nil
}

// resolveExport resolves a name exported by a module.
func (p *Program) resolveExport(file *ast.File, name string, visited map[string]bool) *ast.Symbol {
	if name == "default" {
		if file.DefaultExport == "" {
			return nil
		}
		name = file.DefaultExport
	}

	if local, ok := file.LocalExports[name]; ok {
		if sym := p.resolveInFile(file, local, visited); sym != nil {
			return sym
		}
	}

	if sym, ok := p.symbols[file.Path+"#"+name]; ok {
		return sym
	}

	for _, re := range file.ReExports {
		if re.Star {
			continue
		}
		orig, ok := re.Names[name]
		if !ok {
			continue
		}
		if target := p.resolveModule(file.Path, re.Source); target != nil {
			return p.resolveExport(target, orig, visited)
		}
	}

	for _, re := range file.ReExports {
		if !re.Star {
			continue
		}
		target := p.resolveModule(file.Path, re.Source)
		if target == nil {
			continue
		}
		key := "*" + target.Path + "#" + name
		if visited[key] {
			continue
		}
		visited[key] = true
		if sym := p.resolveExport(target, name, visited); sym != nil {
			return sym
		}
	}

	return nil
}

// resolveModule maps a module specifier used in from to a loaded file.
func (p *Program) resolveModule(from, spec string) *ast.File {
	for _, base := range p.moduleBases(from, spec) {
		for _, candidate := range moduleCandidates(base) {
			if f, ok := p.byPath[candidate]; ok {
				return f
			}
		}
	}
	return nil
}

// moduleBases returns the paths a specifier may refer to, before
// extension probing.
func (p *Program) moduleBases(from, spec string) []string {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".." {
		return []string{path.Join(path.Dir(from), spec)}
	}
	if strings.HasPrefix(spec, "/") {
		return []string{path.Clean(spec)}
	}

	opts := p.options.Compiler
	baseURL := normalizePath(opts.BaseURL)
	if opts.BaseURL == "" {
		baseURL = "."
	}

	patterns := make([]string, 0, len(opts.Paths))
	for pattern := range opts.Paths {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	var bases []string
	for _, pattern := range patterns {
		captured, ok := matchPathPattern(pattern, spec)
		if !ok {
			continue
		}
		for _, sub := range opts.Paths[pattern] {
			bases = append(bases, path.Join(baseURL, strings.Replace(sub, "*", captured, 1)))
		}
	}
	if opts.BaseURL != "" {
		bases = append(bases, path.Join(baseURL, spec))
	}
	return bases
}

// matchPathPattern matches a tsconfig paths pattern with at most one '*'.
func matchPathPattern(pattern, spec string) (string, bool) {
	star := strings.Index(pattern, "*")
	if star < 0 {
		return "", pattern == spec
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	if len(spec) < len(prefix)+len(suffix) || !strings.HasPrefix(spec, prefix) || !strings.HasSuffix(spec, suffix) {
		return "", false
	}
	return spec[len(prefix) : len(spec)-len(suffix)], true
}

// moduleCandidates lists file paths probed for a module base path.
func moduleCandidates(base string) []string {
	out := []string{base}
	for _, js := range []struct{ from, to string }{
		{".js", ".ts"}, {".jsx", ".tsx"}, {".mjs", ".mts"}, {".cjs", ".cts"},
	} {
		if strings.HasSuffix(base, js.from) {
			out = append(out, strings.TrimSuffix(base, js.from)+js.to)
		}
	}
	for _, ext := range []string{".ts", ".tsx", ".d.ts"} {
		out = append(out, base+ext)
	}
	for _, ext := range []string{"/index.ts", "/index.tsx", "/index.d.ts"} {
		out = append(out, base+ext)
	}
	return out
}

// ConstantValue evaluates an enum member.
//
// Description:
//
//	Members without an initializer continue numbering from the previous
//	numeric member (starting at 0). Initializers may reference earlier
//	members of the same enum by bare name or members of other enums as
//	`Enum.Member`.
//
// Outputs:
//
//	any - string or float64.
//	error - ErrNotEnumMember, or a wrapped ast.ErrNotConstant.
func (p *Program) ConstantValue(member *ast.Node) (any, error) {
	if member == nil || member.Kind != ast.NodeEnumMember {
		return nil, ErrNotEnumMember
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.consts[member]; ok {
		return v, nil
	}

	enum := p.enclosingEnum(member)
	if enum == nil {
		return nil, fmt.Errorf("%w: %s has no enclosing enum", ErrNotEnumMember, member.Name)
	}
	if err := p.foldEnumLocked(enum, make(map[*ast.Node]bool)); err != nil {
		return nil, err
	}
	return p.consts[member], nil
}

func (p *Program) enclosingEnum(member *ast.Node) *ast.Node {
	sym, ok := p.symbols[member.Location.FilePath+"#"+member.Owner]
	if !ok {
		return nil
	}
	for _, d := range sym.Decls {
		if d.Kind != ast.NodeEnum {
			continue
		}
		for _, m := range d.Members {
			if m == member {
				return d
			}
		}
	}
	return nil
}

// foldEnumLocked computes every member of enum. Caller holds p.mu.
func (p *Program) foldEnumLocked(enum *ast.Node, inProgress map[*ast.Node]bool) error {
	if inProgress[enum] {
		return fmt.Errorf("%w: circular reference in enum %s", ast.ErrNotConstant, enum.Name)
	}
	inProgress[enum] = true
	defer delete(inProgress, enum)

	var prev any
	for i, m := range enum.Members {
		if _, done := p.consts[m]; done {
			prev = p.consts[m]
			continue
		}

		var value any
		if m.Init == nil {
			switch pv := prev.(type) {
			case nil:
				if i != 0 {
					return fmt.Errorf("%w: %s.%s needs an initializer", ast.ErrNotConstant, enum.Name, m.Name)
				}
				value = float64(0)
			case float64:
				value = pv + 1
			default:
				return fmt.Errorf("%w: %s.%s needs an initializer after a string member", ast.ErrNotConstant, enum.Name, m.Name)
			}
		} else {
			v, err := m.Init.Fold(func(object, name string) (any, error) {
				return p.resolveConstLocked(enum, object, name, inProgress)
			})
			if err != nil {
				return fmt.Errorf("%s: enum %s.%s: %w", m.Location, enum.Name, m.Name, err)
			}
			switch v.(type) {
			case string, float64:
			default:
				return fmt.Errorf("%s: enum %s.%s: %w: %q", m.Location, enum.Name, m.Name, ast.ErrNotConstant, m.Init.Text)
			}
			value = v
		}
		p.consts[m] = value
		prev = value
	}
	return nil
}

// resolveConstLocked resolves identifiers inside an enum initializer.
func (p *Program) resolveConstLocked(enum *ast.Node, object, name string, inProgress map[*ast.Node]bool) (any, error) {
	target := enum
	if object != "" && object != enum.Name {
		sym, err := p.LookupName(enum.Location.FilePath, object)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ast.ErrNotConstant, object, name, err)
		}
		target = nil
		for _, d := range sym.Decls {
			if d.Kind == ast.NodeEnum && d.Member(name) != nil {
				target = d
				break
			}
		}
		if target == nil {
			return nil, fmt.Errorf("%w: %s.%s is not an enum member", ast.ErrNotConstant, object, name)
		}
	}

	member := target.Member(name)
	if member == nil {
		return nil, fmt.Errorf("%w: %s has no member %s", ast.ErrNotConstant, target.Name, name)
	}
	if v, ok := p.consts[member]; ok {
		return v, nil
	}
	if target == enum {
		return nil, fmt.Errorf("%w: %s.%s is referenced before it is defined", ast.ErrNotConstant, enum.Name, name)
	}
	if err := p.foldEnumLocked(target, inProgress); err != nil {
		return nil, err
	}
	return p.consts[member], nil
}
