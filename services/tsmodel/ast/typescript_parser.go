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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScriptParserOption configures a TypeScriptParser instance.
type TypeScriptParserOption func(*TypeScriptParser)

// WithTypeScriptMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Must be positive.
//
// Example:
//
//	parser := NewTypeScriptParser(WithTypeScriptMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithTypeScriptMaxFileSize(bytes int64) TypeScriptParserOption {
	return func(p *TypeScriptParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithTypeScriptLogger sets the logger used for parse diagnostics.
func WithTypeScriptLogger(logger *slog.Logger) TypeScriptParserOption {
	return func(p *TypeScriptParser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// TypeScriptParser lowers TypeScript source files into *File values.
//
// Description:
//
//	TypeScriptParser uses tree-sitter to parse TypeScript source and lowers
//	the declarations relevant to model extraction (interfaces, classes,
//	type aliases, enums, annotated variables) into the closed Node variant.
//	Each Parse call creates its own tree-sitter parser instance and closes
//	the tree before returning; the lowered File holds no tree-sitter state.
//
// Thread Safety:
//
//	TypeScriptParser instances are safe for concurrent use.
//
// Example:
//
//	parser := NewTypeScriptParser()
//	file, err := parser.Parse(ctx, []byte("export interface User { id: string }"), "user.ts")
//	if err != nil {
//	    return err
//	}
//	for _, decl := range file.Declarations {
//	    fmt.Printf("%s: %s\n", decl.Kind, decl.Name)
//	}
type TypeScriptParser struct {
	maxFileSize int64
	logger      *slog.Logger
}

// NewTypeScriptParser creates a new TypeScriptParser with the given options.
//
// Inputs:
//   - opts: Optional configuration functions.
//
// Outputs:
//   - *TypeScriptParser: Configured parser instance, never nil.
func NewTypeScriptParser(opts ...TypeScriptParserOption) *TypeScriptParser {
	p := &TypeScriptParser{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse lowers TypeScript source code into a File.
//
// Description:
//
//	Parses the content with the TypeScript grammar (TSX grammar for .tsx
//	files) and lowers top-level declarations, imports and re-exports.
//	The parser is error-tolerant: syntax errors are recorded in
//	File.Errors and the declarations that could be recognised are kept.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw TypeScript source code bytes. Must be valid UTF-8.
//   - filePath: Path to the file, forward slashes.
//
// Outputs:
//   - *File: The lowered file. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *TypeScriptParser) Parse(ctx context.Context, content []byte, filePath string) (*File, error) {
	ctx, span := startParseSpan(ctx, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %s size %d exceeds limit %d", ErrFileTooLarge, filePath, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		p.logger.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidContent, filePath)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	if strings.HasSuffix(filePath, ".tsx") {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(typescript.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed for %s: %w", filePath, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	file := &File{
		Path:         filePath,
		Hash:         hex.EncodeToString(hash[:]),
		Declaration:  strings.HasSuffix(filePath, ".d.ts"),
		LocalExports: make(map[string]string),
	}

	root := tree.RootNode()
	if root == nil {
		file.Errors = append(file.Errors, "tree-sitter returned nil root node")
		return file, nil
	}
	if root.HasError() {
		file.Errors = append(file.Errors, "source contains syntax errors")
		p.logger.Debug("syntax errors in source", slog.String("file", filePath))
	}

	l := &lowerer{content: content, path: filePath, file: file}
	l.lowerProgram(root)

	setParseSpanResult(span, len(file.Declarations), len(file.Errors))
	recordParseMetrics(time.Since(start), len(file.Declarations), true)

	return file, nil
}

// sourceExtensions are the file suffixes the parser handles.
var sourceExtensions = []string{".ts", ".tsx", ".mts", ".cts"}

// IsSourceFile reports whether name has a suffix the parser handles.
func IsSourceFile(name string) bool {
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// lowerer holds per-file state for one Parse call.
type lowerer struct {
	content []byte
	path    string
	file    *File
}

func (l *lowerer) text(n *sitter.Node) string {
	return string(l.content[n.StartByte():n.EndByte()])
}

func (l *lowerer) location(n *sitter.Node) Location {
	return Location{
		FilePath: l.path,
		Line:     int(n.StartPoint().Row) + 1,
		Column:   int(n.StartPoint().Column),
		EndLine:  int(n.EndPoint().Row) + 1,
		Offset:   int(n.StartByte()),
	}
}

// lowerProgram walks the top-level statements of a file.
func (l *lowerer) lowerProgram(root *sitter.Node) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case tsNodeImportStatement:
			l.lowerImport(child)
		case tsNodeExportStatement:
			l.lowerExport(child)
		case tsNodeAmbient:
			l.lowerAmbient(child, false)
		default:
			l.lowerStatement(child, false, nil)
		}
	}
}

// lowerStatement lowers a declaration statement, appending results to the file.
func (l *lowerer) lowerStatement(n *sitter.Node, exported bool, decorators []Decorator) {
	switch n.Type() {
	case tsNodeClassDeclaration, tsNodeAbstractClassDeclaration:
		l.appendDecl(l.lowerClass(n, exported, decorators))
	case tsNodeInterfaceDeclaration:
		l.appendDecl(l.lowerInterface(n, exported))
	case tsNodeTypeAliasDeclaration:
		l.appendDecl(l.lowerTypeAlias(n, exported))
	case tsNodeEnumDeclaration:
		l.appendDecl(l.lowerEnum(n, exported))
	case tsNodeLexicalDeclaration, tsNodeVariableDeclaration:
		for _, v := range l.lowerVariables(n, exported) {
			l.appendDecl(v)
		}
	case tsNodeAmbient:
		l.lowerAmbient(n, exported)
	}
}

func (l *lowerer) appendDecl(n *Node) {
	if n != nil && n.Name != "" {
		l.file.Declarations = append(l.file.Declarations, n)
	}
}

// lowerAmbient handles `declare ...` statements.
func (l *lowerer) lowerAmbient(n *sitter.Node, exported bool) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "declare" {
			continue
		}
		l.lowerStatement(child, exported, nil)
	}
}

// lowerExport handles export statements: declarations, export clauses,
// re-exports and default exports.
func (l *lowerer) lowerExport(n *sitter.Node) {
	var decorators []Decorator
	var clause *sitter.Node
	var source string
	isDefault := false
	star := false

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case tsNodeDecorator:
			decorators = append(decorators, l.lowerDecorator(child))
		case "default":
			isDefault = true
		case "*":
			star = true
		case tsNodeExportClause:
			clause = child
		case tsNodeString:
			source = unquote(l.text(child))
		case tsNodeIdentifier:
			if isDefault {
				l.file.DefaultExport = l.text(child)
			}
		case tsNodeClassDeclaration, tsNodeAbstractClassDeclaration, tsNodeInterfaceDeclaration,
			tsNodeTypeAliasDeclaration, tsNodeEnumDeclaration, tsNodeLexicalDeclaration,
			tsNodeVariableDeclaration, tsNodeAmbient:
			before := len(l.file.Declarations)
			l.lowerStatement(child, true, decorators)
			if isDefault && len(l.file.Declarations) > before {
				decl := l.file.Declarations[len(l.file.Declarations)-1]
				decl.Default = true
				l.file.DefaultExport = decl.Name
			}
		}
	}

	switch {
	case star && source != "":
		l.file.ReExports = append(l.file.ReExports, ReExport{Source: source, Star: true})
	case clause != nil:
		names := l.lowerExportClause(clause)
		if source != "" {
			l.file.ReExports = append(l.file.ReExports, ReExport{Source: source, Names: names})
			return
		}
		for exported, local := range names {
			l.file.LocalExports[exported] = local
		}
	}
}

// lowerExportClause returns exported name -> original name.
func (l *lowerer) lowerExportClause(n *sitter.Node) map[string]string {
	names := make(map[string]string)
	for i := 0; i < int(n.ChildCount()); i++ {
		spec := n.Child(i)
		if spec.Type() != tsNodeExportSpecifier {
			continue
		}
		var idents []string
		for j := 0; j < int(spec.ChildCount()); j++ {
			gc := spec.Child(j)
			if gc.Type() == tsNodeIdentifier || gc.Type() == tsNodeTypeIdentifier {
				idents = append(idents, l.text(gc))
			}
		}
		switch len(idents) {
		case 1:
			names[idents[0]] = idents[0]
		case 2:
			names[idents[1]] = idents[0]
		}
	}
	return names
}

// lowerImport handles ES module import statements.
func (l *lowerer) lowerImport(n *sitter.Node) {
	imp := Import{
		Names:    make(map[string]string),
		Location: l.location(n),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "type":
			imp.TypeOnly = true
		case tsNodeImportClause:
			l.lowerImportClause(child, &imp)
		case tsNodeString:
			imp.Source = unquote(l.text(child))
		}
	}

	if imp.Source == "" {
		return
	}
	l.file.Imports = append(l.file.Imports, imp)
}

// lowerImportClause extracts default, namespace and named imports.
func (l *lowerer) lowerImportClause(n *sitter.Node, imp *Import) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case tsNodeIdentifier:
			imp.Default = l.text(child)
		case tsNodeNamespaceImport:
			for j := 0; j < int(child.ChildCount()); j++ {
				if gc := child.Child(j); gc.Type() == tsNodeIdentifier {
					imp.Namespace = l.text(gc)
				}
			}
		case tsNodeNamedImports:
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				if gc.Type() != tsNodeImportSpecifier {
					continue
				}
				var idents []string
				for k := 0; k < int(gc.ChildCount()); k++ {
					ggc := gc.Child(k)
					if ggc.Type() == tsNodeIdentifier || ggc.Type() == tsNodeTypeIdentifier {
						idents = append(idents, l.text(ggc))
					}
				}
				switch len(idents) {
				case 1:
					imp.Names[idents[0]] = idents[0]
				case 2:
					imp.Names[idents[1]] = idents[0]
				}
			}
		}
	}
}

// precedingDoc finds the JSDoc comment attached to a declaration or
// member, skipping decorators and plain comments in between.
func (l *lowerer) precedingDoc(n *sitter.Node) *DocComment {
	if n == nil {
		return nil
	}
	if doc := l.docBefore(n); doc != nil {
		return doc
	}
	// The comment of an exported declaration precedes the export statement.
	parent := n.Parent()
	if parent != nil && (parent.Type() == tsNodeExportStatement || parent.Type() == tsNodeAmbient) {
		if doc := l.docBefore(parent); doc != nil {
			return doc
		}
		if grand := parent.Parent(); grand != nil && grand.Type() == tsNodeExportStatement {
			return l.docBefore(grand)
		}
	}
	return nil
}

func (l *lowerer) docBefore(n *sitter.Node) *DocComment {
	for prev := n.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		switch prev.Type() {
		case tsNodeDecorator:
			continue
		case tsNodeComment:
			raw := l.text(prev)
			if strings.HasPrefix(raw, "/**") {
				doc := ParseDocComment(raw)
				doc.Location = l.location(prev)
				return doc
			}
			continue
		}
		return nil
	}
	return nil
}

// lowerClass lowers a class or abstract class declaration.
func (l *lowerer) lowerClass(n *sitter.Node, exported bool, decorators []Decorator) *Node {
	node := &Node{
		Kind:       NodeClass,
		Text:       l.text(n),
		Location:   l.location(n),
		Exported:   exported,
		Decorators: decorators,
		Doc:        l.precedingDoc(n),
	}
	if n.Type() == tsNodeAbstractClassDeclaration {
		node.Modifiers |= ModAbstract
	}

	var body *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case tsNodeDecorator:
			node.Decorators = append(node.Decorators, l.lowerDecorator(child))
		case "abstract":
			node.Modifiers |= ModAbstract
		case tsNodeTypeIdentifier, tsNodeIdentifier:
			if node.Name == "" {
				node.Name = l.text(child)
			}
		case tsNodeTypeParameters:
			node.TypeParams = l.lowerTypeParameters(child)
		case tsNodeClassHeritage:
			node.Heritage = l.lowerClassHeritage(child)
		case tsNodeClassBody:
			body = child
		}
	}

	if body != nil {
		node.Members = l.lowerClassBody(body, node.Name)
	}
	return node
}

// lowerClassHeritage lowers extends and implements clauses of a class.
func (l *lowerer) lowerClassHeritage(n *sitter.Node) []Heritage {
	var out []Heritage
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case tsNodeExtendsClause:
			var cur *Node
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case tsNodeIdentifier, tsNodeTypeIdentifier, tsNodeMemberExpression, tsNodeNestedIdentifier:
					cur = l.referenceFromName(gc)
					out = append(out, Heritage{Clause: HeritageExtends, Type: cur})
				case tsNodeGenericType, tsNodeNestedTypeIdentifier:
					cur = l.lowerType(gc)
					out = append(out, Heritage{Clause: HeritageExtends, Type: cur})
				case tsNodeTypeArguments:
					if cur != nil {
						cur.TypeArgs = l.lowerTypeArguments(gc)
						cur.Text = cur.Text + l.text(gc)
					}
				}
			}
		case tsNodeImplementsClause:
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				if !gc.IsNamed() || gc.Type() == tsNodeComment {
					continue
				}
				if t := l.lowerType(gc); t.Kind == NodeTypeReference {
					out = append(out, Heritage{Clause: HeritageImplements, Type: t})
				}
			}
		}
	}
	return out
}

// referenceFromName builds a type reference from an expression name such
// as `Base` or `ns.Base`.
func (l *lowerer) referenceFromName(n *sitter.Node) *Node {
	text := l.text(n)
	ref := &Node{Kind: NodeTypeReference, Name: text, Text: text, Location: l.location(n)}
	if dot := strings.LastIndex(text, "."); dot >= 0 {
		ref.Qualifier = text[:dot]
		ref.Name = text[dot+1:]
	}
	return ref
}

// lowerClassBody lowers methods and fields. Decorators preceding a method
// are siblings in the class body and attach to the next member.
func (l *lowerer) lowerClassBody(body *sitter.Node, owner string) []*Node {
	var members []*Node
	var pending []Decorator

	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case tsNodeDecorator:
			pending = append(pending, l.lowerDecorator(child))
			continue
		case tsNodeComment:
			continue
		case tsNodeMethodDefinition, tsNodeAbstractMethodSignature, tsNodeMethodSignature:
			if m := l.lowerMethod(child, owner, pending); m != nil {
				members = append(members, m)
			}
		case tsNodePublicFieldDefinition:
			if f := l.lowerField(child, owner, pending); f != nil {
				members = append(members, f)
			}
		}
		pending = nil
	}
	return members
}

// applyModifier records a modifier token. Returns false if the node is not
// a modifier.
func (l *lowerer) applyModifier(node *Node, child *sitter.Node) bool {
	switch child.Type() {
	case tsNodeAccessibilityModifier:
		switch strings.TrimSpace(l.text(child)) {
		case "private":
			node.Modifiers |= ModPrivate
		case "protected":
			node.Modifiers |= ModProtected
		case "public":
			node.Modifiers |= ModPublic
		}
	case "static":
		node.Modifiers |= ModStatic
	case "abstract":
		node.Modifiers |= ModAbstract
	case "readonly":
		node.Modifiers |= ModReadonly
	case "async":
		node.Modifiers |= ModAsync
	case "declare":
		node.Modifiers |= ModDeclare
	case "override_modifier", "override":
	default:
		return false
	}
	return true
}

// memberName extracts a property name from identifier-like nodes.
func (l *lowerer) memberName(node *Node, child *sitter.Node) bool {
	switch child.Type() {
	case tsNodePropertyIdentifier, tsNodeIdentifier:
		node.Name = l.text(child)
	case tsNodePrivatePropertyIdent:
		node.Name = strings.TrimPrefix(l.text(child), "#")
		node.Modifiers |= ModPrivate
	case tsNodeString:
		node.Name = unquote(l.text(child))
	case tsNodeNumber, tsNodeComputedPropertyName:
		node.Name = l.text(child)
	default:
		return false
	}
	return true
}

// lowerMethod lowers method definitions and signatures. Getters become
// properties; setters are dropped.
func (l *lowerer) lowerMethod(n *sitter.Node, owner string, decorators []Decorator) *Node {
	node := &Node{
		Kind:       NodeMethod,
		Text:       l.text(n),
		Location:   l.location(n),
		Owner:      owner,
		Decorators: decorators,
		Doc:        l.precedingDoc(n),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if l.applyModifier(node, child) {
			continue
		}
		switch child.Type() {
		case tsNodeDecorator:
			node.Decorators = append(node.Decorators, l.lowerDecorator(child))
		case "get":
			node.Modifiers |= ModGetter
		case "set":
			node.Modifiers |= ModSetter
		case "?":
			node.Optional = true
		case tsNodeTypeParameters:
			node.TypeParams = l.lowerTypeParameters(child)
		case tsNodeFormalParameters:
			node.Params = l.lowerParameters(child)
		case tsNodeTypeAnnotation:
			node.Type = l.lowerTypeAnnotation(child)
		case tsNodeStatementBlock:
			node.HasBody = true
		default:
			if node.Name == "" {
				l.memberName(node, child)
			}
		}
	}

	if node.Name == "" || node.HasModifier(ModSetter) {
		return nil
	}
	if node.HasModifier(ModGetter) {
		node.Kind = NodeProperty
		node.Params = nil
	}
	return node
}

// lowerField lowers a class field definition.
func (l *lowerer) lowerField(n *sitter.Node, owner string, decorators []Decorator) *Node {
	node := &Node{
		Kind:       NodeProperty,
		Text:       l.text(n),
		Location:   l.location(n),
		Owner:      owner,
		Decorators: decorators,
		Doc:        l.precedingDoc(n),
	}

	sawEq := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if sawEq {
			if child.IsNamed() && child.Type() != tsNodeComment && node.Initializer == nil {
				node.Initializer = l.lowerExpr(child)
			}
			continue
		}
		if l.applyModifier(node, child) {
			continue
		}
		switch child.Type() {
		case tsNodeDecorator:
			node.Decorators = append(node.Decorators, l.lowerDecorator(child))
		case "?":
			node.Optional = true
		case tsNodeTypeAnnotation:
			node.Type = l.lowerTypeAnnotation(child)
		case "=":
			sawEq = true
		default:
			if node.Name == "" {
				l.memberName(node, child)
			}
		}
	}

	if node.Name == "" {
		return nil
	}
	return node
}

// lowerInterface lowers an interface declaration.
func (l *lowerer) lowerInterface(n *sitter.Node, exported bool) *Node {
	node := &Node{
		Kind:     NodeInterface,
		Text:     l.text(n),
		Location: l.location(n),
		Exported: exported,
		Doc:      l.precedingDoc(n),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case tsNodeTypeIdentifier:
			if node.Name == "" {
				node.Name = l.text(child)
			}
		case tsNodeTypeParameters:
			node.TypeParams = l.lowerTypeParameters(child)
		case tsNodeExtendsTypeClause:
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				if !gc.IsNamed() || gc.Type() == tsNodeComment {
					continue
				}
				if t := l.lowerType(gc); t.Kind == NodeTypeReference {
					node.Heritage = append(node.Heritage, Heritage{Clause: HeritageExtends, Type: t})
				}
			}
		case tsNodeInterfaceBody, tsNodeObjectType:
			node.Members = l.lowerObjectMembers(child, node.Name)
		}
	}
	return node
}

// lowerObjectMembers lowers the members of an interface body or object type.
func (l *lowerer) lowerObjectMembers(body *sitter.Node, owner string) []*Node {
	var members []*Node
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case tsNodePropertySignature:
			if p := l.lowerPropertySignature(child, owner); p != nil {
				members = append(members, p)
			}
		case tsNodeMethodSignature:
			if m := l.lowerMethod(child, owner, nil); m != nil {
				members = append(members, m)
			}
		}
	}
	return members
}

// lowerPropertySignature lowers `name?: Type` inside an interface or type literal.
func (l *lowerer) lowerPropertySignature(n *sitter.Node, owner string) *Node {
	node := &Node{
		Kind:     NodeProperty,
		Text:     l.text(n),
		Location: l.location(n),
		Owner:    owner,
		Doc:      l.precedingDoc(n),
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if l.applyModifier(node, child) {
			continue
		}
		switch child.Type() {
		case "?":
			node.Optional = true
		case tsNodeTypeAnnotation:
			node.Type = l.lowerTypeAnnotation(child)
		default:
			if node.Name == "" {
				l.memberName(node, child)
			}
		}
	}
	if node.Name == "" {
		return nil
	}
	return node
}

// lowerTypeAlias lowers `type X<T> = ...`.
func (l *lowerer) lowerTypeAlias(n *sitter.Node, exported bool) *Node {
	node := &Node{
		Kind:     NodeTypeAlias,
		Text:     l.text(n),
		Location: l.location(n),
		Exported: exported,
		Doc:      l.precedingDoc(n),
	}

	sawEq := false
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch {
		case child.Type() == "=":
			sawEq = true
		case sawEq:
			if child.IsNamed() && child.Type() != tsNodeComment && node.Type == nil {
				node.Type = l.lowerType(child)
			}
		case child.Type() == tsNodeTypeIdentifier:
			if node.Name == "" {
				node.Name = l.text(child)
			}
		case child.Type() == tsNodeTypeParameters:
			node.TypeParams = l.lowerTypeParameters(child)
		}
	}
	return node
}

// lowerEnum lowers an enum declaration and its members.
func (l *lowerer) lowerEnum(n *sitter.Node, exported bool) *Node {
	node := &Node{
		Kind:     NodeEnum,
		Text:     l.text(n),
		Location: l.location(n),
		Exported: exported,
		Doc:      l.precedingDoc(n),
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case tsNodeIdentifier:
			if node.Name == "" {
				node.Name = l.text(child)
			}
		case "const":
			node.Modifiers |= ModReadonly
		case tsNodeEnumBody:
			node.Members = l.lowerEnumBody(child, node.Name)
		}
	}
	return node
}

// lowerEnumBody lowers enum members. Members without initializer get
// Init == nil and are numbered during constant folding.
func (l *lowerer) lowerEnumBody(body *sitter.Node, owner string) []*Node {
	var members []*Node
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case tsNodePropertyIdentifier, tsNodeIdentifier, tsNodeString:
			name := l.text(child)
			if child.Type() == tsNodeString {
				name = unquote(name)
			}
			members = append(members, &Node{
				Kind:     NodeEnumMember,
				Name:     name,
				Text:     l.text(child),
				Location: l.location(child),
				Owner:    owner,
				Doc:      l.precedingDoc(child),
			})
		case tsNodeEnumAssignment:
			member := &Node{
				Kind:     NodeEnumMember,
				Text:     l.text(child),
				Location: l.location(child),
				Owner:    owner,
				Doc:      l.precedingDoc(child),
			}
			sawEq := false
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch {
				case gc.Type() == "=":
					sawEq = true
				case sawEq:
					if gc.IsNamed() && gc.Type() != tsNodeComment && member.Init == nil {
						member.Init = l.lowerExpr(gc)
					}
				case gc.Type() == tsNodePropertyIdentifier || gc.Type() == tsNodeIdentifier:
					member.Name = l.text(gc)
				case gc.Type() == tsNodeString:
					member.Name = unquote(l.text(gc))
				}
			}
			if member.Name != "" {
				members = append(members, member)
			}
		}
	}
	return members
}

// lowerVariables lowers annotated const/let declarators.
func (l *lowerer) lowerVariables(n *sitter.Node, exported bool) []*Node {
	doc := l.precedingDoc(n)
	var out []*Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() != tsNodeVariableDeclarator {
			continue
		}
		node := &Node{
			Kind:     NodeVariable,
			Text:     l.text(child),
			Location: l.location(child),
			Exported: exported,
			Doc:      doc,
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			gc := child.Child(j)
			switch gc.Type() {
			case tsNodeIdentifier:
				if node.Name == "" {
					node.Name = l.text(gc)
				}
			case tsNodeTypeAnnotation:
				node.Type = l.lowerTypeAnnotation(gc)
			}
		}
		if node.Name != "" && node.Type != nil {
			out = append(out, node)
		}
	}
	return out
}

// lowerParameters lowers formal parameters, dropping `this` parameters.
func (l *lowerer) lowerParameters(n *sitter.Node) []*Node {
	var params []*Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() != tsNodeRequiredParameter && child.Type() != tsNodeOptionalParameter {
			continue
		}
		param := &Node{
			Kind:     NodeParameter,
			Text:     l.text(child),
			Location: l.location(child),
			Optional: child.Type() == tsNodeOptionalParameter,
		}
		isThis := false
		sawEq := false
		for j := 0; j < int(child.ChildCount()); j++ {
			gc := child.Child(j)
			if sawEq {
				continue
			}
			if l.applyModifier(param, gc) {
				continue
			}
			switch gc.Type() {
			case tsNodeIdentifier:
				if param.Name == "" {
					param.Name = l.text(gc)
				}
			case "this":
				isThis = true
			case "object_pattern", "array_pattern", "rest_pattern":
				if param.Name == "" {
					param.Name = "args"
				}
			case "?":
				param.Optional = true
			case tsNodeTypeAnnotation:
				param.Type = l.lowerTypeAnnotation(gc)
			case "=":
				sawEq = true
				param.Optional = true
			}
		}
		if isThis {
			continue
		}
		params = append(params, param)
	}
	return params
}

// lowerTypeParameters lowers `<T extends X = Y, U>`.
func (l *lowerer) lowerTypeParameters(n *sitter.Node) []TypeParam {
	var params []TypeParam
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() != tsNodeTypeParameter {
			continue
		}
		var tp TypeParam
		for j := 0; j < int(child.ChildCount()); j++ {
			gc := child.Child(j)
			switch gc.Type() {
			case tsNodeTypeIdentifier:
				if tp.Name == "" {
					tp.Name = l.text(gc)
				}
			case tsNodeConstraint:
				tp.Constraint = l.firstNamedType(gc)
			case tsNodeDefaultType:
				tp.Default = l.firstNamedType(gc)
			}
		}
		if tp.Name != "" {
			params = append(params, tp)
		}
	}
	return params
}

// firstNamedType lowers the first named, non-comment child as a type.
func (l *lowerer) firstNamedType(n *sitter.Node) *Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.IsNamed() && child.Type() != tsNodeComment {
			return l.lowerType(child)
		}
	}
	return nil
}

// lowerTypeAnnotation lowers `: Type`.
func (l *lowerer) lowerTypeAnnotation(n *sitter.Node) *Node {
	return l.firstNamedType(n)
}

// lowerTypeArguments lowers `<A, B>`.
func (l *lowerer) lowerTypeArguments(n *sitter.Node) []*Node {
	var args []*Node
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.IsNamed() && child.Type() != tsNodeComment {
			args = append(args, l.lowerType(child))
		}
	}
	return args
}

// lowerType lowers a type expression into one of the type NodeKinds.
func (l *lowerer) lowerType(n *sitter.Node) *Node {
	text := l.text(n)
	node := &Node{Text: text, Location: l.location(n)}

	switch n.Type() {
	case tsNodeTypeAnnotation, tsNodeParenthesizedType, tsNodeReadonlyType:
		if inner := l.firstNamedType(n); inner != nil {
			return inner
		}
		node.Kind = NodeUnsupported

	case tsNodePredefinedType:
		switch {
		case primitiveKeywords[text]:
			node.Kind = NodePrimitive
			node.Name = text
		case text == "undefined" || text == "null" || text == "void":
			node.Kind = NodeLiteral
			node.Name = text
		default:
			node.Kind = NodeUnsupported
			node.Name = text
		}

	case tsNodeTypeIdentifier, tsNodeIdentifier:
		node.Kind = NodeTypeReference
		node.Name = text

	case tsNodeNestedTypeIdentifier, tsNodeNestedIdentifier, tsNodeMemberExpression:
		return l.referenceFromName(n)

	case tsNodeGenericType:
		node.Kind = NodeTypeReference
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case tsNodeTypeIdentifier, tsNodeIdentifier:
				node.Name = l.text(child)
			case tsNodeNestedTypeIdentifier, tsNodeNestedIdentifier:
				ref := l.referenceFromName(child)
				node.Name, node.Qualifier = ref.Name, ref.Qualifier
			case tsNodeTypeArguments:
				node.TypeArgs = l.lowerTypeArguments(child)
			}
		}

	case tsNodeArrayType:
		node.Kind = NodeArray
		node.Type = l.firstNamedType(n)

	case tsNodeUnionType:
		node.Kind = NodeUnion
		l.flattenUnion(n, node)

	case tsNodeObjectType:
		node.Kind = NodeTypeLiteral
		node.Members = l.lowerObjectMembers(n, "")

	case tsNodeTupleType:
		node.Kind = NodeTuple
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.IsNamed() && child.Type() != tsNodeComment {
				node.Types = append(node.Types, l.lowerType(child))
			}
		}

	case tsNodeLiteralType:
		node.Kind = NodeLiteral
		node.Name = text

	case "undefined", "null", "true", "false", tsNodeString, tsNodeNumber:
		node.Kind = NodeLiteral
		node.Name = text

	case tsNodeOptionalType, tsNodeRestType:
		node.Kind = NodeUnsupported

	default:
		node.Kind = NodeUnsupported
	}
	return node
}

// flattenUnion collects the members of nested binary union nodes.
func (l *lowerer) flattenUnion(n *sitter.Node, into *Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() || child.Type() == tsNodeComment {
			continue
		}
		if child.Type() == tsNodeUnionType {
			l.flattenUnion(child, into)
			continue
		}
		member := l.lowerType(child)
		if member.Kind == NodeUnion {
			into.Types = append(into.Types, member.Types...)
			continue
		}
		into.Types = append(into.Types, member)
	}
}

// lowerDecorator extracts the decorator name and raw argument texts.
//
// Description:
//
//	For `@tsModel` returns Name "tsModel" and no args. For
//	`@assert({min: 1})` returns Name "assert" and Args ["{min: 1}"].
//	Qualified callees (`@m.assert(...)`) use their last segment.
func (l *lowerer) lowerDecorator(n *sitter.Node) Decorator {
	dec := Decorator{Text: l.text(n), Location: l.location(n)}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case tsNodeIdentifier, tsNodeMemberExpression:
			dec.Name = lastSegment(l.text(child))
			return dec
		case tsNodeCallExpression:
			for j := 0; j < int(child.ChildCount()); j++ {
				gc := child.Child(j)
				switch gc.Type() {
				case tsNodeIdentifier, tsNodeMemberExpression:
					if dec.Name == "" {
						dec.Name = lastSegment(l.text(gc))
					}
				case tsNodeArguments:
					for k := 0; k < int(gc.ChildCount()); k++ {
						arg := gc.Child(k)
						if arg.IsNamed() && arg.Type() != tsNodeComment {
							dec.Args = append(dec.Args, l.text(arg))
						}
					}
				}
			}
			return dec
		}
	}
	return dec
}

// lowerExpr lowers a constant expression.
func (l *lowerer) lowerExpr(n *sitter.Node) *Expr {
	text := l.text(n)
	e := &Expr{Kind: ExprOther, Text: text}

	switch n.Type() {
	case tsNodeNumber:
		if v, err := parseNumber(text); err == nil {
			e.Kind = ExprNumber
			e.Number = v
		}
	case tsNodeString:
		e.Kind = ExprString
		e.Str = unquote(text)
	case tsNodeTemplateString:
		if !hasChildOfType(n, tsNodeTemplateSubstitution) {
			e.Kind = ExprString
			e.Str = strings.TrimSuffix(strings.TrimPrefix(text, "`"), "`")
		}
	case "true", "false":
		e.Kind = ExprBool
		e.Bool = text == "true"
	case "null", "undefined":
		e.Kind = ExprNull
	case tsNodeIdentifier:
		e.Kind = ExprIdent
		e.Name = text
	case tsNodeMemberExpression:
		parts := strings.Split(text, ".")
		if len(parts) == 2 {
			e.Kind = ExprMember
			e.Object = strings.TrimSpace(parts[0])
			e.Name = strings.TrimSpace(parts[1])
		}
	case tsNodeSubscriptExpression:
		var object, index string
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case tsNodeIdentifier:
				object = l.text(child)
			case tsNodeString:
				index = unquote(l.text(child))
			}
		}
		if object != "" && index != "" {
			e.Kind = ExprMember
			e.Object = object
			e.Name = index
		}
	case tsNodeParenthesizedExpresion, tsNodeAsExpression, tsNodeSatisfiesExpression:
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.IsNamed() && child.Type() != tsNodeComment {
				inner := l.lowerExpr(child)
				inner.Text = text
				return inner
			}
		}
	case tsNodeUnaryExpression:
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if !child.IsNamed() && e.Op == "" {
				e.Op = l.text(child)
				continue
			}
			if child.IsNamed() && child.Type() != tsNodeComment {
				e.Left = l.lowerExpr(child)
			}
		}
		if e.Left != nil {
			e.Kind = ExprUnary
		}
	case tsNodeBinaryExpression:
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch {
			case child.Type() == tsNodeComment:
			case child.IsNamed() && e.Left == nil:
				e.Left = l.lowerExpr(child)
			case !child.IsNamed() && e.Left != nil && e.Op == "":
				e.Op = l.text(child)
			case child.IsNamed():
				e.Right = l.lowerExpr(child)
			}
		}
		if e.Left != nil && e.Right != nil && e.Op != "" {
			e.Kind = ExprBinary
		}
	}
	return e
}

func hasChildOfType(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

// parseNumber parses a JavaScript numeric literal.
func parseNumber(text string) (float64, error) {
	s := strings.ReplaceAll(text, "_", "")
	s = strings.TrimSuffix(s, "n")
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		v, err := strconv.ParseInt(lower, 0, 64)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	}
	return strconv.ParseFloat(s, 64)
}

// unquote strips JavaScript string quotes and resolves escapes.
func unquote(raw string) string {
	if len(raw) < 2 {
		return raw
	}
	q := raw[0]
	if (q != '"' && q != '\'' && q != '`') || raw[len(raw)-1] != q {
		return raw
	}
	body := raw[1 : len(raw)-1]
	switch q {
	case '"':
		if s, err := strconv.Unquote(raw); err == nil {
			return s
		}
	case '\'':
		converted := strings.ReplaceAll(body, `\'`, `'`)
		converted = strings.ReplaceAll(converted, `"`, `\"`)
		if s, err := strconv.Unquote(`"` + converted + `"`); err == nil {
			return s
		}
	}
	return body
}

func lastSegment(s string) string {
	if dot := strings.LastIndex(s, "."); dot >= 0 {
		return s[dot+1:]
	}
	return s
}
