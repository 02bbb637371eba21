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

// Tree-sitter TypeScript node types used by the lowering pass.
const (
	// Program structure
	tsNodeImportStatement = "import_statement"
	tsNodeImportClause    = "import_clause"
	tsNodeNamespaceImport = "namespace_import"
	tsNodeNamedImports    = "named_imports"
	tsNodeImportSpecifier = "import_specifier"
	tsNodeExportStatement = "export_statement"
	tsNodeExportClause    = "export_clause"
	tsNodeExportSpecifier = "export_specifier"
	tsNodeAmbient         = "ambient_declaration"
	tsNodeComment         = "comment"
	tsNodeDecorator       = "decorator"

	// Declarations
	tsNodeClassDeclaration         = "class_declaration"
	tsNodeAbstractClassDeclaration = "abstract_class_declaration"
	tsNodeInterfaceDeclaration     = "interface_declaration"
	tsNodeTypeAliasDeclaration     = "type_alias_declaration"
	tsNodeEnumDeclaration          = "enum_declaration"
	tsNodeLexicalDeclaration       = "lexical_declaration"
	tsNodeVariableDeclaration      = "variable_declaration"
	tsNodeVariableDeclarator       = "variable_declarator"

	// Class structure
	tsNodeClassBody               = "class_body"
	tsNodeClassHeritage           = "class_heritage"
	tsNodeExtendsClause           = "extends_clause"
	tsNodeImplementsClause        = "implements_clause"
	tsNodeMethodDefinition        = "method_definition"
	tsNodeAbstractMethodSignature = "abstract_method_signature"
	tsNodePublicFieldDefinition   = "public_field_definition"
	tsNodeAccessibilityModifier   = "accessibility_modifier"
	tsNodeStatementBlock          = "statement_block"

	// Interface structure
	tsNodeInterfaceBody     = "interface_body"
	tsNodeObjectType        = "object_type"
	tsNodeExtendsTypeClause = "extends_type_clause"
	tsNodePropertySignature = "property_signature"
	tsNodeMethodSignature   = "method_signature"

	// Enum structure
	tsNodeEnumBody       = "enum_body"
	tsNodeEnumAssignment = "enum_assignment"

	// Types
	tsNodeTypeParameters         = "type_parameters"
	tsNodeTypeParameter          = "type_parameter"
	tsNodeConstraint             = "constraint"
	tsNodeDefaultType            = "default_type"
	tsNodeTypeAnnotation         = "type_annotation"
	tsNodeTypeArguments          = "type_arguments"
	tsNodeTypeIdentifier         = "type_identifier"
	tsNodeNestedTypeIdentifier   = "nested_type_identifier"
	tsNodeGenericType            = "generic_type"
	tsNodeArrayType              = "array_type"
	tsNodeReadonlyType           = "readonly_type"
	tsNodeUnionType              = "union_type"
	tsNodeParenthesizedType      = "parenthesized_type"
	tsNodeTupleType              = "tuple_type"
	tsNodeLiteralType            = "literal_type"
	tsNodePredefinedType         = "predefined_type"
	tsNodeOptionalType           = "optional_type"
	tsNodeRestType               = "rest_type"
	tsNodeFormalParameters       = "formal_parameters"
	tsNodeRequiredParameter      = "required_parameter"
	tsNodeOptionalParameter      = "optional_parameter"
	tsNodePropertyIdentifier     = "property_identifier"
	tsNodePrivatePropertyIdent   = "private_property_identifier"
	tsNodeComputedPropertyName   = "computed_property_name"
	tsNodeIdentifier             = "identifier"
	tsNodeNestedIdentifier       = "nested_identifier"
	tsNodeMemberExpression       = "member_expression"
	tsNodeSubscriptExpression    = "subscript_expression"
	tsNodeCallExpression         = "call_expression"
	tsNodeArguments              = "arguments"
	tsNodeString                 = "string"
	tsNodeStringFragment         = "string_fragment"
	tsNodeTemplateString         = "template_string"
	tsNodeTemplateSubstitution   = "template_substitution"
	tsNodeNumber                 = "number"
	tsNodeUnaryExpression        = "unary_expression"
	tsNodeBinaryExpression       = "binary_expression"
	tsNodeParenthesizedExpresion = "parenthesized_expression"
	tsNodeAsExpression           = "as_expression"
	tsNodeSatisfiesExpression    = "satisfies_expression"
)

// primitiveKeywords are the predefined types lowered to NodePrimitive.
var primitiveKeywords = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"symbol":  true,
	"bigint":  true,
}
