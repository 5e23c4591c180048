// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package dsl defines the AST types for the gatehouse schema rule
// language and provides a parser built with participle. A schema is a
// sequence of model declarations; each model carries field declarations
// and @@allow/@@deny rules whose conditions are boolean expressions
// over the current actor (auth()) and the target record (this).
package dsl

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// schemaLexer defines the token types for the schema language.
// It handles multi-character operators (==, !=, <=, >=, &&, ||) that
// the default text/scanner lexer would split into individual characters.
var schemaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "comment", Pattern: `//[^\n]*`},
	{Name: "String", Pattern: `"[^"]*"|'[^']*'`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
	{Name: "ModelAttr", Pattern: `@@[a-zA-Z_]\w*`},
	{Name: "FieldAttr", Pattern: `@[a-zA-Z_]\w*`},
	{Name: "OpEq", Pattern: `==`},
	{Name: "OpNe", Pattern: `!=`},
	{Name: "OpLe", Pattern: `<=`},
	{Name: "OpGe", Pattern: `>=`},
	{Name: "OpAnd", Pattern: `&&`},
	{Name: "OpOr", Pattern: `\|\|`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*`},
	{Name: "Punct", Pattern: `[(){}\[\],.?!<>]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// QuotedString is a string literal with its surrounding quotes removed.
// The lexer accepts both double and single quotes, so strconv.Unquote
// cannot be used directly.
type QuotedString string

// Capture strips the quote characters from the matched token.
func (q *QuotedString) Capture(values []string) error {
	v := values[0]
	if len(v) >= 2 {
		v = v[1 : len(v)-1]
	}
	*q = QuotedString(v)
	return nil
}

// Schema is the root node: a sequence of model declarations.
type Schema struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Models []*Model       `parser:"@@*" json:"models"`
}

// Model represents a single entity model declaration.
//
// Grammar: "model" name "{" (field | rule)* "}"
type Model struct {
	Pos      lexer.Position  `parser:"" json:"-"`
	Name     string          `parser:"'model' @Ident '{'" json:"name"`
	Elements []*ModelElement `parser:"@@* '}'" json:"elements"`
}

// ModelElement is either an access rule or a field declaration.
type ModelElement struct {
	Rule  *RuleDecl  `parser:"  @@" json:"rule,omitempty"`
	Field *FieldDecl `parser:"| @@" json:"field,omitempty"`
}

// FieldDecl declares a field: name, type, optional list/optional
// markers, and field attributes such as @id.
type FieldDecl struct {
	Pos      lexer.Position `parser:"" json:"-"`
	Name     string         `parser:"@Ident" json:"name"`
	Type     string         `parser:"@Ident" json:"type"`
	List     bool           `parser:"@('[' ']')?" json:"list,omitempty"`
	Optional bool           `parser:"@'?'?" json:"optional,omitempty"`
	Attrs    []*FieldAttr   `parser:"@@*" json:"attrs,omitempty"`
}

// FieldAttr is a field-level attribute such as @id or @default(...).
// Attribute arguments are kept as raw token values; the compiler only
// inspects the attribute name.
type FieldAttr struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Name string         `parser:"@FieldAttr" json:"name"`
	Args []string       `parser:"('(' (@~')')* ')')?" json:"args,omitempty"`
}

// IsID reports whether the attribute marks the model's identity field.
func (a *FieldAttr) IsID() bool {
	return a.Name == "@id"
}

// RuleDecl is an @@allow or @@deny declaration.
//
// Grammar: ("@@allow" | "@@deny") "(" operations "," condition ")"
type RuleDecl struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Attr string         `parser:"@ModelAttr" json:"attr"`
	Ops  QuotedString   `parser:"'(' @String ','" json:"ops"`
	Cond *Expr          `parser:"@@ ')'" json:"cond"`
}

// Kind returns the rule kind name without the @@ prefix.
func (r *RuleDecl) Kind() string {
	return strings.TrimPrefix(r.Attr, "@@")
}

// Expr is a disjunction of conjunctions (|| binds loosest).
type Expr struct {
	Pos lexer.Position `parser:"" json:"-"`
	Or  []*AndExpr     `parser:"@@ ('||' @@)*" json:"or"`
}

// AndExpr is a conjunction of unary expressions.
type AndExpr struct {
	Pos lexer.Position `parser:"" json:"-"`
	And []*UnaryExpr   `parser:"@@ ('&&' @@)*" json:"and"`
}

// UnaryExpr is an optional negation in front of a comparison.
type UnaryExpr struct {
	Pos        lexer.Position `parser:"" json:"-"`
	Not        *UnaryExpr     `parser:"  '!' @@" json:"not,omitempty"`
	Comparison *Comparison    `parser:"| @@" json:"comparison,omitempty"`
}

// Comparison is a binary comparison, or a bare operand when Op is
// empty (a boolean-valued field reference or literal).
type Comparison struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Left  *Operand       `parser:"@@" json:"left"`
	Op    string         `parser:"( @('==' | '!=' | '<=' | '>=' | '<' | '>' | 'in' | 'like')" json:"op,omitempty"`
	Right *Operand       `parser:"  @@ )?" json:"right,omitempty"`
}

// Operand is a single value source inside a comparison.
type Operand struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Auth  *AuthRef       `parser:"  @@" json:"auth,omitempty"`
	This  *ThisRef       `parser:"| @@" json:"this,omitempty"`
	Lit   *Literal       `parser:"| @@" json:"lit,omitempty"`
	List  *ListLit       `parser:"| @@" json:"list,omitempty"`
	Paren *Expr          `parser:"| '(' @@ ')'" json:"paren,omitempty"`
	Field *FieldRef      `parser:"| @@" json:"field,omitempty"`
}

// AuthRef is a reference to the current actor: auth() with an optional
// attribute path, e.g. auth().role.
type AuthRef struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Path []string       `parser:"'auth' '(' ')' ('.' @Ident)*" json:"path,omitempty"`
}

// ThisRef is a reference to the target record: this with an optional
// field path, e.g. this.ownerId.
type ThisRef struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Path []string       `parser:"'this' ('.' @Ident)*" json:"path,omitempty"`
}

// FieldRef is a bare field reference on the target record, e.g.
// published or author.id.
type FieldRef struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Path []string       `parser:"@Ident ('.' @Ident)*" json:"path"`
}

// Literal is a scalar literal: string, number, boolean, or null.
type Literal struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Str  *QuotedString  `parser:"  @String" json:"str,omitempty"`
	Num  *float64       `parser:"| @Number" json:"num,omitempty"`
	Bool *string        `parser:"| @('true' | 'false')" json:"bool,omitempty"`
	Null bool           `parser:"| @'null'" json:"null,omitempty"`
}

// IsBoolTrue reports whether the literal is the boolean true.
func (l *Literal) IsBoolTrue() bool {
	return l.Bool != nil && *l.Bool == "true"
}

// IsBoolFalse reports whether the literal is the boolean false.
func (l *Literal) IsBoolFalse() bool {
	return l.Bool != nil && *l.Bool == "false"
}

// IsNull reports whether the literal is null.
func (l *Literal) IsNull() bool {
	return l.Null
}

// ListLit is a bracketed list of scalar literals, used on the right
// side of the in operator.
type ListLit struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Values []*Literal     `parser:"'[' (@@ (',' @@)*)? ']'" json:"values"`
}

// GrammarVersion is the current version of the schema grammar, recorded
// in stored compiled forms for forward-compatible evolution.
const GrammarVersion = 1

// NewParser constructs a participle parser for the Schema grammar.
func NewParser() (*participle.Parser[Schema], error) {
	return participle.Build[Schema](
		participle.Lexer(schemaLexer),
		participle.UseLookahead(4),
	)
}
