// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package dsl

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// MaxNestingDepth is the maximum allowed nesting depth for conditions.
const MaxNestingDepth = 32

// parser is the singleton participle parser instance.
var parser *participle.Parser[Schema]

func init() {
	var err error
	parser, err = NewParser()
	if err != nil {
		panic(fmt.Sprintf("failed to build schema parser: %v", err))
	}
}

// Parse parses schema source into an AST.
// Returns a descriptive error with position info on failure.
func Parse(source string) (*Schema, error) {
	schema, err := parser.ParseString("", source)
	if err != nil {
		return nil, oops.Code(types.CodeSchemaParse).Wrapf(err, "parsing schema")
	}

	if err := validateSchema(schema); err != nil {
		return nil, oops.Code(types.CodeSchemaParse).Wrap(err)
	}

	return schema, nil
}

// validateSchema performs post-parse validation checks.
func validateSchema(s *Schema) error {
	for _, model := range s.Models {
		for _, el := range model.Elements {
			if el.Rule == nil {
				continue
			}
			if err := validateRule(model.Name, el.Rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateRule checks the rule kind and condition nesting depth.
func validateRule(model string, r *RuleDecl) error {
	switch r.Kind() {
	case string(types.RuleAllow), string(types.RuleDeny):
	default:
		return fmt.Errorf("%s: model %s: unknown rule attribute %q", r.Pos, model, r.Attr)
	}
	if r.Cond == nil {
		return fmt.Errorf("%s: model %s: rule %s has no condition", r.Pos, model, r.Attr)
	}
	if err := validateExpr(r.Cond, 0); err != nil {
		return fmt.Errorf("model %s: rule %s: %w", model, r.Attr, err)
	}
	return nil
}

// validateExpr checks nesting depth across parenthesized groups.
func validateExpr(e *Expr, depth int) error {
	if depth > MaxNestingDepth {
		return fmt.Errorf("nesting depth exceeds maximum of %d", MaxNestingDepth)
	}
	for _, and := range e.Or {
		for _, unary := range and.And {
			if err := validateUnary(unary, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateUnary(u *UnaryExpr, depth int) error {
	if depth > MaxNestingDepth {
		return fmt.Errorf("nesting depth exceeds maximum of %d", MaxNestingDepth)
	}
	if u.Not != nil {
		return validateUnary(u.Not, depth+1)
	}
	return validateComparison(u.Comparison, depth)
}

func validateComparison(c *Comparison, depth int) error {
	if c == nil {
		return nil
	}
	if err := validateOperand(c.Left, depth); err != nil {
		return err
	}
	if c.Op == "" {
		return nil
	}
	if c.Right == nil {
		return fmt.Errorf("comparison %q has no right operand", c.Op)
	}
	if c.Op == "like" {
		if c.Right.Lit == nil || c.Right.Lit.Str == nil {
			return fmt.Errorf("like pattern must be a string literal")
		}
	}
	if c.Op == "in" {
		if c.Right.List == nil && c.Right.Field == nil && c.Right.This == nil {
			return fmt.Errorf("in operand must be a list literal or a list field")
		}
	}
	return validateOperand(c.Right, depth)
}

func validateOperand(o *Operand, depth int) error {
	if o != nil && o.Paren != nil {
		return validateExpr(o.Paren, depth+1)
	}
	return nil
}
