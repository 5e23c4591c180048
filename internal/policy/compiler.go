// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package policy provides the compiler that turns schema source into an
// immutable PolicySet, and the engine that evaluates access requests
// against it.
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy/dsl"
	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// Compiler parses and validates schema source.
type Compiler struct{}

// NewCompiler creates a Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// ValidationWarning is a non-blocking issue found during compilation.
type ValidationWarning struct {
	Model   string
	Message string
}

// Rule is the compiled form of a single @@allow/@@deny declaration.
type Rule struct {
	Name          string
	Kind          types.RuleKind
	Ops           types.OpSet
	DeclaredOrder int // source declaration sequence; diagnostics only
	Cond          *dsl.Expr

	globs map[string]glob.Glob
}

// ModelPolicy holds the compiled rules and field metadata for one
// entity model.
type ModelPolicy struct {
	Entity  string
	IDField string
	Fields  map[string]FieldInfo
	Rules   []Rule
}

// FieldInfo describes a declared model field.
type FieldInfo struct {
	Type     string
	List     bool
	Optional bool
	IsID     bool
}

// PolicySet is the complete, immutable collection of rules for all
// entity types, built once per schema version. It is safe for
// concurrent reads without locking.
type PolicySet struct {
	models     map[string]*ModelPolicy
	compiledAt time.Time
}

// Compile parses schema source, validates it, and returns an immutable
// PolicySet together with non-blocking warnings.
func (c *Compiler) Compile(source string) (*PolicySet, []ValidationWarning, error) {
	schema, err := dsl.Parse(source)
	if err != nil {
		return nil, nil, err
	}

	models := make(map[string]*ModelPolicy, len(schema.Models))
	var warnings []ValidationWarning

	for _, model := range schema.Models {
		if _, dup := models[model.Name]; dup {
			return nil, nil, oops.
				Code(types.CodeSchemaParse).
				With("model", model.Name).
				Errorf("duplicate model %q", model.Name)
		}

		mp, modelWarnings, err := compileModel(model)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, modelWarnings...)
		models[model.Name] = mp
	}

	return &PolicySet{
		models:     models,
		compiledAt: time.Now(),
	}, warnings, nil
}

// compileModel builds the compiled policy for a single model.
func compileModel(model *dsl.Model) (*ModelPolicy, []ValidationWarning, error) {
	mp := &ModelPolicy{
		Entity:  model.Name,
		IDField: "id",
		Fields:  make(map[string]FieldInfo),
	}

	for _, el := range model.Elements {
		if el.Field == nil {
			continue
		}
		f := el.Field
		info := FieldInfo{
			Type:     f.Type,
			List:     f.List,
			Optional: f.Optional,
		}
		for _, attr := range f.Attrs {
			if attr.IsID() {
				info.IsID = true
				mp.IDField = f.Name
			}
		}
		mp.Fields[f.Name] = info
	}

	var warnings []ValidationWarning
	order := 0
	for _, el := range model.Elements {
		if el.Rule == nil {
			continue
		}
		decl := el.Rule

		ops, err := types.ParseOpSet(string(decl.Ops))
		if err != nil {
			return nil, nil, oops.
				Code(types.CodeSchemaParse).
				With("model", model.Name).
				Wrapf(err, "%s: rule %s", decl.Pos, decl.Attr)
		}

		kind := types.RuleKind(decl.Kind())
		globs, err := precompileGlobs(decl.Cond)
		if err != nil {
			return nil, nil, oops.
				Code(types.CodeSchemaParse).
				With("model", model.Name).
				Wrapf(err, "%s: rule %s", decl.Pos, decl.Attr)
		}

		rule := Rule{
			Name:          fmt.Sprintf("%s#%s[%d]", model.Name, kind, order),
			Kind:          kind,
			Ops:           ops,
			DeclaredOrder: order,
			Cond:          decl.Cond,
			globs:         globs,
		}
		mp.Rules = append(mp.Rules, rule)
		order++

		warnings = append(warnings, checkFieldRefs(mp, rule)...)
	}

	return mp, warnings, nil
}

// checkFieldRefs warns about condition references to fields the model
// does not declare. Models without field declarations are skipped; the
// schema author opted out of field-level validation.
func checkFieldRefs(mp *ModelPolicy, rule Rule) []ValidationWarning {
	if len(mp.Fields) == 0 {
		return nil
	}

	var warnings []ValidationWarning
	for _, ref := range collectFieldRefs(rule.Cond) {
		if _, ok := mp.Fields[ref]; ok {
			continue
		}
		warnings = append(warnings, ValidationWarning{
			Model: mp.Entity,
			Message: fmt.Sprintf(
				"rule %s references undeclared field %q", rule.Name, ref),
		})
	}
	return warnings
}

// collectFieldRefs walks a condition tree and extracts the first
// segment of every record field reference (bare and this-qualified).
func collectFieldRefs(e *dsl.Expr) []string {
	var refs []string
	walkOperands(e, func(o *dsl.Operand) {
		switch {
		case o.Field != nil && len(o.Field.Path) > 0:
			refs = append(refs, o.Field.Path[0])
		case o.This != nil && len(o.This.Path) > 0:
			refs = append(refs, o.This.Path[0])
		}
	})
	return refs
}

// collectLikePatterns walks a condition tree and extracts all like
// patterns.
func collectLikePatterns(e *dsl.Expr) []string {
	var patterns []string
	walkComparisons(e, func(c *dsl.Comparison) {
		if c.Op == "like" && c.Right != nil && c.Right.Lit != nil && c.Right.Lit.Str != nil {
			patterns = append(patterns, string(*c.Right.Lit.Str))
		}
	})
	return patterns
}

// walkComparisons visits every comparison node in an expression tree,
// descending through parenthesized groups.
func walkComparisons(e *dsl.Expr, visit func(*dsl.Comparison)) {
	for _, and := range e.Or {
		for _, unary := range and.And {
			walkUnary(unary, visit)
		}
	}
}

func walkUnary(u *dsl.UnaryExpr, visit func(*dsl.Comparison)) {
	if u.Not != nil {
		walkUnary(u.Not, visit)
		return
	}
	if u.Comparison == nil {
		return
	}
	visit(u.Comparison)
	for _, op := range []*dsl.Operand{u.Comparison.Left, u.Comparison.Right} {
		if op != nil && op.Paren != nil {
			walkComparisons(op.Paren, visit)
		}
	}
}

// walkOperands visits every operand in an expression tree.
func walkOperands(e *dsl.Expr, visit func(*dsl.Operand)) {
	walkComparisons(e, func(c *dsl.Comparison) {
		if c.Left != nil {
			visit(c.Left)
		}
		if c.Right != nil {
			visit(c.Right)
		}
	})
}

// precompileGlobs compiles every like pattern in the condition so the
// evaluator never compiles on the hot path.
func precompileGlobs(e *dsl.Expr) (map[string]glob.Glob, error) {
	patterns := collectLikePatterns(e)
	if len(patterns) == 0 {
		return nil, nil
	}

	cache := make(map[string]glob.Glob, len(patterns))
	for _, pattern := range patterns {
		if _, exists := cache[pattern]; exists {
			continue
		}
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid like pattern %q: %w", pattern, err)
		}
		cache[pattern] = compiled
	}
	return cache, nil
}

// RulesFor returns every rule for the entity whose operation set
// contains op. The relative order of the returned rules does not affect
// the decision; precedence is by rule kind. An entity type absent from
// the policy set is a caller contract violation, not a deny.
func (ps *PolicySet) RulesFor(entity string, op types.Operation) ([]Rule, error) {
	mp, ok := ps.models[entity]
	if !ok {
		return nil, oops.
			Code(types.CodeUnknownEntity).
			With("entity", entity).
			Errorf("entity type %q is not managed by the policy set", entity)
	}

	rules := make([]Rule, 0, len(mp.Rules))
	for _, r := range mp.Rules {
		if r.Ops.Contains(op) {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// Models returns the managed entity type names in sorted order.
func (ps *PolicySet) Models() []string {
	names := make([]string, 0, len(ps.models))
	for name := range ps.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns the compiled policy for an entity type, or nil.
func (ps *PolicySet) Model(entity string) *ModelPolicy {
	return ps.models[entity]
}

// CompiledAt returns when the policy set was built.
func (ps *PolicySet) CompiledAt() time.Time {
	return ps.compiledAt
}

// Current implements PolicyProvider, so a static PolicySet can back an
// Engine directly.
func (ps *PolicySet) Current() *PolicySet {
	return ps
}
