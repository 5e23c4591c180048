// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package dsl

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// EvalContext provides the request context and configuration for
// condition evaluation. It is created per evaluation and never
// mutated by the evaluator.
type EvalContext struct {
	Actor   *types.Actor
	Record  types.Record
	IDField string               // identity field of the target model; "id" when empty
	Globs   map[string]glob.Glob // pre-compiled like patterns; nil means compile on demand
}

func (ec *EvalContext) idField() string {
	if ec.IDField == "" {
		return "id"
	}
	return ec.IDField
}

// Evaluate evaluates a condition expression against the context.
// Evaluation is deterministic and side-effect free. && and || short
// circuit, so the right operand is not resolved once the left operand
// determines the result. A reference to a field absent from the loaded
// record fails with an UNRESOLVED_FIELD_REFERENCE error; it is never
// folded into a false result.
func Evaluate(ec *EvalContext, e *Expr) (bool, error) {
	return evalExpr(ec, e)
}

// evalExpr evaluates a disjunction: true if ANY conjunction is true.
func evalExpr(ec *EvalContext, e *Expr) (bool, error) {
	for _, and := range e.Or {
		ok, err := evalAnd(ec, and)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// evalAnd evaluates a conjunction: ALL terms must be true.
func evalAnd(ec *EvalContext, a *AndExpr) (bool, error) {
	for _, unary := range a.And {
		ok, err := evalUnary(ec, unary)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalUnary(ec *EvalContext, u *UnaryExpr) (bool, error) {
	if u.Not != nil {
		ok, err := evalUnary(ec, u.Not)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
	return evalComparison(ec, u.Comparison)
}

// evalComparison evaluates a binary comparison, or the truthiness of a
// bare operand when no operator is present.
func evalComparison(ec *EvalContext, c *Comparison) (bool, error) {
	if c.Op == "" {
		v, err := resolveOperand(ec, c.Left)
		if err != nil {
			return false, err
		}
		b, ok := v.(bool)
		return ok && b, nil
	}

	switch c.Op {
	case "in":
		return evalIn(ec, c)
	case "like":
		return evalLike(ec, c)
	}

	// Null comparisons are presence checks: x == null is true exactly
	// when x resolves to null. For auth(), that means no actor.
	if isNullLit(c.Left) || isNullLit(c.Right) {
		return evalNullCheck(ec, c)
	}

	// A comparison between auth() and a record reference compares
	// identities. With no actor present it is false, never an error.
	if ref, flipped := identityOperands(c); ref != nil {
		return evalIdentity(ec, c.Op, ref, flipped)
	}

	left, err := resolveOperand(ec, c.Left)
	if err != nil {
		return false, err
	}
	right, err := resolveOperand(ec, c.Right)
	if err != nil {
		return false, err
	}
	return compareValues(left, right, c.Op), nil
}

// isNullLit reports whether the operand is the null literal.
func isNullLit(o *Operand) bool {
	return o != nil && o.Lit != nil && o.Lit.IsNull()
}

// evalNullCheck handles x == null and x != null.
func evalNullCheck(ec *EvalContext, c *Comparison) (bool, error) {
	other := c.Left
	if isNullLit(other) {
		other = c.Right
	}

	var isNull bool
	if isNullLit(other) {
		isNull = true // null == null
	} else {
		v, err := resolveOperand(ec, other)
		if err != nil {
			return false, err
		}
		isNull = v == nil
	}

	switch c.Op {
	case "==":
		return isNull, nil
	case "!=":
		return !isNull, nil
	default:
		// Ordering against null is always false.
		return false, nil
	}
}

// identityOperands returns the record reference operand when the
// comparison pairs a bare auth() with a record reference (this or a
// field). flipped is true when auth() is on the right.
func identityOperands(c *Comparison) (ref *Operand, flipped bool) {
	if c.Op != "==" && c.Op != "!=" {
		return nil, false
	}
	if isBareAuth(c.Left) && isRecordRef(c.Right) {
		return c.Right, false
	}
	if isBareAuth(c.Right) && isRecordRef(c.Left) {
		return c.Left, true
	}
	return nil, false
}

func isBareAuth(o *Operand) bool {
	return o != nil && o.Auth != nil && len(o.Auth.Path) == 0
}

func isRecordRef(o *Operand) bool {
	return o != nil && (o.This != nil || o.Field != nil)
}

// evalIdentity compares the actor's identity to a referenced record's
// identity. An absent actor makes the comparison false regardless of
// the operator.
func evalIdentity(ec *EvalContext, op string, ref *Operand, _ bool) (bool, error) {
	if ec.Actor == nil {
		return false, nil
	}

	refID, err := resolveRecordIdentity(ec, ref)
	if err != nil {
		return false, err
	}

	equal := valuesEqual(ec.Actor.ID, refID)
	if op == "!=" {
		return !equal, nil
	}
	return equal, nil
}

// resolveRecordIdentity resolves a record reference to the unique
// identity of the record (or related record) it names. When a relation
// field is not loaded, the conventional foreign-key column
// "<field>Id" is consulted before failing.
func resolveRecordIdentity(ec *EvalContext, o *Operand) (any, error) {
	var path []string
	switch {
	case o.This != nil:
		path = o.This.Path
		if len(path) == 0 {
			// this → the target record's own identity
			id, ok := ec.Record.Field(ec.idField())
			if !ok {
				return nil, unresolvedFieldErr(ec.idField())
			}
			return id, nil
		}
	case o.Field != nil:
		path = o.Field.Path
	}

	v, ok := ec.Record.Field(path[0])
	if !ok {
		if len(path) == 1 {
			if fk, okFK := ec.Record.Field(path[0] + "Id"); okFK {
				return fk, nil
			}
		}
		return nil, unresolvedFieldErr(path[0])
	}

	v, err := walkPath(v, path, 1)
	if err != nil {
		return nil, err
	}
	return identityValue(v)
}

// identityValue extracts the identity from a resolved value: a related
// record yields its id field, a scalar is already an identity.
func identityValue(v any) (any, error) {
	switch rec := v.(type) {
	case map[string]any:
		id, ok := rec["id"]
		if !ok {
			return nil, unresolvedFieldErr("id")
		}
		return id, nil
	case types.Record:
		id, ok := rec["id"]
		if !ok {
			return nil, unresolvedFieldErr("id")
		}
		return id, nil
	default:
		return v, nil
	}
}

// resolveOperand resolves an operand to a Go value. Null is
// represented as untyped nil. A parenthesized sub-expression resolves
// to its boolean value.
func resolveOperand(ec *EvalContext, o *Operand) (any, error) {
	switch {
	case o.Auth != nil:
		return resolveAuth(ec, o.Auth), nil

	case o.This != nil:
		if len(o.This.Path) == 0 {
			return map[string]any(ec.Record), nil
		}
		return lookupRecordPath(ec, o.This.Path)

	case o.Field != nil:
		return lookupRecordPath(ec, o.Field.Path)

	case o.Lit != nil:
		return literalValue(o.Lit), nil

	case o.List != nil:
		values := make([]any, 0, len(o.List.Values))
		for _, lit := range o.List.Values {
			values = append(values, literalValue(lit))
		}
		return values, nil

	case o.Paren != nil:
		return evalExpr(ec, o.Paren)

	default:
		return nil, nil
	}
}

// resolveAuth resolves auth() or auth().path. With no actor, any form
// resolves to null; actor attributes are caller-provided, so a missing
// attribute is null rather than an error.
func resolveAuth(ec *EvalContext, ref *AuthRef) any {
	if ec.Actor == nil {
		return nil
	}
	if len(ref.Path) == 0 {
		return ec.Actor
	}
	v, ok := ec.Actor.Attr(ref.Path[0])
	if !ok {
		return nil
	}
	for _, seg := range ref.Path[1:] {
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil
		}
		v = m[seg]
	}
	return v
}

// lookupRecordPath resolves a dotted field path on the target record.
// The first segment must be loaded on the record; nested segments must
// be present on their parent object. A null value along the path makes
// the whole reference null.
func lookupRecordPath(ec *EvalContext, path []string) (any, error) {
	v, ok := ec.Record.Field(path[0])
	if !ok {
		return nil, unresolvedFieldErr(path[0])
	}
	return walkPath(v, path, 1)
}

// walkPath descends nested objects from path[from:].
func walkPath(v any, path []string, from int) (any, error) {
	for i := from; i < len(path); i++ {
		if v == nil {
			return nil, nil
		}
		var m map[string]any
		switch obj := v.(type) {
		case map[string]any:
			m = obj
		case types.Record:
			m = obj
		default:
			return nil, unresolvedFieldErr(strings.Join(path[:i+1], "."))
		}
		var ok bool
		v, ok = m[path[i]]
		if !ok {
			return nil, unresolvedFieldErr(strings.Join(path[:i+1], "."))
		}
	}
	return v, nil
}

// literalValue converts a Literal AST node to a Go value.
func literalValue(l *Literal) any {
	switch {
	case l.Str != nil:
		return string(*l.Str)
	case l.Num != nil:
		return *l.Num
	case l.Bool != nil:
		return *l.Bool == "true"
	default:
		return nil
	}
}

// evalIn checks membership of the left value in the right list.
func evalIn(ec *EvalContext, c *Comparison) (bool, error) {
	left, err := resolveOperand(ec, c.Left)
	if err != nil {
		return false, err
	}
	right, err := resolveOperand(ec, c.Right)
	if err != nil {
		return false, err
	}

	switch list := right.(type) {
	case []any:
		for _, v := range list {
			if valuesEqual(left, v) {
				return true, nil
			}
		}
	case []string:
		s, ok := left.(string)
		if !ok {
			return false, nil
		}
		for _, v := range list {
			if v == s {
				return true, nil
			}
		}
	}
	return false, nil
}

// maxGlobPatternLen is the maximum allowed length for a like pattern.
const maxGlobPatternLen = 100

// maxGlobWildcards is the maximum number of wildcard characters
// (* or ?) allowed in a like pattern.
const maxGlobWildcards = 5

// evalLike evaluates a glob pattern match on a string value.
func evalLike(ec *EvalContext, c *Comparison) (bool, error) {
	if c.Right.Lit == nil || c.Right.Lit.Str == nil {
		return false, nil
	}
	pattern := string(*c.Right.Lit.Str)
	if !validGlobPattern(pattern) {
		return false, nil
	}

	left, err := resolveOperand(ec, c.Left)
	if err != nil {
		return false, err
	}
	s, ok := left.(string)
	if !ok {
		return false, nil
	}

	compiled, ok := ec.Globs[pattern]
	if !ok {
		var compileErr error
		compiled, compileErr = glob.Compile(pattern)
		if compileErr != nil {
			return false, nil
		}
	}
	return compiled.Match(s), nil
}

// validGlobPattern checks the pattern against safety limits.
func validGlobPattern(pattern string) bool {
	if len(pattern) > maxGlobPatternLen {
		return false
	}
	if strings.Contains(pattern, "[") ||
		strings.Contains(pattern, "{") ||
		strings.Contains(pattern, "**") {
		return false
	}
	wildcards := 0
	for _, ch := range pattern {
		if ch == '*' || ch == '?' {
			wildcards++
		}
	}
	return wildcards <= maxGlobWildcards
}

// compareValues compares two resolved values with the given operator.
// Null operands and type mismatches yield false (fail-safe semantics).
func compareValues(left, right any, op string) bool {
	if left == nil || right == nil {
		// Equality with null is handled by evalNullCheck; reaching
		// here means a resolved null met a non-null value.
		switch op {
		case "==":
			return left == nil && right == nil
		case "!=":
			return (left == nil) != (right == nil)
		default:
			return false
		}
	}

	lNum, lIsNum := toFloat64(left)
	rNum, rIsNum := toFloat64(right)
	if lIsNum && rIsNum {
		return compareNumbers(lNum, rNum, op)
	}

	lStr, lIsStr := left.(string)
	rStr, rIsStr := right.(string)
	if lIsStr && rIsStr {
		return compareStrings(lStr, rStr, op)
	}

	lBool, lIsBool := left.(bool)
	rBool, rIsBool := right.(bool)
	if lIsBool && rIsBool {
		switch op {
		case "==":
			return lBool == rBool
		case "!=":
			return lBool != rBool
		default:
			return false
		}
	}

	// Type mismatch: equality is false, inequality is true.
	switch op {
	case "==":
		return false
	case "!=":
		return true
	default:
		return false
	}
}

func compareNumbers(l, r float64, op string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "<":
		return l < r
	case "<=":
		return l <= r
	default:
		return false
	}
}

func compareStrings(l, r, op string) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "<":
		return l < r
	case "<=":
		return l <= r
	default:
		return false
	}
}

// valuesEqual compares two any values for equality, with numeric
// coercion so that int and float identities compare as expected.
func valuesEqual(a, b any) bool {
	aNum, aIsNum := toFloat64(a)
	bNum, bIsNum := toFloat64(b)
	if aIsNum && bIsNum {
		return aNum == bNum
	}

	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return aStr == bStr
	}

	aBool, aIsBool := a.(bool)
	bBool, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		return aBool == bBool
	}

	return false
}

// toFloat64 attempts to convert a value to float64, handling all Go
// numeric types that may appear in record maps.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func unresolvedFieldErr(field string) error {
	return oops.
		Code(types.CodeUnresolvedField).
		With("field", field).
		Errorf("field %q is not loaded on the target record", field)
}
