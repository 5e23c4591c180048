// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package types defines the core types for the gatehouse policy engine.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Operation is one of the four data-access operations a rule can cover.
type Operation int

// Operation constants define the supported data-access operations.
const (
	OpCreate Operation = iota // create
	OpRead                    // read
	OpUpdate                  // update
	OpDelete                  // delete
)

var operationStrings = [...]string{
	"create",
	"read",
	"update",
	"delete",
}

func (o Operation) String() string {
	if o >= 0 && int(o) < len(operationStrings) {
		return operationStrings[o]
	}
	return fmt.Sprintf("unknown(%d)", int(o))
}

// ParseOperation converts an operation name to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch strings.TrimSpace(s) {
	case "create":
		return OpCreate, nil
	case "read":
		return OpRead, nil
	case "update":
		return OpUpdate, nil
	case "delete":
		return OpDelete, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

// OpSet is a set of operations, stored as a bitmask.
type OpSet uint8

// AllOps covers create, read, update, and delete.
const AllOps OpSet = 1<<OpCreate | 1<<OpRead | 1<<OpUpdate | 1<<OpDelete

// ParseOpSet parses a comma-separated operation list such as
// "create,read". The keyword "all" expands to the full set. An empty
// list is an error: a rule that covers no operations is meaningless.
func ParseOpSet(s string) (OpSet, error) {
	var set OpSet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "all" {
			set |= AllOps
			continue
		}
		op, err := ParseOperation(part)
		if err != nil {
			return 0, err
		}
		set |= 1 << op
	}
	if set == 0 {
		return 0, fmt.Errorf("operation list %q is empty", s)
	}
	return set, nil
}

// Contains reports whether the set covers the given operation.
func (s OpSet) Contains(op Operation) bool {
	return s&(1<<op) != 0
}

func (s OpSet) String() string {
	if s == AllOps {
		return "all"
	}
	var ops []string
	for op := OpCreate; op <= OpDelete; op++ {
		if s.Contains(op) {
			ops = append(ops, op.String())
		}
	}
	sort.Strings(ops)
	return strings.Join(ops, ",")
}

// RuleKind is what a rule declares: allow or deny. It is distinct from
// Effect, which is what the engine decides at runtime.
type RuleKind string

// RuleKind constants define the valid rule declarations.
const (
	RuleAllow RuleKind = "allow"
	RuleDeny  RuleKind = "deny"
)

// String returns the underlying string value.
func (k RuleKind) String() string {
	return string(k)
}

// ToEffect converts a RuleKind to the runtime Effect it produces when
// the rule's condition is satisfied.
func (k RuleKind) ToEffect() Effect {
	switch k {
	case RuleAllow:
		return EffectAllow
	case RuleDeny:
		return EffectDeny
	default:
		return EffectDefaultDeny
	}
}

// Effect represents the evaluated outcome of an access decision.
type Effect int

// Effect constants define the possible outcomes of policy evaluation.
const (
	EffectDefaultDeny Effect = iota // default_deny
	EffectAllow                     // allow
	EffectDeny                      // deny
)

var effectStrings = [...]string{
	"default_deny",
	"allow",
	"deny",
}

func (e Effect) String() string {
	if e >= 0 && int(e) < len(effectStrings) {
		return effectStrings[e]
	}
	return fmt.Sprintf("unknown(%d)", int(e))
}

// Actor is the identity performing an operation. A nil *Actor means the
// request is unauthenticated; rules observe that through auth() == null.
type Actor struct {
	ID    any
	Attrs map[string]any
}

// Attr resolves a named attribute on the actor. The "id" attribute
// always resolves to the ID field.
func (a *Actor) Attr(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	if name == "id" {
		return a.ID, true
	}
	v, ok := a.Attrs[name]
	return v, ok
}

// Record is the loaded form of the entity instance a request targets.
// A key that is present with a nil value is a null field; a key that is
// absent was never loaded, and referencing it is an evaluation error.
type Record map[string]any

// Field returns the value for a field and whether it was loaded.
func (r Record) Field(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// AccessRequest represents an actor attempting an operation on a record
// of a managed entity type. It is created fresh per authorization check
// and owned exclusively by that call.
type AccessRequest struct {
	Entity    string
	Operation Operation
	Actor     *Actor
	Record    Record
}

// NewAccessRequest creates a validated AccessRequest. The entity name
// must be non-empty; a nil actor is valid (unauthenticated).
func NewAccessRequest(entity string, op Operation, actor *Actor, record Record) (AccessRequest, error) {
	if strings.TrimSpace(entity) == "" {
		return AccessRequest{}, fmt.Errorf("access request: entity must not be empty")
	}
	return AccessRequest{
		Entity:    entity,
		Operation: op,
		Actor:     actor,
		Record:    record,
	}, nil
}

// Decision is the result of evaluating an access request.
// The allowed field is unexported to prevent invariant bypass.
type Decision struct {
	allowed bool
	Effect  Effect
	Reason  string
	Rule    string
	Matches []RuleMatch
}

// NewDecision creates a Decision with the allowed field set
// consistently from the effect: only EffectAllow grants access.
func NewDecision(effect Effect, reason, rule string) Decision {
	return Decision{
		allowed: effect == EffectAllow,
		Effect:  effect,
		Reason:  reason,
		Rule:    rule,
	}
}

// IsAllowed returns whether the decision grants access.
func (d Decision) IsAllowed() bool {
	return d.allowed
}

// SetMatches records the per-rule evaluation outcomes for diagnostics.
func (d *Decision) SetMatches(matches []RuleMatch) {
	d.Matches = matches
}

// Validate checks that the Decision invariant holds: the allowed field
// must be consistent with the Effect. This should be called at engine
// return boundaries.
func (d Decision) Validate() error {
	if d.allowed != (d.Effect == EffectAllow) {
		return fmt.Errorf(
			"decision invariant violated: allowed=%v but effect=%s",
			d.allowed, d.Effect,
		)
	}
	return nil
}

// RuleMatch records that a specific rule applied to an access request
// and whether its condition was met.
type RuleMatch struct {
	Rule         string
	Kind         RuleKind
	ConditionMet bool
}

// Error codes used across the engine. Negative decisions are not
// errors; these codes mark contract violations that must surface to
// the caller instead of being folded into a deny.
const (
	// CodeUnknownEntity marks a decision request for an entity type
	// that is not present in the policy set.
	CodeUnknownEntity = "UNKNOWN_ENTITY_TYPE"

	// CodeUnresolvedField marks a condition that referenced a field
	// absent from the loaded record.
	CodeUnresolvedField = "UNRESOLVED_FIELD_REFERENCE"

	// CodeSchemaParse marks a schema source that failed to parse or
	// compile.
	CodeSchemaParse = "SCHEMA_PARSE"

	// CodeSchemaNotFound marks a schema store lookup miss.
	CodeSchemaNotFound = "SCHEMA_NOT_FOUND"
)
