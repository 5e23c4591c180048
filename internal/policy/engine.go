// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy/audit"
	"github.com/gatehouse/gatehouse/internal/policy/dsl"
	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// PolicyProvider yields the policy set a decision should evaluate
// against. Implementations must return a consistent snapshot: once
// obtained, the set never mutates under the caller.
type PolicyProvider interface {
	Current() *PolicySet
}

// Engine evaluates access requests against a policy set. It is
// stateless across calls; each Decide invocation is an independent,
// pure computation over its inputs, safe for any number of concurrent
// callers.
type Engine struct {
	policies PolicyProvider
	audit    *audit.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAuditLogger attaches an audit logger. Audit failures never fail
// a decision.
func WithAuditLogger(l *audit.Logger) EngineOption {
	return func(e *Engine) {
		e.audit = l
	}
}

// NewEngine creates an Engine backed by the given policy provider.
func NewEngine(policies PolicyProvider, opts ...EngineOption) *Engine {
	e := &Engine{policies: policies}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide evaluates an access request and returns the decision.
//
// Deny rules are evaluated before allow rules: any satisfied deny rule
// vetoes the request regardless of how many allow rules would match,
// and regardless of declaration order in the schema. If no rule is
// satisfied the default is deny.
//
// UNKNOWN_ENTITY_TYPE and UNRESOLVED_FIELD_REFERENCE errors are fatal
// to the call and propagate to the caller; they are never folded into
// a deny decision.
func (e *Engine) Decide(ctx context.Context, req types.AccessRequest) (types.Decision, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return types.Decision{}, oops.Wrapf(err, "context cancelled before evaluation")
	}
	if strings.TrimSpace(req.Entity) == "" {
		return types.Decision{}, oops.
			Code("INVALID_REQUEST").
			Errorf("entity must be non-empty")
	}

	ps := e.policies.Current()
	if ps == nil {
		return types.Decision{}, oops.
			Code("POLICY_SET_UNLOADED").
			Errorf("no policy set loaded")
	}

	rules, err := ps.RulesFor(req.Entity, req.Operation)
	if err != nil {
		return types.Decision{}, err
	}

	idField := "id"
	if mp := ps.Model(req.Entity); mp != nil {
		idField = mp.IDField
	}

	matches := make([]types.RuleMatch, 0, len(rules))

	// Deny rules first: a satisfied deny is a hard veto and
	// short-circuits the remaining evaluation.
	for _, r := range rules {
		if r.Kind != types.RuleDeny {
			continue
		}
		met, err := e.evaluateRule(r, req, idField)
		if err != nil {
			return types.Decision{}, err
		}
		matches = append(matches, types.RuleMatch{Rule: r.Name, Kind: r.Kind, ConditionMet: met})
		if met {
			decision := types.NewDecision(types.EffectDeny, "deny rule satisfied", r.Name)
			decision.SetMatches(matches)
			return e.finish(ctx, req, decision, start)
		}
	}

	for _, r := range rules {
		if r.Kind != types.RuleAllow {
			continue
		}
		met, err := e.evaluateRule(r, req, idField)
		if err != nil {
			return types.Decision{}, err
		}
		matches = append(matches, types.RuleMatch{Rule: r.Name, Kind: r.Kind, ConditionMet: met})
		if met {
			decision := types.NewDecision(types.EffectAllow, "allow rule satisfied", r.Name)
			decision.SetMatches(matches)
			return e.finish(ctx, req, decision, start)
		}
	}

	reason := "no rule satisfied"
	if len(rules) == 0 {
		reason = "no applicable rules"
	}
	decision := types.NewDecision(types.EffectDefaultDeny, reason, "")
	decision.SetMatches(matches)
	return e.finish(ctx, req, decision, start)
}

// evaluateRule evaluates a single rule's condition against the request.
func (e *Engine) evaluateRule(r Rule, req types.AccessRequest, idField string) (bool, error) {
	ec := &dsl.EvalContext{
		Actor:   req.Actor,
		Record:  req.Record,
		IDField: idField,
		Globs:   r.globs,
	}
	return dsl.Evaluate(ec, r.Cond)
}

// finish validates the decision invariant, records metrics, and emits
// the audit entry.
func (e *Engine) finish(ctx context.Context, req types.AccessRequest, decision types.Decision, start time.Time) (types.Decision, error) {
	if err := decision.Validate(); err != nil {
		return decision, oops.Wrapf(err, "decision validation failed")
	}

	duration := time.Since(start)
	RecordEvaluationMetrics(duration, decision.Effect)

	if e.audit != nil {
		entry := audit.Entry{
			Entity:     req.Entity,
			Operation:  req.Operation.String(),
			Actor:      actorLabel(req.Actor),
			Effect:     decision.Effect,
			Rule:       decision.Rule,
			DurationUS: duration.Microseconds(),
			Timestamp:  time.Now(),
		}
		if err := e.audit.Log(ctx, entry); err != nil {
			slog.WarnContext(ctx, "audit log failed", "error", err)
		}
	}

	return decision, nil
}

// actorLabel renders an actor for audit entries. Absent actors are
// recorded as "anonymous".
func actorLabel(a *types.Actor) string {
	if a == nil {
		return "anonymous"
	}
	return fmt.Sprintf("actor:%v", a.ID)
}
