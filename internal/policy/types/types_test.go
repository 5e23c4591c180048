// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		input   string
		want    Operation
		wantErr bool
	}{
		{input: "create", want: OpCreate},
		{input: "read", want: OpRead},
		{input: "update", want: OpUpdate},
		{input: "delete", want: OpDelete},
		{input: " read ", want: OpRead},
		{input: "write", wantErr: true},
		{input: "", wantErr: true},
		{input: "READ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOperation(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOpSet(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		has     []Operation
		lacks   []Operation
	}{
		{
			name:  "single op",
			input: "read",
			has:   []Operation{OpRead},
			lacks: []Operation{OpCreate, OpUpdate, OpDelete},
		},
		{
			name:  "multiple ops",
			input: "create,read",
			has:   []Operation{OpCreate, OpRead},
			lacks: []Operation{OpUpdate, OpDelete},
		},
		{
			name:  "all keyword",
			input: "all",
			has:   []Operation{OpCreate, OpRead, OpUpdate, OpDelete},
		},
		{
			name:  "whitespace tolerated",
			input: " update , delete ",
			has:   []Operation{OpUpdate, OpDelete},
			lacks: []Operation{OpCreate, OpRead},
		},
		{
			name:  "duplicate op is idempotent",
			input: "read,read",
			has:   []Operation{OpRead},
			lacks: []Operation{OpCreate},
		},
		{name: "empty list", input: "", wantErr: true},
		{name: "only commas", input: ",,", wantErr: true},
		{name: "unknown op", input: "read,write", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseOpSet(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, op := range tt.has {
				assert.True(t, set.Contains(op), "expected set to contain %s", op)
			}
			for _, op := range tt.lacks {
				assert.False(t, set.Contains(op), "expected set to lack %s", op)
			}
		})
	}
}

func TestOpSet_String(t *testing.T) {
	all, err := ParseOpSet("create,read,update,delete")
	require.NoError(t, err)
	assert.Equal(t, "all", all.String())

	some, err := ParseOpSet("read,create")
	require.NoError(t, err)
	assert.Equal(t, "create,read", some.String())
}

func TestRuleKind_ToEffect(t *testing.T) {
	assert.Equal(t, EffectAllow, RuleAllow.ToEffect())
	assert.Equal(t, EffectDeny, RuleDeny.ToEffect())
	assert.Equal(t, EffectDefaultDeny, RuleKind("bogus").ToEffect())
}

func TestEffect_String(t *testing.T) {
	assert.Equal(t, "default_deny", EffectDefaultDeny.String())
	assert.Equal(t, "allow", EffectAllow.String())
	assert.Equal(t, "deny", EffectDeny.String())
	assert.Equal(t, "unknown(42)", Effect(42).String())
}

func TestActor_Attr(t *testing.T) {
	actor := &Actor{
		ID:    5,
		Attrs: map[string]any{"role": "editor"},
	}

	id, ok := actor.Attr("id")
	require.True(t, ok)
	assert.Equal(t, 5, id)

	role, ok := actor.Attr("role")
	require.True(t, ok)
	assert.Equal(t, "editor", role)

	_, ok = actor.Attr("missing")
	assert.False(t, ok)
}

func TestActor_Attr_NilActor(t *testing.T) {
	var actor *Actor
	v, ok := actor.Attr("id")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestRecord_Field(t *testing.T) {
	rec := Record{"published": true, "deletedAt": nil}

	v, ok := rec.Field("published")
	require.True(t, ok)
	assert.Equal(t, true, v)

	// Present key with nil value is a loaded null field.
	v, ok = rec.Field("deletedAt")
	require.True(t, ok)
	assert.Nil(t, v)

	// Absent key was never loaded.
	_, ok = rec.Field("authorId")
	assert.False(t, ok)
}

func TestNewAccessRequest(t *testing.T) {
	req, err := NewAccessRequest("Post", OpRead, nil, Record{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "Post", req.Entity)
	assert.Equal(t, OpRead, req.Operation)
	assert.Nil(t, req.Actor)

	_, err = NewAccessRequest("", OpRead, nil, nil)
	assert.Error(t, err)

	_, err = NewAccessRequest("   ", OpRead, nil, nil)
	assert.Error(t, err)
}

func TestNewDecision_Invariant(t *testing.T) {
	tests := []struct {
		effect  Effect
		allowed bool
	}{
		{EffectAllow, true},
		{EffectDeny, false},
		{EffectDefaultDeny, false},
	}

	for _, tt := range tests {
		t.Run(tt.effect.String(), func(t *testing.T) {
			d := NewDecision(tt.effect, "reason", "rule")
			assert.Equal(t, tt.allowed, d.IsAllowed())
			assert.NoError(t, d.Validate())
		})
	}
}

func TestDecision_Validate_ZeroValue(t *testing.T) {
	// The zero Decision is default_deny with allowed=false, which is
	// consistent.
	var d Decision
	assert.NoError(t, d.Validate())
	assert.False(t, d.IsAllowed())
}
