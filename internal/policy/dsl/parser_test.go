// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package dsl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogSchema = `
// A blog with posts and drafts.
model Post {
  id String @id
  title String
  published Boolean
  authorId String

  @@allow("read", published == true)
  @@allow("create,update", auth() == author)
  @@deny("delete", locked == true)
}

model Comment {
  @@allow("all", auth() != null)
}
`

func TestParse_Schema(t *testing.T) {
	schema, err := Parse(blogSchema)
	require.NoError(t, err)
	require.Len(t, schema.Models, 2)

	post := schema.Models[0]
	assert.Equal(t, "Post", post.Name)

	var fields, rules int
	for _, el := range post.Elements {
		switch {
		case el.Field != nil:
			fields++
		case el.Rule != nil:
			rules++
		}
	}
	assert.Equal(t, 4, fields)
	assert.Equal(t, 3, rules)

	comment := schema.Models[1]
	assert.Equal(t, "Comment", comment.Name)
	require.Len(t, comment.Elements, 1)
	rule := comment.Elements[0].Rule
	require.NotNil(t, rule)
	assert.Equal(t, "allow", rule.Kind())
	assert.Equal(t, QuotedString("all"), rule.Ops)
}

func TestParse_FieldAttributes(t *testing.T) {
	schema, err := Parse(`
model User {
  id String @id
  email String
  tags String[]
  bio String?
}
`)
	require.NoError(t, err)
	require.Len(t, schema.Models, 1)

	byName := map[string]*FieldDecl{}
	for _, el := range schema.Models[0].Elements {
		require.NotNil(t, el.Field)
		byName[el.Field.Name] = el.Field
	}

	require.Contains(t, byName, "id")
	require.Len(t, byName["id"].Attrs, 1)
	assert.True(t, byName["id"].Attrs[0].IsID())

	assert.True(t, byName["tags"].List)
	assert.True(t, byName["bio"].Optional)
	assert.False(t, byName["email"].List)
	assert.False(t, byName["email"].Optional)
}

func TestParse_SingleQuotedOps(t *testing.T) {
	schema, err := Parse(`
model Doc {
  @@allow('create,read', true)
}
`)
	require.NoError(t, err)
	rule := schema.Models[0].Elements[0].Rule
	require.NotNil(t, rule)
	assert.Equal(t, QuotedString("create,read"), rule.Ops)
}

func TestParse_ConditionShapes(t *testing.T) {
	// Each condition should parse; semantics are evaluator territory.
	conditions := []string{
		`true`,
		`published`,
		`!locked`,
		`auth() == null`,
		`auth() != null`,
		`auth().role == "admin"`,
		`auth().id == this.ownerId`,
		`auth() == author`,
		`auth() == this`,
		`viewCount > 100`,
		`score >= 2.5`,
		`status in ["active", "pending"]`,
		`auth().role in roles`,
		`email like "*@example.com"`,
		`a == 1 && b == 2 || c == 3`,
		`(a == 1 || b == 2) && !(c == 3)`,
		`this.meta.owner.id == auth().id`,
	}

	for _, cond := range conditions {
		t.Run(cond, func(t *testing.T) {
			src := "model M {\n  @@allow(\"read\", " + cond + ")\n}"
			_, err := Parse(src)
			assert.NoError(t, err)
		})
	}
}

func TestParse_Comments(t *testing.T) {
	_, err := Parse(`
// leading comment
model Post {
  // a field
  id String @id
  @@allow("read", true) // trailing
}
`)
	assert.NoError(t, err)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown rule attribute", `model M { @@permit("read", true) }`},
		{"missing condition", `model M { @@allow("read") }`},
		{"unterminated model", `model M { @@allow("read", true)`},
		{"like with non-string pattern", `model M { @@allow("read", name like 5) }`},
		{"in with scalar literal", `model M { @@allow("read", x in 5) }`},
		{"garbage", `not a schema at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			assert.Error(t, err)
		})
	}
}

func TestParse_NestingDepthLimit(t *testing.T) {
	// Build a condition nested beyond MaxNestingDepth parens.
	depth := MaxNestingDepth + 2
	cond := strings.Repeat("(", depth) + "true" + strings.Repeat(")", depth)
	src := "model M {\n  @@allow(\"read\", " + cond + ")\n}"

	_, err := Parse(src)
	assert.Error(t, err)
}

func TestParse_EmptySchema(t *testing.T) {
	schema, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, schema.Models)
}
