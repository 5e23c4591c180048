// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidSchema(t *testing.T) {
	schema := writeSchemaFile(t)

	out, err := runGatehouse(t, "validate", schema)
	require.NoError(t, err)

	assert.Contains(t, out, "model Post: 3 fields, 3 rules")
	assert.Contains(t, out, "schema OK: 1 models, 0 warnings")
}

func TestValidate_ReportsWarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.gh")
	src := `model Doc {
  id String @id
  @@allow("read", status == "published")
}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	out, err := runGatehouse(t, "validate", path)
	require.NoError(t, err)

	assert.Contains(t, out, "warning: Doc:")
	assert.Contains(t, out, "schema OK: 1 models, 1 warnings")
}

func TestValidate_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.gh")
	require.NoError(t, os.WriteFile(path, []byte(`model {`), 0o600))

	_, err := runGatehouse(t, "validate", path)
	require.Error(t, err)
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := runGatehouse(t, "validate", filepath.Join(t.TempDir(), "absent.gh"))
	require.Error(t, err)
}

func TestValidate_RequiresExactlyOneArg(t *testing.T) {
	_, err := runGatehouse(t, "validate")
	require.Error(t, err)
}
