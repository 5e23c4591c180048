// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"

	"github.com/samber/oops"
)

// SchemaSource adapts a SchemaStore to the loader's Source contract,
// serving the source text of one named schema.
type SchemaSource struct {
	store SchemaStore
	name  string
}

// NewSchemaSource creates a SchemaSource for the named schema.
func NewSchemaSource(st SchemaStore, name string) *SchemaSource {
	return &SchemaSource{store: st, name: name}
}

// Fetch returns the stored schema's source text. A disabled schema is
// an error: serving rules from a schema an operator switched off would
// silently widen or narrow access.
func (s *SchemaSource) Fetch(ctx context.Context) (string, error) {
	sch, err := s.store.Get(ctx, s.name)
	if err != nil {
		return "", err
	}
	if !sch.Enabled {
		return "", oops.Code("SCHEMA_DISABLED").With("name", s.name).
			Errorf("schema is disabled")
	}
	return sch.Source, nil
}
