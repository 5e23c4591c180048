// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package store defines the SchemaStore interface and PostgreSQL
// implementation for persisting access schemas.
//
// A stored schema is the source text of a schema document (models with
// their access rules). Compilation happens in the loader; the store
// persists source and version history only.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
)

// StoredSchema is the persisted form of a schema document.
// ID is a ULID string generated on creation.
type StoredSchema struct {
	ID         string
	Name       string
	Source     string
	Enabled    bool
	ChangeNote string // populated on version upgrades; stored in schema_versions
	CreatedBy  string
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SchemaStore handles CRUD operations for schema documents.
type SchemaStore interface {
	Create(ctx context.Context, s *StoredSchema) error
	Get(ctx context.Context, name string) (*StoredSchema, error)
	GetByID(ctx context.Context, id string) (*StoredSchema, error)
	Update(ctx context.Context, s *StoredSchema) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, opts ListOptions) ([]*StoredSchema, error)
}

// ListOptions controls filtering for schema listing.
type ListOptions struct {
	Enabled *bool // filter by enabled state (nil for all)
}

// ValidateName checks that a schema name is usable as an identifier:
// non-empty, no whitespace, at most 128 characters.
func ValidateName(name string) error {
	if name == "" {
		return oops.Code("SCHEMA_INVALID_NAME").Errorf("schema name must not be empty")
	}
	if len(name) > 128 {
		return oops.Code("SCHEMA_INVALID_NAME").With("name", name).
			Errorf("schema name must be at most 128 characters")
	}
	if strings.ContainsAny(name, " \t\n\r") {
		return oops.Code("SCHEMA_INVALID_NAME").With("name", name).
			Errorf("schema name must not contain whitespace")
	}
	return nil
}
