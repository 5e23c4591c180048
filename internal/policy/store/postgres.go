// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// NotifyChannel is the PostgreSQL notification channel signalled when
// a schema row changes. Writes send pg_notify in the same transaction
// as the change, so listeners never observe a notification for an
// uncommitted write.
const NotifyChannel = "gatehouse_schema_changed"

// poolIface is the subset of pgxpool.Pool the store uses. Tests
// substitute a pgxmock pool.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements SchemaStore using PostgreSQL.
type PostgresStore struct {
	pool poolIface
}

// NewPostgresStore creates a PostgresStore backed by the given
// connection pool.
func NewPostgresStore(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// schemaColumns is the shared column list for SELECT queries.
const schemaColumns = `id, name, source, enabled, created_by, version, created_at, updated_at`

// scanSchema scans a row into a StoredSchema.
func scanSchema(row pgx.Row) (*StoredSchema, error) {
	var s StoredSchema
	err := row.Scan(
		&s.ID, &s.Name, &s.Source, &s.Enabled,
		&s.CreatedBy, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning schema row: %w", err)
	}
	return &s, nil
}

// scanSchemas scans multiple rows into a slice of StoredSchema.
func scanSchemas(rows pgx.Rows) ([]*StoredSchema, error) {
	defer rows.Close()
	var schemas []*StoredSchema
	for rows.Next() {
		var s StoredSchema
		err := rows.Scan(
			&s.ID, &s.Name, &s.Source, &s.Enabled,
			&s.CreatedBy, &s.Version, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		schemas = append(schemas, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema rows: %w", err)
	}
	return schemas, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Create inserts a new schema, generating a ULID for its ID.
// pg_notify is sent in the same transaction.
func (s *PostgresStore) Create(ctx context.Context, sch *StoredSchema) error {
	if err := ValidateName(sch.Name); err != nil {
		return err
	}

	id := ulid.Make().String()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("SCHEMA_CREATE_FAILED").With("name", sch.Name).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO schemas (id, name, source, enabled, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, id, sch.Name, sch.Source, sch.Enabled, sch.CreatedBy)
	if isUniqueViolation(err) {
		return oops.Code("SCHEMA_EXISTS").With("name", sch.Name).
			Errorf("schema already exists")
	}
	if err != nil {
		return oops.Code("SCHEMA_CREATE_FAILED").With("name", sch.Name).Wrap(err)
	}

	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, id)
	if err != nil {
		return oops.Code("SCHEMA_CREATE_FAILED").With("name", sch.Name).With("operation", "notify").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("SCHEMA_CREATE_FAILED").With("name", sch.Name).With("operation", "commit").Wrap(err)
	}

	sch.ID = id
	sch.Version = 1
	return nil
}

// Get retrieves a schema by name.
func (s *PostgresStore) Get(ctx context.Context, name string) (*StoredSchema, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM schemas WHERE name = $1`, schemaColumns), name)
	sch, err := scanSchema(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(types.CodeSchemaNotFound).With("name", name).
			Errorf("schema not found")
	}
	if err != nil {
		return nil, oops.With("operation", "get schema").With("name", name).Wrap(err)
	}
	return sch, nil
}

// GetByID retrieves a schema by its ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*StoredSchema, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM schemas WHERE id = $1`, schemaColumns), id)
	sch, err := scanSchema(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(types.CodeSchemaNotFound).With("id", id).
			Errorf("schema not found")
	}
	if err != nil {
		return nil, oops.With("operation", "get schema by id").With("id", id).Wrap(err)
	}
	return sch, nil
}

// Update modifies an existing schema. When the source text changes,
// the previous version is recorded in schema_versions and the version
// counter is incremented. Non-source edits update the row in place.
// pg_notify is sent in the same transaction.
func (s *PostgresStore) Update(ctx context.Context, sch *StoredSchema) error {
	if err := ValidateName(sch.Name); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("SCHEMA_UPDATE_FAILED").With("name", sch.Name).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Lock the row for optimistic concurrency and version history.
	var currentVersion int
	var currentSource string
	var schemaID string
	err = tx.QueryRow(ctx,
		`SELECT id, version, source FROM schemas WHERE name = $1 FOR UPDATE`, sch.Name,
	).Scan(&schemaID, &currentVersion, &currentSource)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code(types.CodeSchemaNotFound).With("name", sch.Name).
			Errorf("schema not found")
	}
	if err != nil {
		return oops.Code("SCHEMA_UPDATE_FAILED").With("name", sch.Name).Wrap(err)
	}

	newVersion := currentVersion
	if currentSource != sch.Source {
		newVersion = currentVersion + 1
		_, err = tx.Exec(ctx, `
			INSERT INTO schema_versions (id, schema_id, version, source, changed_by, change_note)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ulid.Make().String(), schemaID, currentVersion, currentSource, sch.CreatedBy, sch.ChangeNote)
		if err != nil {
			return oops.Code("SCHEMA_UPDATE_FAILED").With("name", sch.Name).With("operation", "version_history").Wrap(err)
		}
	}

	result, err := tx.Exec(ctx, `
		UPDATE schemas
		SET source = $2, enabled = $3, version = $4, updated_at = now()
		WHERE name = $1
	`, sch.Name, sch.Source, sch.Enabled, newVersion)
	if err != nil {
		return oops.Code("SCHEMA_UPDATE_FAILED").With("name", sch.Name).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(types.CodeSchemaNotFound).With("name", sch.Name).
			Errorf("schema not found")
	}

	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, schemaID)
	if err != nil {
		return oops.Code("SCHEMA_UPDATE_FAILED").With("name", sch.Name).With("operation", "notify").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("SCHEMA_UPDATE_FAILED").With("name", sch.Name).With("operation", "commit").Wrap(err)
	}

	sch.ID = schemaID
	sch.Version = newVersion
	return nil
}

// Delete removes a schema by name. CASCADE removes version history.
// pg_notify is sent in the same transaction.
func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("SCHEMA_DELETE_FAILED").With("name", name).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var schemaID string
	err = tx.QueryRow(ctx, `SELECT id FROM schemas WHERE name = $1`, name).Scan(&schemaID)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code(types.CodeSchemaNotFound).With("name", name).
			Errorf("schema not found")
	}
	if err != nil {
		return oops.Code("SCHEMA_DELETE_FAILED").With("name", name).Wrap(err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM schemas WHERE name = $1`, name)
	if err != nil {
		return oops.Code("SCHEMA_DELETE_FAILED").With("name", name).Wrap(err)
	}

	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, schemaID)
	if err != nil {
		return oops.Code("SCHEMA_DELETE_FAILED").With("name", name).With("operation", "notify").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("SCHEMA_DELETE_FAILED").With("name", name).With("operation", "commit").Wrap(err)
	}
	return nil
}

// List returns schemas matching the given options, ordered by name.
func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*StoredSchema, error) {
	var where []string
	var args []any
	argIdx := 1

	if opts.Enabled != nil {
		where = append(where, fmt.Sprintf("enabled = $%d", argIdx))
		args = append(args, *opts.Enabled)
		argIdx++ //nolint:ineffassign // keeps consistent pattern for future filter additions
	}

	query := fmt.Sprintf("SELECT %s FROM schemas", schemaColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, oops.With("operation", "list schemas").Wrap(err)
	}
	return scanSchemas(rows)
}
