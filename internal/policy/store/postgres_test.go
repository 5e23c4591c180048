// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresStore(mock)
}

func schemaRows(version int) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "name", "source", "enabled", "created_by", "version", "created_at", "updated_at",
	}).AddRow("01J0000000000000000000TEST", "blog", "model Post {}", true, "system", version, now, now)
}

func TestPostgresStore_Get(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectQuery(`FROM schemas WHERE name`).
		WithArgs("blog").
		WillReturnRows(schemaRows(1))

	got, err := ps.Get(context.Background(), "blog")
	require.NoError(t, err)
	assert.Equal(t, "blog", got.Name)
	assert.Equal(t, "model Post {}", got.Source)
	assert.Equal(t, 1, got.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectQuery(`FROM schemas WHERE name`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := ps.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByID_NotFound(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectQuery(`FROM schemas WHERE id`).
		WithArgs("01NONEXISTENT").
		WillReturnError(pgx.ErrNoRows)

	_, err := ps.GetByID(context.Background(), "01NONEXISTENT")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO schemas`).
		WithArgs(pgxmock.AnyArg(), "blog", "model Post {}", true, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SELECT pg_notify`).
		WithArgs(NotifyChannel, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	s := &StoredSchema{Name: "blog", Source: "model Post {}", Enabled: true}
	require.NoError(t, ps.Create(context.Background(), s))
	assert.NotEmpty(t, s.ID, "create assigns a ULID")
	assert.Equal(t, 1, s.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_Conflict(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO schemas`).
		WithArgs(pgxmock.AnyArg(), "blog", "model Post {}", false, "").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	mock.ExpectRollback()

	err := ps.Create(context.Background(), &StoredSchema{Name: "blog", Source: "model Post {}"})
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_InvalidName(t *testing.T) {
	_, ps := newMockStore(t)

	err := ps.Create(context.Background(), &StoredSchema{Name: "bad name"})
	require.Error(t, err, "name validation happens before touching the database")
}

func TestPostgresStore_Update_NotFound(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schemas WHERE name .+ FOR UPDATE`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := ps.Update(context.Background(), &StoredSchema{Name: "missing", Source: "model Post {}"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_SourceChangeBumpsVersion(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schemas WHERE name .+ FOR UPDATE`).
		WithArgs("blog").
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "source"}).
			AddRow("01J0000000000000000000TEST", 1, "model Post {}"))
	mock.ExpectExec(`INSERT INTO schema_versions`).
		WithArgs(pgxmock.AnyArg(), "01J0000000000000000000TEST", 1, "model Post {}", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE schemas`).
		WithArgs("blog", "model Post {}\nmodel Comment {}", true, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SELECT pg_notify`).
		WithArgs(NotifyChannel, "01J0000000000000000000TEST").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	s := &StoredSchema{Name: "blog", Source: "model Post {}\nmodel Comment {}", Enabled: true}
	require.NoError(t, ps.Update(context.Background(), s))
	assert.Equal(t, 2, s.Version)
	assert.Equal(t, "01J0000000000000000000TEST", s.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Update_NoSourceChangeKeepsVersion(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schemas WHERE name .+ FOR UPDATE`).
		WithArgs("blog").
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "source"}).
			AddRow("01J0000000000000000000TEST", 3, "model Post {}"))
	mock.ExpectExec(`UPDATE schemas`).
		WithArgs("blog", "model Post {}", false, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SELECT pg_notify`).
		WithArgs(NotifyChannel, "01J0000000000000000000TEST").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	s := &StoredSchema{Name: "blog", Source: "model Post {}", Enabled: false}
	require.NoError(t, ps.Update(context.Background(), s))
	assert.Equal(t, 3, s.Version, "unchanged source must not bump the version")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM schemas WHERE name`).
		WithArgs("blog").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("01J0000000000000000000TEST"))
	mock.ExpectExec(`DELETE FROM schemas`).
		WithArgs("blog").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`SELECT pg_notify`).
		WithArgs(NotifyChannel, "01J0000000000000000000TEST").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	require.NoError(t, ps.Delete(context.Background(), "blog"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete_NotFound(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM schemas WHERE name`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := ps.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List_FilterEnabled(t *testing.T) {
	mock, ps := newMockStore(t)

	mock.ExpectQuery(`FROM schemas WHERE enabled`).
		WithArgs(true).
		WillReturnRows(schemaRows(1))

	enabled := true
	schemas, err := ps.List(context.Background(), ListOptions{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "blog", schemas[0].Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}
