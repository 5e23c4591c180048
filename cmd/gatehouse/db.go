// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/policy/loader"
	"github.com/gatehouse/gatehouse/internal/policy/store"
)

// connectPool opens a pgx connection pool for the configured database.
func connectPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	return pool, nil
}

// databaseSource builds a loader source that reads the named schema
// from the database store.
func databaseSource(cfg config.Config) (loader.Source, error) {
	pool, err := connectPool(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return store.NewSchemaSource(store.NewPostgresStore(pool), cfg.Schema.Name), nil
}
