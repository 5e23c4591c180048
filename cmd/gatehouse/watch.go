// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/policy/loader"
	"github.com/gatehouse/gatehouse/internal/policy/store"
)

// NewWatchCmd creates the watch subcommand.
func NewWatchCmd() *cobra.Command {
	var schemaFile string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a schema source and recompile on change",
		Long: `Continuously recompile the schema whenever its source changes.
A file source is watched through filesystem events; a database source
through PostgreSQL notifications. Compile results are logged. Stops on
SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, schemaFile)
		},
	}

	cmd.Flags().StringVar(&schemaFile, "schema-file", "", "schema file path")
	return cmd
}

func runWatch(cmd *cobra.Command, schemaFile string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ld, err := buildLoader(cfg, schemaFile)
	if err != nil {
		return err
	}
	if err := ld.Reload(ctx); err != nil {
		return err
	}
	logSnapshot(ctx, ld)

	notifier, err := buildNotifier(cfg, schemaFile)
	if err != nil {
		return err
	}
	if err := ld.Start(ctx, notifier); err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		obs := observability.NewServer(cfg.Metrics.Addr, func() bool {
			return !ld.IsStale()
		})
		if _, err := obs.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Stop(stopCtx) //nolint:errcheck // shutdown path
		}()
	}

	slog.InfoContext(ctx, "watching schema source")
	<-ctx.Done()
	ld.Wait()
	return nil
}

// buildNotifier pairs the schema source with its change signal.
func buildNotifier(cfg config.Config, schemaFile string) (loader.Notifier, error) {
	switch {
	case schemaFile != "":
		return loader.NewFileSource(schemaFile), nil
	case cfg.Schema.File != "":
		return loader.NewFileSource(cfg.Schema.File), nil
	case cfg.Schema.Name != "":
		return store.NewPgListener(cfg.Database.URL), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			Errorf("no schema source: set --schema-file, schema.file, or schema.name")
	}
}

// logSnapshot reports what the current snapshot contains.
func logSnapshot(ctx context.Context, ld *loader.Loader) {
	snap := ld.Snapshot()
	if snap == nil {
		return
	}
	slog.InfoContext(ctx, "schema compiled",
		"models", len(snap.Policies.Models()),
		"warnings", len(snap.Warnings),
		"loaded_at", snap.LoadedAt)
}
