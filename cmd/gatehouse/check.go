// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/policy"
	"github.com/gatehouse/gatehouse/internal/policy/audit"
	"github.com/gatehouse/gatehouse/internal/policy/loader"
	"github.com/gatehouse/gatehouse/internal/policy/types"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// checkFlags holds the flag values for the check command.
type checkFlags struct {
	schemaFile string
	entity     string
	op         string
	actor      string
	actorFile  string
	record     string
	recordFile string
	explain    bool
}

// NewCheckCmd creates the check subcommand.
func NewCheckCmd() *cobra.Command {
	var flags checkFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one access request against a schema",
		Long: `Evaluate an access request (entity, operation, actor, record) against
the access rules of a schema and print the decision as JSON.

Actor and record are JSON or YAML documents, inline or from a file. An
absent actor means an unauthenticated request.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.schemaFile, "schema-file", "", "schema file path")
	cmd.Flags().StringVar(&flags.entity, "entity", "", "entity type name (required)")
	cmd.Flags().StringVar(&flags.op, "op", "", "operation: create, read, update, delete (required)")
	cmd.Flags().StringVar(&flags.actor, "actor", "", "actor document (inline JSON/YAML)")
	cmd.Flags().StringVar(&flags.actorFile, "actor-file", "", "actor document file")
	cmd.Flags().StringVar(&flags.record, "record", "", "record document (inline JSON/YAML)")
	cmd.Flags().StringVar(&flags.recordFile, "record-file", "", "record document file")
	cmd.Flags().BoolVar(&flags.explain, "explain", false, "include per-rule match results")
	_ = cmd.MarkFlagRequired("entity") //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("op")     //nolint:errcheck // flag exists

	return cmd
}

// decisionOutput is the JSON shape printed by check.
type decisionOutput struct {
	Allowed bool              `json:"allowed"`
	Effect  string            `json:"effect"`
	Reason  string            `json:"reason"`
	Rule    string            `json:"rule,omitempty"`
	Matches []types.RuleMatch `json:"matches,omitempty"`
}

func runCheck(cmd *cobra.Command, flags checkFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	op, err := types.ParseOperation(flags.op)
	if err != nil {
		return err
	}

	actor, err := loadActor(flags.actor, flags.actorFile)
	if err != nil {
		return err
	}
	record, err := loadDocument(flags.record, flags.recordFile)
	if err != nil {
		return err
	}

	req, err := types.NewAccessRequest(flags.entity, op, actor, record)
	if err != nil {
		return err
	}

	ld, err := buildLoader(cfg, flags.schemaFile)
	if err != nil {
		return err
	}
	if err := ld.Reload(ctx); err != nil {
		return err
	}

	var opts []policy.EngineOption
	if cfg.Audit.Enabled {
		auditLogger, err := buildAuditLogger(cfg.Audit)
		if err != nil {
			return err
		}
		defer auditLogger.Close() //nolint:errcheck // best-effort flush on exit
		opts = append(opts, policy.WithAuditLogger(auditLogger))
	}

	engine := policy.NewEngine(ld, opts...)
	decision, err := engine.Decide(ctx, req)
	if err != nil {
		return err
	}

	out := decisionOutput{
		Allowed: decision.IsAllowed(),
		Effect:  decision.Effect.String(),
		Reason:  decision.Reason,
		Rule:    decision.Rule,
	}
	if flags.explain {
		out.Matches = decision.Matches
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return oops.Wrapf(err, "encode decision")
	}
	return nil
}

// buildLoader resolves where schema source comes from: an explicit
// --schema-file flag, the configured file, or the named database schema.
func buildLoader(cfg config.Config, schemaFile string) (*loader.Loader, error) {
	compiler := policy.NewCompiler()

	switch {
	case schemaFile != "":
		return loader.New(loader.NewFileSource(schemaFile), compiler,
			loader.WithStalenessThreshold(cfg.Schema.StalenessThreshold)), nil
	case cfg.Schema.File != "":
		return loader.New(loader.NewFileSource(cfg.Schema.File), compiler,
			loader.WithStalenessThreshold(cfg.Schema.StalenessThreshold)), nil
	case cfg.Schema.Name != "":
		src, err := databaseSource(cfg)
		if err != nil {
			return nil, err
		}
		return loader.New(src, compiler,
			loader.WithStalenessThreshold(cfg.Schema.StalenessThreshold)), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			Errorf("no schema source: set --schema-file, schema.file, or schema.name")
	}
}

// buildAuditLogger wires the file-backed audit trail from config.
func buildAuditLogger(cfg config.AuditConfig) (*audit.Logger, error) {
	mode, err := audit.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	for _, p := range []string{cfg.LogPath, cfg.WALPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := xdg.EnsureDir(dir); err != nil {
				return nil, oops.With("path", p).Wrap(err)
			}
		}
	}
	writer, err := audit.NewFileWriter(cfg.LogPath)
	if err != nil {
		return nil, err
	}
	return audit.NewLogger(mode, writer, cfg.WALPath), nil
}

// loadActor parses an actor document. Both inline and file forms
// accept JSON or YAML. The "id" key becomes the actor identity; all
// other keys become attributes.
func loadActor(inline, path string) (*types.Actor, error) {
	doc, err := loadDocument(inline, path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil // unauthenticated request
	}

	actor := &types.Actor{Attrs: make(map[string]any, len(doc))}
	for k, v := range doc {
		if k == "id" {
			actor.ID = v
			continue
		}
		actor.Attrs[k] = v
	}
	return actor, nil
}

// loadDocument parses a JSON/YAML object from an inline string or a
// file. Returns nil when neither is given.
func loadDocument(inline, path string) (map[string]any, error) {
	var data []byte
	switch {
	case inline != "" && path != "":
		return nil, oops.Code("CONFIG_INVALID").
			Errorf("inline document and document file are mutually exclusive")
	case inline != "":
		data = []byte(inline)
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.With("path", path).Wrapf(err, "read document file")
		}
		data = b
	default:
		return nil, nil
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, oops.Wrapf(err, "parse document")
	}
	return doc, nil
}
