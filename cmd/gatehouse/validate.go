// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/policy"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Compile a schema and report rules and warnings",
		Long: `Compile a schema file without evaluating anything. Prints each
model with its rule count and any validation warnings (for example,
rules referencing fields the model does not declare). Exits non-zero
on parse or compile errors.`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return oops.With("path", args[0]).Wrapf(err, "read schema file")
	}

	set, warnings, err := policy.NewCompiler().Compile(string(data))
	if err != nil {
		return err
	}

	for _, name := range set.Models() {
		mp := set.Model(name)
		cmd.Printf("model %s: %d fields, %d rules\n",
			name, len(mp.Fields), len(mp.Rules))
	}
	for _, w := range warnings {
		cmd.Printf("warning: %s: %s\n", w.Model, w.Message)
	}
	cmd.Printf("schema OK: %d models, %d warnings\n", len(set.Models()), len(warnings))
	return nil
}
