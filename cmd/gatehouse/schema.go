// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/policy"
	"github.com/gatehouse/gatehouse/internal/policy/store"
)

// NewSchemaCmd creates the schema subcommand group for managing
// database-stored schemas.
func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage schemas stored in the database",
	}

	cmd.AddCommand(newSchemaPushCmd())
	cmd.AddCommand(newSchemaGetCmd())
	cmd.AddCommand(newSchemaListCmd())
	cmd.AddCommand(newSchemaDeleteCmd())

	return cmd
}

// newSchemaPushCmd creates or updates a named schema from a file. The
// source is compiled before it is written: a schema that does not
// compile never reaches the store.
func newSchemaPushCmd() *cobra.Command {
	var changeNote string
	var createdBy string
	var disabled bool

	cmd := &cobra.Command{
		Use:   "push <name> <schema-file>",
		Short: "Create or update a stored schema from a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			name, path := args[0], args[1]

			data, err := os.ReadFile(path)
			if err != nil {
				return oops.With("path", path).Wrapf(err, "read schema file")
			}
			source := string(data)

			set, warnings, err := policy.NewCompiler().Compile(source)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				cmd.Printf("warning: %s: %s\n", w.Model, w.Message)
			}

			pool, err := connectPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			st := store.NewPostgresStore(pool)

			sch := &store.StoredSchema{
				Name:       name,
				Source:     source,
				Enabled:    !disabled,
				ChangeNote: changeNote,
				CreatedBy:  createdBy,
			}

			existing, err := st.Get(cmd.Context(), name)
			switch {
			case store.IsNotFound(err):
				if err := st.Create(cmd.Context(), sch); err != nil {
					return err
				}
				cmd.Printf("created schema %q (version 1, %d models)\n", name, len(set.Models()))
			case err != nil:
				return err
			default:
				sch.ID = existing.ID
				if err := st.Update(cmd.Context(), sch); err != nil {
					return err
				}
				cmd.Printf("updated schema %q (version %d, %d models)\n", name, sch.Version, len(set.Models()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&changeNote, "note", "", "change note recorded in version history")
	cmd.Flags().StringVar(&createdBy, "by", "", "author recorded on the schema")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the schema in a disabled state")
	return cmd
}

func newSchemaGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a stored schema's source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pool, err := connectPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			sch, err := store.NewPostgresStore(pool).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Println(sch.Source)
			return nil
		},
	}
}

func newSchemaListCmd() *cobra.Command {
	var enabledOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pool, err := connectPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			var opts store.ListOptions
			if enabledOnly {
				t := true
				opts.Enabled = &t
			}
			schemas, err := store.NewPostgresStore(pool).List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			for _, s := range schemas {
				state := "enabled"
				if !s.Enabled {
					state = "disabled"
				}
				cmd.Printf("%s\tv%d\t%s\t%s\n", s.Name, s.Version, state, s.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "list enabled schemas only")
	return cmd
}

func newSchemaDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored schema and its version history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pool, err := connectPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.NewPostgresStore(pool).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted schema %q\n", args[0])
			return nil
		},
	}
}
