package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Manage the database schema at DB_PATH.

Subcommands:
  up       - Apply pending migrations
  down     - Roll back migrations
  version  - Show the applied version`,
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db migrator) error {
				if err := db.MigrateUp(); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back applied migrations.

Examples:
  microblog migrate down            # roll back the last migration
  microblog migrate down --steps 4  # roll back everything`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db migrator) error {
				if err := db.MigrateDown(steps); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db migrator) error {
				return printVersion(cmd, db)
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

type migrator interface {
	MigrateUp() error
	MigrateDown(steps int) error
	SchemaVersion() (uint, bool, error)
}

func withDB(cmd *cobra.Command, fn func(db migrator) error) error {
	cfg, _, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	db, err := openDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printVersion(cmd *cobra.Command, db migrator) error {
	version, dirty, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", version)
	return nil
}
