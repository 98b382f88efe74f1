package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tahopetis/crate/internal/migrate"
)

var migrateTo int64

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *migrate.Migrator) error {
			if migrateTo > 0 {
				return m.UpTo(cmd.Context(), migrateTo)
			}
			return m.Up(cmd.Context())
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *migrate.Migrator) error {
			return m.Down(cmd.Context())
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *migrate.Migrator) error {
			if err := m.Status(cmd.Context()); err != nil {
				return err
			}
			v, err := m.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", v)
			return nil
		})
	},
}

func withMigrator(cmd *cobra.Command, fn func(m *migrate.Migrator) error) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	zl, err := migrate.NewLogger(e.cfg.Environment == "production")
	if err != nil {
		return fmt.Errorf("migration logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	return fn(migrate.NewMigrator(e.sqldb, zl))
}

func init() {
	migrateUpCmd.Flags().Int64Var(&migrateTo, "to", 0, "stop at this version instead of the latest")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
