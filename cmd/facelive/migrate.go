package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/storage/pgstore"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres enrollment schema",
	}

	step := func(use, short string, fn func(*pgstore.Migrator, *cobra.Command) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := a.migrator()
				if err != nil {
					return err
				}
				defer func() { _ = m.Close() }()
				return fn(m, cmd)
			},
		}
	}

	cmd.AddCommand(
		step("up", "Apply all pending migrations", func(m *pgstore.Migrator, cmd *cobra.Command) error {
			if err := m.Up(); err != nil {
				return err
			}
			logging.Info("Migrations applied")
			return printVersion(m, cmd)
		}),
		step("down", "Revert all migrations", func(m *pgstore.Migrator, cmd *cobra.Command) error {
			if err := m.Down(); err != nil {
				return err
			}
			logging.Info("Migrations reverted")
			return nil
		}),
		step("version", "Show the current schema version", printVersion),
	)
	return cmd
}

func (a *app) migrator() (*pgstore.Migrator, error) {
	if a.cfg.Storage.DatabaseURL == "" {
		return nil, usageError(errors.New("no database configured (set storage.database_url or --db)"))
	}
	return pgstore.NewMigrator(a.cfg.Storage.DatabaseURL)
}

func printVersion(m *pgstore.Migrator, cmd *cobra.Command) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (%s)\n", v, state)
	return nil
}
