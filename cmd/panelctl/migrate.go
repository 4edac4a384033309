package main

import (
	"fmt"

	"github.com/lalith-99/panelwatch/internal/config"
	"github.com/lalith-99/panelwatch/internal/db"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	withDB := func(run func(cmd *cobra.Command, database *db.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate needs store=%s, got %s", config.StorePostgres, c.cfg.Store)
			}
			database, err := db.New(cmd.Context(), c.cfg.DatabaseURL, c.logger)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer database.Close()
			return run(cmd, database)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, database *db.DB) error {
				return database.Migrate(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, database *db.DB) error {
				return database.MigrationStatus(cmd.Context())
			}),
		},
	)
	return cmd
}
