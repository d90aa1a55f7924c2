package main

import (
	"fmt"
	"os"

	"todo-api/config"
	"todo-api/todo/infra"

	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			// Open ensures the schema.
			db, err := infra.Open(cmd.Context(), infra.Options{
				Type:   cfg.Database.Type,
				DSN:    cfg.Database.DSN,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			if err := db.Close(); err != nil {
				return fmt.Errorf("close database: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Database.Type)
			return nil
		},
	}
	cmd.Flags().String("db-type", "", "database type: sqlite, postgres or mysql (database.type)")
	cmd.Flags().String("db-dsn", "", "database DSN (database.dsn)")
	return cmd
}
