package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tenantguard/internal/platform/config"
	"tenantguard/internal/platform/database"
	"tenantguard/migrations"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Apply the embedded Postgres migrations (uses $DATABASE_URL)"}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := openDatabase()
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := database.Migrate(cmd.Context(), pool.DB(), migrations.FS)
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether each is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := openDatabase()
			if err != nil {
				return err
			}
			defer pool.Close()

			status, err := database.Migrations(cmd.Context(), pool.DB(), migrations.FS)
			if err != nil {
				return err
			}
			for _, s := range status {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", state, s.Version)
			}
			return nil
		},
	})
	return cmd
}

func openDatabase() (*database.Pool, error) {
	cfg := config.FromEnv().Database
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	return database.New(cfg)
}
