package admin

import (
	"errors"
	"fmt"
	"log"

	"github.com/cloo-solutions/reposcout/internal/config"
	"github.com/cloo-solutions/reposcout/internal/database"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Apply, roll back or inspect the reposcout schema migrations",
	}

	cmd.PersistentFlags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			source, _ := cmd.Flags().GetString("migrations")
			return runMigrations(cfg.DatabaseURL, source)
		},
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  "Roll back the given number of migrations (default 1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			source, _ := cmd.Flags().GetString("migrations")
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			return database.WithMigrator(cfg.DatabaseURL, source, func(m *migrate.Migrate) error {
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("failed to roll back migrations: %w", err)
				}
				log.Printf("migrations: rolled back %d step(s)", steps)
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(downCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			source, _ := cmd.Flags().GetString("migrations")
			return database.WithMigrator(cfg.DatabaseURL, source, func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("no migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to get migration version: %w", err)
				}
				fmt.Printf("version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func runMigrations(databaseURL, source string) error {
	state, err := database.Migrate(databaseURL, source)
	if err != nil {
		return err
	}
	if state.Applied {
		log.Printf("migrations: applied, schema at version %d", state.Version)
	} else {
		log.Printf("migrations: schema already at version %d", state.Version)
	}
	return nil
}
