package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/csfam/pawprint/internal/pawprint/config"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

func newMigrateCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL session schema",
		Long: `Apply or roll back the session table migrations in the schema named by
storage.postgres.schema. The schema is created if it does not exist.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, o, func(mg *sessionstore.Migrator) error {
				return mg.Up()
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, o, func(mg *sessionstore.Migrator) error {
				return mg.Down(steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, o, func(*sessionstore.Migrator) error { return nil })
		},
	})
	return cmd
}

// withMigrator runs fn against the configured database and reports the
// resulting schema version.
func withMigrator(cmd *cobra.Command, o *rootOptions, fn func(*sessionstore.Migrator) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Backend != config.BackendPostgres {
		return fmt.Errorf("migrations need storage.backend = %q", config.BackendPostgres)
	}
	pg := cfg.Storage.Postgres
	mg, err := sessionstore.NewMigrator(cmd.Context(), pg.DSN, pg.Schema)
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := fn(mg); err != nil {
		return err
	}
	v, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	if o.jsonOutput {
		printJSON(cmd.OutOrStdout(), map[string]any{"schema": pg.Schema, "version": v, "dirty": dirty})
		return nil
	}
	okLabel.Fprintf(cmd.OutOrStdout(), "OK ")
	fmt.Fprintf(cmd.OutOrStdout(), "schema %s at version %d", pg.Schema, v)
	if dirty {
		errorLabel.Fprintf(cmd.OutOrStdout(), " (dirty)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
