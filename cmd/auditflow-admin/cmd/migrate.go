package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auditflow/api/internal/infra/postgres"
	"github.com/auditflow/api/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, closeDB, err := newMigrationRunner()
		if err != nil {
			return err
		}
		defer closeDB()

		applied, err := runner.Up(cmd.Context())
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
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, closeDB, err := newMigrationRunner()
		if err != nil {
			return err
		}
		defer closeDB()

		version, err := runner.Down(cmd.Context())
		if err != nil {
			return err
		}
		if version == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", version)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and when they were applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(flagOutput); err != nil {
			return err
		}
		runner, closeDB, err := newMigrationRunner()
		if err != nil {
			return err
		}
		defer closeDB()

		states, err := runner.Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch flagOutput {
		case outputJSON:
			return printJSON(out, states)
		case outputYAML:
			return printYAML(out, states)
		}
		t := newTable(out, "VERSION", "NAME", "APPLIED")
		for _, s := range states {
			applied := "pending"
			if s.AppliedAt != nil {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			t.AddRow(s.Version, s.Name, applied)
		}
		return t.Flush()
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func newMigrationRunner() (*migrations.Runner, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	runner := migrations.NewRunner(db.DB, migrations.Files(), newLogger())
	return runner, func() { _ = db.Close() }, nil
}
