package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/trackreco/internal/db"
)

func (a *app) newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back or inspect the embedded schema migrations.

Use force only to recover from a dirty state after a failed migration.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: a.withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
				if err := database.MigrateUp(); err != nil {
					return err
				}
				return printVersion(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: a.withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
				if err := database.MigrateDown(); err != nil {
					return err
				}
				return printVersion(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current and latest schema version",
			Args:  cobra.NoArgs,
			RunE: a.withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
				status, err := database.GetMigrationStatus()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "=== Migration Status ===")
				fmt.Fprintf(out, "Current version: %d\n", status.CurrentVersion)
				fmt.Fprintf(out, "Latest available: %d\n", status.LatestVersion)
				fmt.Fprintf(out, "Dirty: %v\n", status.Dirty)
				fmt.Fprintf(out, "Schema migrations table exists: %v\n", status.SchemaMigrationsExists)
				switch {
				case status.Dirty:
					fmt.Fprintln(out, "WARNING: database is in a dirty state; inspect it and run 'trackreco migrate force <version>'")
				case status.Pending() > 0:
					fmt.Fprintf(out, "%d migration(s) pending; run 'trackreco migrate up'\n", status.Pending())
				default:
					fmt.Fprintln(out, "Database is up to date")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version <n>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: a.withDB(func(cmd *cobra.Command, database *db.DB, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				if err := database.MigrateTo(uint(v)); err != nil {
					return err
				}
				return printVersion(cmd, database)
			}),
		},
		&cobra.Command{
			Use:   "force <n>",
			Short: "Set the recorded version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: a.withDB(func(cmd *cobra.Command, database *db.DB, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				if err := database.MigrateForce(v); err != nil {
					return err
				}
				return printVersion(cmd, database)
			}),
		},
	)
	return cmd
}

// withDB opens the database without migrating it and closes it afterwards.
func (a *app) withDB(fn func(*cobra.Command, *db.DB, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		database, err := db.OpenDB(a.v.GetString("db"))
		if err != nil {
			return err
		}
		defer database.Close()
		return fn(cmd, database, args)
	}
}

func printVersion(cmd *cobra.Command, database *db.DB) error {
	v, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d (dirty: %v)\n", v, dirty)
	return nil
}
