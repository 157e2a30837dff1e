package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/portsweep/internal/db"
)

var migrateForce bool

// migrateCmd applies pending schema migrations.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
			applied, err := m.Up(ctx)
			if err != nil {
				return err
			}
			writeApplied(cmd.OutOrStdout(), applied)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations have been applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
			states, err := m.Status(ctx)
			if err != nil {
				return err
			}
			return writeMigrationTable(cmd.OutOrStdout(), states)
		})
	},
}

var migrateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every portsweep table and re-apply all migrations",
	Long: `Drop the jobs, results and history tables and rebuild the schema.
All stored scans are lost. Requires --force.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !migrateForce {
			return fmt.Errorf("refusing to reset the database without --force")
		}
		return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
			applied, err := m.Reset(ctx)
			if err != nil {
				return err
			}
			writeApplied(cmd.OutOrStdout(), applied)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd, migrateResetCmd)
	migrateResetCmd.Flags().BoolVar(&migrateForce, "force", false, "confirm that all data will be deleted")
}

func withMigrator(parent context.Context, fn func(ctx context.Context, m *db.Migrator) error) error {
	ctx := parent
	if ctx == nil {
		ctx = context.Background()
	}
	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()
	return fn(ctx, db.NewMigrator(database.DB))
}

func writeApplied(w io.Writer, applied []string) {
	if len(applied) == 0 {
		fmt.Fprintln(w, "Database schema is up to date")
		return
	}
	for _, name := range applied {
		fmt.Fprintf(w, "Applied %s\n", name)
	}
}

func writeMigrationTable(w io.Writer, states []db.MigrationState) error {
	table := tablewriter.NewWriter(w)
	table.Header("Migration", "Applied", "Applied At", "Modified")
	for _, s := range states {
		appliedAt := "-"
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.Local().Format(time.DateTime)
		}
		if err := table.Append([]string{
			s.Name,
			yesNo(s.Applied),
			appliedAt,
			yesNo(s.Modified),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
