package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
)

const defaultJobListLimit = 20

var (
	jobsStatus  string
	jobsLimit   int
	jobsOutput  string
	jobsPreview int
)

// jobsCmd groups commands that inspect persisted background scans.
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect background scan jobs stored in the database",
	Long: `List, inspect and export scan jobs created through the API or by
schedules. These commands read the database configured in the
"database" section and never start scans themselves.`,
}

var jobsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List recent scan jobs",
	Example: `  portsweep jobs list --status running`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status := db.JobStatus(strings.ToLower(jobsStatus))
		if status != "" && !status.Valid() {
			return errors.NewConfigFieldError(errors.CodeValidation, "unknown job status", "status", jobsStatus)
		}
		return withStore(cmd.Context(), func(ctx context.Context, store *db.Store) error {
			list, total, err := store.ListJobs(ctx, db.JobFilter{Status: status, Limit: jobsLimit})
			if err != nil {
				return err
			}
			if err := writeJobTable(cmd.OutOrStdout(), list); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d jobs\n", len(list), total)
			return nil
		})
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one job and its result summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(ctx context.Context, store *db.Store) error {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				return err
			}
			writeJobDetail(cmd.OutOrStdout(), job)

			history, err := store.GetHistory(ctx, id)
			switch {
			case errors.IsNotFound(err):
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Open:           %d\n", history.OpenCount)
			fmt.Fprintf(cmd.OutOrStdout(), "Open|filtered:  %d\n", history.OpenFilteredCount)
			fmt.Fprintf(cmd.OutOrStdout(), "Closed:         %d\n", history.ClosedCount)
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered:       %d\n", history.FilteredCount)
			fmt.Fprintf(cmd.OutOrStdout(), "Active hosts:   %d/%d\n", history.HostsActive, history.HostsScanned)
			return nil
		})
	},
}

var jobsResultsCmd = &cobra.Command{
	Use:   "results ID",
	Short: "Print a job's results grouped by status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		preview := appConfig.Scanning.PreviewLimit
		if cmd.Flags().Changed("preview") {
			preview = jobsPreview
		}
		return withStore(cmd.Context(), func(ctx context.Context, store *db.Store) error {
			results, err := store.AllResults(ctx, id)
			if err != nil {
				return err
			}
			return scanning.WriteReport(cmd.OutOrStdout(), scanning.Group(results), preview)
		})
	},
}

var jobsExportCmd = &cobra.Command{
	Use:     "export ID",
	Short:   "Export a job's results as CSV",
	Example: `  portsweep jobs export 3f1c... -o results.csv`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseJobID(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(ctx context.Context, store *db.Store) error {
			results, err := store.AllResults(ctx, id)
			if err != nil {
				return err
			}
			if jobsOutput == "" {
				scanning.SortResults(results)
				return scanning.WriteCSV(cmd.OutOrStdout(), results)
			}
			if err := writeCSVFile(jobsOutput, results); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", jobsOutput)
			return nil
		})
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate job statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store *db.Store) error {
			stats, err := store.Statistics(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Jobs:          %d\n", stats.TotalJobs)
			fmt.Fprintf(w, "  completed:   %d\n", stats.CompletedJobs)
			fmt.Fprintf(w, "  running:     %d\n", stats.RunningJobs)
			fmt.Fprintf(w, "  failed:      %d\n", stats.FailedJobs)
			fmt.Fprintf(w, "  cancelled:   %d\n", stats.CancelledJobs)
			fmt.Fprintf(w, "Results:       %d\n", stats.TotalResults)
			fmt.Fprintf(w, "Open ports:    %d\n", stats.OpenPorts)
			fmt.Fprintf(w, "Success rate:  %.1f%%\n", stats.SuccessRate)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsResultsCmd, jobsExportCmd, jobsStatsCmd)

	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending, running, completed, failed, cancelled)")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", defaultJobListLimit, "maximum number of jobs to list")
	jobsResultsCmd.Flags().IntVar(&jobsPreview, "preview", 0, "closed/filtered rows to print per bucket (default from config)")
	jobsExportCmd.Flags().StringVarP(&jobsOutput, "output", "o", "", "write to a file instead of stdout")
}

// openDatabase connects without running migrations.
func openDatabase(ctx context.Context) (*db.DB, error) {
	return db.Connect(ctx, &appConfig.Database)
}

// withStore opens the database without migrating and runs fn against it.
func withStore(parent context.Context, fn func(ctx context.Context, store *db.Store) error) error {
	ctx := parent
	if ctx == nil {
		ctx = context.Background()
	}
	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()
	return fn(ctx, db.NewStore(database))
}

func parseJobID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, errors.NewConfigFieldError(errors.CodeValidation, "invalid job ID", "id", raw)
	}
	return id, nil
}

func writeJobTable(w io.Writer, list []*db.ScanJob) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Target", "Status", "Progress", "Probes", "Created", "Duration")
	for _, job := range list {
		if err := table.Append([]string{
			job.ID.String(),
			job.Target,
			string(job.Status),
			strconv.Itoa(job.Progress) + "%",
			fmt.Sprintf("%d/%d", job.CompletedProbes, job.TotalProbes),
			job.CreatedAt.Local().Format(time.DateTime),
			formatDuration(job.Duration()),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeJobDetail(w io.Writer, job *db.ScanJob) {
	fmt.Fprintf(w, "ID:             %s\n", job.ID)
	fmt.Fprintf(w, "Target:         %s\n", job.Target)
	fmt.Fprintf(w, "Ports:          %s\n", job.Ports)
	fmt.Fprintf(w, "Protocols:      %s\n", strings.Join(job.Protocols, ", "))
	fmt.Fprintf(w, "Timeout:        %ds\n", job.TimeoutSeconds)
	fmt.Fprintf(w, "Concurrency:    %d\n", job.Concurrency)
	fmt.Fprintf(w, "Status:         %s\n", job.Status)
	fmt.Fprintf(w, "Progress:       %d%% (%d/%d probes)\n", job.Progress, job.CompletedProbes, job.TotalProbes)
	fmt.Fprintf(w, "Created:        %s\n", job.CreatedAt.Local().Format(time.DateTime))
	if job.StartedAt != nil {
		fmt.Fprintf(w, "Duration:       %s\n", formatDuration(job.Duration()))
	}
	if job.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:          %s\n", *job.ErrorMessage)
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
