package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the newest attendance records",
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().Int("limit", 0, "Number of records to show (default ATTENDANCE_LOG_LIMIT)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	limit := mustGetInt(cmd, "limit")
	if limit <= 0 {
		limit = cfg.Attendance.LogLimit
	}
	limit = min(limit, constants.MaxLogLimit)

	store, err := openStore(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListAttendance(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list attendance: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No attendance records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tNAME")
	fmt.Fprintln(w, "---------\t----")

	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\n", r.Timestamp.UTC().Format(constants.TimestampLayout), r.Name)
	}

	w.Flush()

	fmt.Printf("\nTotal: %d records\n", len(records))

	return nil
}
