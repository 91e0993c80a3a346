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

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "List enrolled employees",
	RunE:  runEmployees,
}

func init() {
	rootCmd.AddCommand(employeesCmd)
}

func runEmployees(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	employees, err := store.ListEmployees(ctx)
	if err != nil {
		return fmt.Errorf("failed to list employees: %w", err)
	}

	if len(employees) == 0 {
		fmt.Println("No employees enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMPLOYEE ID\tDEPARTMENT\tENROLLED")
	fmt.Fprintln(w, "----\t-----------\t----------\t--------")

	for _, e := range employees {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.EmployeeID, e.Department, e.CreatedAt.UTC().Format(constants.TimestampLayout))
	}

	w.Flush()

	fmt.Printf("\nTotal: %d employees\n", len(employees))

	return nil
}
