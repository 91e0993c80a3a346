package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <image>",
	Short: "Enroll a reference face image for an employee",
	Long: `Store a reference image for an employee and record them in the database.
Enrolling the same name again adds another reference image.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("employee-id", "", "Employee ID")
	enrollCmd.Flags().String("department", "", "Department")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	image, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	name, path, err := a.enrollments.Save(ctx, args[0], image)
	if err != nil {
		return fmt.Errorf("failed to enroll %q: %w", args[0], err)
	}

	added, err := a.store.AddEmployee(ctx, database.EmployeeRecord{
		Name:       name,
		EmployeeID: strings.TrimSpace(mustGetString(cmd, "employee-id")),
		Department: strings.TrimSpace(mustGetString(cmd, "department")),
	})

	fmt.Printf("Face registered for %s (%s)\n", name, path)
	switch {
	case err != nil:
		a.logger.Error("face enrolled but employee record failed", "name", name, "error", err)
	case !added:
		fmt.Printf("%s was already enrolled, added another reference image\n", name)
	}
	return nil
}
