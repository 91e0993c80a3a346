package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/spf13/cobra"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  "Print build metadata, compiled-in capture support and the recognition settings taken from the environment.",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout(), config.Load())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func printVersion(w io.Writer, cfg *config.Config) {
	webcam := "no (build with -tags gocv)"
	if capture.WebcamSupported {
		webcam = "yes"
	}

	fmt.Fprintf(w, "attendance %s\n", Version)
	fmt.Fprintf(w, "  Commit:    %s\n", CommitSHA)
	fmt.Fprintf(w, "  Built:     %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:        %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  Webcam:    %s\n", webcam)
	fmt.Fprintf(w, "  Model:     %s (threshold %.2f)\n", cfg.Recognition.Model, cfg.Recognition.Threshold)
	fmt.Fprintf(w, "  Database:  %s\n", database.BackendFor(cfg.Database.URL))
	fmt.Fprintf(w, "  Embedding: %s\n", cfg.Embedding.URL)
}
