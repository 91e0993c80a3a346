package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the attendance HTTP server.
The server accepts face enrollments and camera snapshots from a kiosk page,
logs attendance for recognized employees and exposes the attendance log.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides PORT/WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies flag overrides on top of the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Server.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Server.Host = host
	}
}

// warmIndex drops stale index artifacts and builds the index in the background
// so the first snapshot does not pay for it.
func warmIndex(ctx context.Context, a *app) {
	removed := a.enrollments.Invalidator().Invalidate()
	if removed > 0 {
		fmt.Printf("Cleared %d stale index files\n", removed)
	}

	if empty, err := a.enrollments.IsEmpty(); err == nil && empty {
		fmt.Printf("No enrollments yet in %s, every face will be reported as Unknown\n", a.enrollments.Root())
		return
	}

	go func() {
		count, err := a.searcher.Warm(ctx)
		if err != nil {
			fmt.Printf("Warning: failed to build recognition index: %v\n", err)
			return
		}
		fmt.Printf("Recognition index ready with %d reference images\n", count)
	}()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	warmIndex(ctx, a)

	server := web.NewServer(cfg, web.Deps{
		Store:     a.store,
		Enroller:  a.enrollments,
		Processor: a.processor,
		Reindexer: a.searcher,
		Logger:    a.logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting attendance server on http://%s\n", server.Addr())
	fmt.Printf("Model: %s, threshold: %.2f, cooldown: %s\n",
		cfg.Recognition.Model, cfg.Recognition.Threshold, cfg.Attendance.Cooldown)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
