package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Recognize faces from a camera continuously",
	Long: `Read frames from a camera and log attendance for recognized employees.

The source is taken from --device, then CAPTURE_SNAPSHOT_URL, then CAPTURE_DEVICE:
  - an http(s) URL is polled as a snapshot camera
  - an existing directory is replayed frame by frame
  - anything else is opened as a webcam (requires a build with -tags gocv)

Type "scan" and Enter to force recognition of the next frame, "q" to quit.`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("device", "", "Snapshot URL, frame directory or webcam device")
	captureCmd.Flags().Int("skip-frames", -1, "Frames that reuse the previous result (overrides CAPTURE_SKIP_FRAMES)")
	captureCmd.Flags().Duration("interval", 0, "Delay between frames (overrides CAPTURE_INTERVAL)")
	captureCmd.Flags().Bool("no-stdin", false, "Do not read scan/quit commands from stdin")
}

func captureDevice(cmd *cobra.Command, cfg *config.Config) string {
	if device := mustGetString(cmd, "device"); device != "" {
		return device
	}
	if cfg.Capture.SnapshotURL != "" {
		return cfg.Capture.SnapshotURL
	}
	if cfg.Capture.Device != "" {
		return cfg.Capture.Device
	}
	return "0"
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if skip := mustGetInt(cmd, "skip-frames"); skip >= 0 {
		cfg.Capture.SkipFrames = skip
	}
	if interval := mustGetDuration(cmd, "interval"); interval > 0 {
		cfg.Capture.Interval = interval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.enrollments.Exists() {
		return fmt.Errorf("enrollment directory %q not found", a.enrollments.Root())
	}
	a.enrollments.Invalidator().Invalidate()

	count, err := a.searcher.Warm(ctx)
	if err != nil {
		return fmt.Errorf("failed to build recognition index: %w", err)
	}
	fmt.Printf("Recognition index ready with %d reference images\n", count)

	device := captureDevice(cmd, cfg)
	source, err := capture.Open(device, cfg.Recognition.Timeout)
	if err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}
	defer source.Close()

	loop := capture.NewLoop(source, a.processor, capture.Config{
		SkipFrames: cfg.Capture.SkipFrames,
		Interval:   cfg.Capture.Interval,
	}, a.logger)

	if !mustGetBool(cmd, "no-stdin") {
		go capture.ReadCommands(ctx, os.Stdin, loop.Commands())
	}

	fmt.Printf("Capturing from %s (model %s, every %d frames)\n", device, cfg.Recognition.Model, cfg.Capture.SkipFrames+1)
	fmt.Println(`Type "scan" to force recognition, "q" to quit.`)

	stats, err := loop.Run(ctx)
	fmt.Printf("\nFrames: %d, recognized: %d, attendance logged: %d\n", stats.Frames, stats.Processed, stats.Logged)
	return err
}
