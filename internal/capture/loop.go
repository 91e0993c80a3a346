package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/pipeline"
)

// maxReadFailures is how many consecutive source errors end the loop.
const maxReadFailures = 5

// Command is an operator instruction delivered to a running loop.
type Command int

const (
	// CommandScan forces the next frame through the pipeline regardless of skipping.
	CommandScan Command = iota
	// CommandQuit stops the loop after the current frame.
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandScan:
		return "scan"
	case CommandQuit:
		return "quit"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// ParseCommand maps an operator input line to a command.
func ParseCommand(line string) (Command, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "scan":
		return CommandScan, true
	case "q", "quit", "exit":
		return CommandQuit, true
	default:
		return 0, false
	}
}

// FrameProcessor runs recognition on one frame.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, frame []byte) (*pipeline.Result, error)
}

// Config holds the loop cadence.
type Config struct {
	SkipFrames int           // frames between two recomputations
	Interval   time.Duration // delay between frame reads
}

// Stats summarizes a finished run.
type Stats struct {
	Frames    int // frames read from the source
	Processed int // frames sent through the pipeline
	Logged    int // attendance records written
}

// Loop owns the capture state. Only Run mutates it; other goroutines talk to it
// through the command channel.
type Loop struct {
	source    Source
	processor FrameProcessor
	skip      int
	interval  time.Duration
	commands  chan Command
	logger    *slog.Logger

	last  *pipeline.Result
	stats Stats
}

// NewLoop creates a capture loop.
func NewLoop(source Source, processor FrameProcessor, cfg Config, logger *slog.Logger) *Loop {
	if cfg.SkipFrames < 0 {
		cfg.SkipFrames = 0
	}
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultCaptureInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		source:    source,
		processor: processor,
		skip:      cfg.SkipFrames,
		interval:  cfg.Interval,
		commands:  make(chan Command, constants.CommandQueueSize),
		logger:    logger,
	}
}

// Commands returns the channel the loop reads operator commands from.
func (l *Loop) Commands() chan<- Command {
	return l.commands
}

// Last returns the most recent pipeline result, or nil before the first one.
// It is not safe to call while Run is active.
func (l *Loop) Last() *pipeline.Result {
	return l.last
}

// Run reads frames until the context ends, the source is exhausted or a quit
// command arrives. Frame i is recomputed when i % (skip+1) == 0 or a scan was
// requested; other frames reuse the previous result.
func (l *Loop) Run(ctx context.Context) (Stats, error) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	forceScan := false
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return l.stats, nil
		case cmd := <-l.commands:
			switch cmd {
			case CommandQuit:
				l.logger.Info("capture stopped by operator")
				return l.stats, nil
			case CommandScan:
				forceScan = true
			}
			continue
		case <-ticker.C:
		}

		frame, err := l.source.Next(ctx)
		if errors.Is(err, ErrEndOfStream) {
			l.logger.Info("frame source exhausted", "frames", l.stats.Frames)
			return l.stats, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return l.stats, nil
			}
			failures++
			l.logger.Warn("failed to read frame", "error", err, "consecutive", failures)
			if failures >= maxReadFailures {
				return l.stats, fmt.Errorf("frame source failed %d times in a row: %w", failures, err)
			}
			continue
		}
		failures = 0

		index := l.stats.Frames
		l.stats.Frames++
		if !forceScan && index%(l.skip+1) != 0 {
			continue
		}
		forceScan = false

		l.process(ctx, frame)
	}
}

func (l *Loop) process(ctx context.Context, frame []byte) {
	result, err := l.processor.ProcessFrame(ctx, frame)
	if err != nil {
		l.logger.Warn("frame skipped", "error", err)
		return
	}

	l.last = result
	l.stats.Processed++
	l.stats.Logged += len(result.Logged)

	for _, id := range result.Identities {
		l.logger.Info("face",
			"name", id.Name,
			"distance", fmt.Sprintf("%.4f", id.Distance),
			"x", id.Box.X, "y", id.Box.Y, "w", id.Box.W, "h", id.Box.H,
		)
	}
	for _, name := range result.Logged {
		l.logger.Info("attendance logged", "name", name)
	}
}

// ReadCommands forwards operator commands from r (usually stdin) until EOF or
// ctx is done. Unrecognised lines are ignored.
func ReadCommands(ctx context.Context, r io.Reader, out chan<- Command) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, ok := ParseCommand(scanner.Text())
		if !ok {
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return
		}
		if cmd == CommandQuit {
			return
		}
	}
}
