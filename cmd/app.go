package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mariadb"
	"github.com/kozaktomas/attendance/internal/database/postgres"
	"github.com/kozaktomas/attendance/internal/database/sqlite"
	"github.com/kozaktomas/attendance/internal/enrollment"
	"github.com/kozaktomas/attendance/internal/faceapi"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/pipeline"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// app holds the components shared by the commands.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       database.Store
	enrollments *enrollment.Store
	searcher    *recognition.Searcher
	processor   *pipeline.Processor
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore connects to the backend selected by DATABASE_URL.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Store, error) {
	switch backend := database.BackendFor(cfg.Database.URL); backend {
	case database.BackendPostgres:
		fmt.Printf("Connecting to PostgreSQL database...\n")
		store, err := postgres.Open(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return store, nil
	case database.BackendMariaDB:
		fmt.Printf("Connecting to MariaDB database...\n")
		store, err := mariadb.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MariaDB: %w", err)
		}
		return store, nil
	default:
		path := database.SQLitePath(cfg.Database.URL)
		fmt.Printf("Using SQLite database %s\n", path)
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		return store, nil
	}
}

// newApp wires the store, the enrollment directory and the recognition pipeline.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := newLogger()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	inv := enrollment.NewInvalidator(cfg.Enrollment.Dir, logger)
	enrollments := enrollment.NewStore(inv, logger)
	client := faceapi.NewClient(cfg.Embedding.URL)
	searcher := recognition.NewSearcher(enrollments, client, cfg.Recognition.Model, cfg.Recognition.TopK, logger)

	engine := &facematch.Engine{
		Threshold:      cfg.Recognition.Threshold,
		Tolerance:      cfg.Recognition.Tolerance,
		Model:          cfg.Recognition.Model,
		EnrollmentRoot: cfg.Enrollment.Dir,
	}
	tracker := attendance.NewTracker(store, cfg.Attendance.Cooldown, attendance.WithLogger(logger))
	processor := pipeline.NewProcessor(client, searcher, enrollments, engine, tracker, pipeline.Config{
		Timeout: cfg.Recognition.Timeout,
	}, logger)

	warnLooseThreshold(cfg, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		enrollments: enrollments,
		searcher:    searcher,
		processor:   processor,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

// warnLooseThreshold flags a threshold above the model's recommended cosine cutoff.
func warnLooseThreshold(cfg *config.Config, logger *slog.Logger) {
	profile, ok := cfg.ModelProfile(cfg.Recognition.Model)
	if !ok {
		logger.Warn("unknown recognition model, distances fall back to any available metric", "model", cfg.Recognition.Model)
		return
	}
	if recommended, ok := profile.Thresholds["cosine"]; ok && cfg.Recognition.Threshold > recommended {
		logger.Warn("recognition threshold is looser than the model default",
			"model", cfg.Recognition.Model, "threshold", cfg.Recognition.Threshold, "recommended", recommended)
	}
}
