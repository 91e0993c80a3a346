// Package pipeline turns one camera frame into correlated identities and
// attendance events. It is shared by the HTTP snapshot route and the capture loop.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/imaging"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// DetectionSource locates faces in a frame without identifying them.
type DetectionSource interface {
	DetectFaces(ctx context.Context, frame []byte) ([]facematch.Detection, error)
}

// IdentitySearchSource returns ranked enrollment candidates for the faces in a frame.
type IdentitySearchSource interface {
	Search(ctx context.Context, frame []byte) ([]facematch.CandidateMatch, error)
}

// EnrollmentChecker reports whether there is anything to search against.
type EnrollmentChecker interface {
	IsEmpty() (bool, error)
}

// AttendanceLogger records a sighting of a known person.
type AttendanceLogger interface {
	Log(ctx context.Context, name string) (bool, error)
}

// Result is the outcome of one frame.
type Result struct {
	Identities []facematch.CorrelatedIdentity
	Logged     []string // names that produced a new attendance record
}

// Processor runs the per-frame pipeline.
type Processor struct {
	detector    DetectionSource
	searcher    IdentitySearchSource
	enrollments EnrollmentChecker
	engine      *facematch.Engine
	tracker     AttendanceLogger
	timeout     time.Duration
	maxSize     int
	logger      *slog.Logger
}

// Config holds the processor settings.
type Config struct {
	Timeout time.Duration // bound on each detection and search call
	MaxSize int           // frames larger than this are downscaled before inference
}

// NewProcessor creates a processor. tracker may be nil to skip attendance logging.
func NewProcessor(
	detector DetectionSource,
	searcher IdentitySearchSource,
	enrollments EnrollmentChecker,
	engine *facematch.Engine,
	tracker AttendanceLogger,
	cfg Config,
	logger *slog.Logger,
) *Processor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultInferenceTimeout
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = constants.MaxImageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		detector:    detector,
		searcher:    searcher,
		enrollments: enrollments,
		engine:      engine,
		tracker:     tracker,
		timeout:     cfg.Timeout,
		maxSize:     cfg.MaxSize,
		logger:      logger,
	}
}

// ProcessFrame detects, identifies and logs the faces in frame.
// Only an undecodable frame is an error; detection, search and attendance
// failures are logged and degrade to an empty or partial result.
func (p *Processor) ProcessFrame(ctx context.Context, frame []byte) (*Result, error) {
	data, factor, err := imaging.Downscale(frame, p.maxSize)
	if err != nil {
		return nil, err
	}

	detections := p.detect(ctx, data)

	var candidates []facematch.CandidateMatch
	if len(detections) > 0 && !p.storeEmpty() {
		candidates = p.search(ctx, data)
	}

	identities := p.engine.Correlate(detections, candidates)
	for i := range identities {
		identities[i].Box = facematch.Scale(identities[i].Box, factor)
	}

	result := &Result{Identities: identities}
	if p.tracker == nil {
		return result, nil
	}
	for _, id := range identities {
		if !id.Known() {
			continue
		}
		logged, err := p.tracker.Log(ctx, id.Name)
		if err != nil {
			p.logger.Error("failed to log attendance", "name", id.Name, "error", err)
			continue
		}
		if logged {
			result.Logged = append(result.Logged, id.Name)
		}
	}
	return result, nil
}

func (p *Processor) detect(ctx context.Context, frame []byte) []facematch.Detection {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	detections, err := p.detector.DetectFaces(ctx, frame)
	if err != nil {
		p.logger.Warn("face detection failed", "error", err)
		return nil
	}
	return detections
}

func (p *Processor) search(ctx context.Context, frame []byte) []facematch.CandidateMatch {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	candidates, err := p.searcher.Search(ctx, frame)
	if errors.Is(err, recognition.ErrIndexEmpty) {
		return nil
	}
	if err != nil {
		p.logger.Warn("identity search failed", "error", err)
		return nil
	}
	return candidates
}

func (p *Processor) storeEmpty() bool {
	if p.enrollments == nil {
		return false
	}
	empty, err := p.enrollments.IsEmpty()
	if err != nil {
		p.logger.Warn("cannot list enrollments", "error", err)
		return true
	}
	return empty
}
