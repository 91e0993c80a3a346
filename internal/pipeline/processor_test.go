package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/enrollment"
	"github.com/kozaktomas/attendance/internal/faceapi"
	"github.com/kozaktomas/attendance/internal/faceapi/fake"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/imaging"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubDetector struct {
	detections []facematch.Detection
	err        error
	calls      int
}

func (s *stubDetector) DetectFaces(ctx context.Context, frame []byte) ([]facematch.Detection, error) {
	s.calls++
	return s.detections, s.err
}

type stubSearcher struct {
	candidates []facematch.CandidateMatch
	err        error
	calls      int
	block      bool
}

func (s *stubSearcher) Search(ctx context.Context, frame []byte) ([]facematch.CandidateMatch, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.candidates, s.err
}

type stubEnrollments struct {
	empty bool
	err   error
}

func (s stubEnrollments) IsEmpty() (bool, error) { return s.empty, s.err }

func newEngine() *facematch.Engine {
	return &facematch.Engine{Threshold: 0.6, Tolerance: 50, Model: "Facenet512", EnrollmentRoot: "faces_db"}
}

func newTracker(store *mock.MockStore) (*attendance.Tracker, *attendance.FakeClock) {
	clock := attendance.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return attendance.NewTracker(store, 300*time.Second, attendance.WithClock(clock), attendance.WithLogger(discardLogger())), clock
}

func candidate(name string, box facematch.BoundingBox, dist float64) facematch.CandidateMatch {
	return facematch.CandidateMatch{
		IdentityPath: filepath.Join("faces_db", name, "face_1.jpg"),
		SourceBox:    box,
		Distances:    map[string]float64{"Facenet512_cosine": dist},
	}
}

var (
	boxA = facematch.BoundingBox{X: 20, Y: 20, W: 60, H: 60}
	boxB = facematch.BoundingBox{X: 220, Y: 20, W: 60, H: 60}
)

func TestProcessFrame_KnownAndUnknown(t *testing.T) {
	store := mock.NewMockStore()
	tracker, _ := newTracker(store)
	detector := &stubDetector{detections: []facematch.Detection{{Box: boxA, Confidence: 0.9}, {Box: boxB, Confidence: 0.8}}}
	searcher := &stubSearcher{candidates: []facematch.CandidateMatch{candidate("Alice", boxA, 0.2)}}

	p := NewProcessor(detector, searcher, stubEnrollments{}, newEngine(), tracker, Config{}, discardLogger())
	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
	require.NoError(t, err)

	require.Len(t, res.Identities, 2)
	assert.Equal(t, "Alice", res.Identities[0].Name)
	assert.Equal(t, facematch.Unknown, res.Identities[1].Name)
	assert.Equal(t, []string{"Alice"}, res.Logged)

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Alice", records[0].Name)
}

func TestProcessFrame_Cardinality(t *testing.T) {
	detector := &stubDetector{detections: []facematch.Detection{
		{Box: boxA, Confidence: 0.9},
		{Box: boxB, Confidence: 0},
		{Box: facematch.BoundingBox{X: 400, Y: 20, W: 60, H: 60}, Confidence: 0.7},
		{Box: facematch.BoundingBox{X: 600, Y: 20, W: 60, H: 60}, Confidence: 0.6},
	}}
	p := NewProcessor(detector, &stubSearcher{}, stubEnrollments{}, newEngine(), nil, Config{}, discardLogger())

	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
	require.NoError(t, err)
	assert.Len(t, res.Identities, 3)
}

func TestProcessFrame_EmptyStoreSkipsSearch(t *testing.T) {
	store := mock.NewMockStore()
	tracker, _ := newTracker(store)
	detector := &stubDetector{detections: []facematch.Detection{{Box: boxA, Confidence: 0.9}, {Box: boxB, Confidence: 0.9}}}
	searcher := &stubSearcher{candidates: []facematch.CandidateMatch{candidate("Alice", boxA, 0.1)}}

	p := NewProcessor(detector, searcher, stubEnrollments{empty: true}, newEngine(), tracker, Config{}, discardLogger())
	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
	require.NoError(t, err)

	assert.Zero(t, searcher.calls, "searcher is never invoked for an empty store")
	require.Len(t, res.Identities, 2)
	for _, id := range res.Identities {
		assert.Equal(t, facematch.Unknown, id.Name)
		assert.Equal(t, facematch.MaxDistance, id.Distance)
	}
	assert.Empty(t, store.Records())
}

func TestProcessFrame_NoDetectionsSkipsSearch(t *testing.T) {
	searcher := &stubSearcher{}
	p := NewProcessor(&stubDetector{}, searcher, stubEnrollments{}, newEngine(), nil, Config{}, discardLogger())

	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
	require.NoError(t, err)
	assert.Empty(t, res.Identities)
	assert.NotNil(t, res.Identities)
	assert.Zero(t, searcher.calls)
}

func TestProcessFrame_DetectionFailureDegrades(t *testing.T) {
	detector := &stubDetector{err: errors.New("detector down")}
	p := NewProcessor(detector, &stubSearcher{}, stubEnrollments{}, newEngine(), nil, Config{}, discardLogger())

	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
	require.NoError(t, err)
	assert.Empty(t, res.Identities)
}

func TestProcessFrame_SearchFailureDegradesToUnknown(t *testing.T) {
	for _, searchErr := range []error{errors.New("search down"), recognition.ErrIndexEmpty} {
		detector := &stubDetector{detections: []facematch.Detection{{Box: boxA, Confidence: 0.9}}}
		p := NewProcessor(detector, &stubSearcher{err: searchErr}, stubEnrollments{}, newEngine(), nil, Config{}, discardLogger())

		res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
		require.NoError(t, err)
		require.Len(t, res.Identities, 1)
		assert.Equal(t, facematch.Unknown, res.Identities[0].Name)
	}
}

func TestProcessFrame_SearchTimeout(t *testing.T) {
	detector := &stubDetector{detections: []facematch.Detection{{Box: boxA, Confidence: 0.9}}}
	searcher := &stubSearcher{block: true}
	p := NewProcessor(detector, searcher, stubEnrollments{}, newEngine(), nil, Config{Timeout: 20 * time.Millisecond}, discardLogger())

	start := time.Now()
	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Identities, 1)
	assert.Equal(t, facematch.Unknown, res.Identities[0].Name)
}

func TestProcessFrame_AttendanceFailureKeepsIdentities(t *testing.T) {
	store := mock.NewMockStore()
	store.InsertAttendanceError = errors.New("db down")
	tracker, _ := newTracker(store)
	detector := &stubDetector{detections: []facematch.Detection{{Box: boxA, Confidence: 0.9}}}
	searcher := &stubSearcher{candidates: []facematch.CandidateMatch{candidate("Alice", boxA, 0.2)}}

	p := NewProcessor(detector, searcher, stubEnrollments{}, newEngine(), tracker, Config{}, discardLogger())
	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
	require.NoError(t, err)
	require.Len(t, res.Identities, 1)
	assert.Equal(t, "Alice", res.Identities[0].Name)
	assert.Empty(t, res.Logged)
}

func TestProcessFrame_DedupAcrossFrames(t *testing.T) {
	store := mock.NewMockStore()
	tracker, clock := newTracker(store)
	detector := &stubDetector{detections: []facematch.Detection{{Box: boxA, Confidence: 0.9}}}
	searcher := &stubSearcher{candidates: []facematch.CandidateMatch{candidate("Alice", boxA, 0.2)}}
	p := NewProcessor(detector, searcher, stubEnrollments{}, newEngine(), tracker, Config{}, discardLogger())
	ctx := context.Background()

	res, err := p.ProcessFrame(ctx, fake.Tiles(fake.Red))
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, res.Logged)

	clock.Advance(100 * time.Second)
	res, err = p.ProcessFrame(ctx, fake.Tiles(fake.Red))
	require.NoError(t, err)
	assert.Empty(t, res.Logged)
	assert.Equal(t, "Alice", res.Identities[0].Name, "identity is still reported while cooling")

	clock.Advance(201 * time.Second)
	res, err = p.ProcessFrame(ctx, fake.Tiles(fake.Red))
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, res.Logged)
	assert.Len(t, store.Records(), 2)
}

func TestProcessFrame_SameNameTwiceInFrameLogsOnce(t *testing.T) {
	store := mock.NewMockStore()
	tracker, _ := newTracker(store)
	detector := &stubDetector{detections: []facematch.Detection{{Box: boxA, Confidence: 0.9}, {Box: boxB, Confidence: 0.9}}}
	searcher := &stubSearcher{candidates: []facematch.CandidateMatch{
		candidate("Alice", boxA, 0.2),
		candidate("Alice", boxB, 0.3),
	}}
	p := NewProcessor(detector, searcher, stubEnrollments{}, newEngine(), tracker, Config{}, discardLogger())

	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red))
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, res.Logged)
	assert.Len(t, store.Records(), 1)
}

func TestProcessFrame_InvalidFrame(t *testing.T) {
	detector := &stubDetector{}
	p := NewProcessor(detector, &stubSearcher{}, stubEnrollments{}, newEngine(), nil, Config{}, discardLogger())

	_, err := p.ProcessFrame(context.Background(), []byte("not an image"))
	assert.ErrorIs(t, err, imaging.ErrInvalidImage)
	assert.Zero(t, detector.calls)
}

func TestProcessFrame_DownscaledBoxesMappedBack(t *testing.T) {
	var seen image.Config
	var mu sync.Mutex
	detector := detectorFunc(func(ctx context.Context, frame []byte) ([]facematch.Detection, error) {
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
		if err != nil {
			return nil, err
		}
		mu.Lock()
		seen = cfg
		mu.Unlock()
		return []facematch.Detection{{Box: facematch.BoundingBox{X: 10, Y: 10, W: 20, H: 20}, Confidence: 0.9}}, nil
	})
	p := NewProcessor(detector, &stubSearcher{}, stubEnrollments{empty: true}, newEngine(), nil, Config{MaxSize: 100}, discardLogger())

	res, err := p.ProcessFrame(context.Background(), fake.Tiles(fake.Red, fake.Green, fake.Blue, fake.Red))
	require.NoError(t, err)
	assert.Equal(t, 100, seen.Width, "detector receives the downscaled frame")
	require.Len(t, res.Identities, 1)
	assert.Equal(t, facematch.BoundingBox{X: 40, Y: 40, W: 80, H: 80}, res.Identities[0].Box)
}

type detectorFunc func(ctx context.Context, frame []byte) ([]facematch.Detection, error)

func (f detectorFunc) DetectFaces(ctx context.Context, frame []byte) ([]facematch.Detection, error) {
	return f(ctx, frame)
}

// TestProcessFrame_EnrollThenRecognize runs the real searcher against the fake
// embedding service: a person enrolled between two frames is recognized in the second.
func TestProcessFrame_EnrollThenRecognize(t *testing.T) {
	service := fake.New()
	srv := fake.NewServer(service)
	defer srv.Close()

	client := faceapi.NewClient(srv.URL)
	root := filepath.Join(t.TempDir(), "faces_db")
	enrollments := enrollment.NewStore(enrollment.NewInvalidator(root, discardLogger()), discardLogger())
	searcher := recognition.NewSearcher(enrollments, client, "Facenet512", 1, discardLogger())
	engine := &facematch.Engine{Threshold: 0.6, Tolerance: 50, Model: "Facenet512", EnrollmentRoot: root}
	store := mock.NewMockStore()
	tracker, _ := newTracker(store)

	p := NewProcessor(client, searcher, enrollments, engine, tracker, Config{}, discardLogger())
	ctx := context.Background()

	res, err := p.ProcessFrame(ctx, fake.Tiles(fake.Blue))
	require.NoError(t, err)
	require.Len(t, res.Identities, 1)
	assert.Equal(t, facematch.Unknown, res.Identities[0].Name)

	_, _, err = enrollments.Save(ctx, "Carol", fake.Tiles(fake.Blue))
	require.NoError(t, err)

	res, err = p.ProcessFrame(ctx, fake.Tiles(fake.Blue))
	require.NoError(t, err)
	require.Len(t, res.Identities, 1)
	assert.Equal(t, "Carol", res.Identities[0].Name)
	assert.Less(t, res.Identities[0].Distance, 0.6)
	assert.Equal(t, []string{"Carol"}, res.Logged)
}

// TestProcessFrame_StalledEmbeddingServiceDegrades runs the real searcher against an
// embedding service that stops answering while the index is being built.
func TestProcessFrame_StalledEmbeddingServiceDegrades(t *testing.T) {
	service := fake.New()
	srv := fake.NewServer(service)
	defer srv.Close()

	root := filepath.Join(t.TempDir(), "faces_db")
	enrollments := enrollment.NewStore(enrollment.NewInvalidator(root, discardLogger()), discardLogger())
	searcher := recognition.NewSearcher(enrollments, faceapi.NewClient(srv.URL), "Facenet512", 1, discardLogger())
	engine := &facematch.Engine{Threshold: 0.6, Tolerance: 50, Model: "Facenet512", EnrollmentRoot: root}

	ctx := context.Background()
	_, _, err := enrollments.Save(ctx, "Alice", fake.Tiles(fake.Red))
	require.NoError(t, err)

	release := service.Hold()
	defer release()

	p := NewProcessor(fake.New(), searcher, enrollments, engine, nil, Config{Timeout: 50 * time.Millisecond}, discardLogger())
	for i := range 3 {
		start := time.Now()
		res, err := p.ProcessFrame(ctx, fake.Tiles(fake.Red))
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second, "frame %d", i)
		require.Len(t, res.Identities, 1)
		assert.Equal(t, facematch.Unknown, res.Identities[0].Name, "frame %d", i)
	}

	release()
	require.Eventually(t, func() bool {
		res, err := p.ProcessFrame(ctx, fake.Tiles(fake.Red))
		return err == nil && len(res.Identities) == 1 && res.Identities[0].Name == "Alice"
	}, 5*time.Second, 20*time.Millisecond)
}
