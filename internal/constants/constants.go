// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Recognition constants
const (
	// DefaultModel is the recognition model whose distance columns are preferred
	DefaultModel = "Facenet512"

	// DefaultDistanceThreshold is the maximum distance at which a candidate still counts as a match
	DefaultDistanceThreshold = 0.6

	// DefaultPixelTolerance is the maximum x/y offset in pixels between a detected box
	// and a candidate's source box for the two to be considered the same face
	DefaultPixelTolerance = 50

	// DefaultTopK is the number of nearest enrollment images returned per query face
	DefaultTopK = 1

	// DefaultInferenceTimeout bounds a single detection or identity search call
	DefaultInferenceTimeout = 10 * time.Second

	// EmbeddingRequestTimeout bounds one HTTP call to the face embedding service
	EmbeddingRequestTimeout = 30 * time.Second

	// IndexRebuildTimeout bounds a full re-embedding of the enrollment store
	IndexRebuildTimeout = 10 * time.Minute

	// IndexRetryBackoff is how long a partially built index is served before the
	// failed reference images are retried
	IndexRetryBackoff = time.Minute
)

// Attendance constants
const (
	// DefaultCooldown is the minimum time between two attendance records for one person
	DefaultCooldown = 300 * time.Second

	// DefaultLogLimit is the default number of attendance records returned by the logs endpoint
	DefaultLogLimit = 100

	// MaxLogLimit caps the limit query parameter of the logs endpoint
	MaxLogLimit = 1000
)

// Enrollment constants
const (
	// DefaultEnrollmentDir is the default on-disk enrollment store
	DefaultEnrollmentDir = "faces_db"

	// IndexArtifactPattern matches every derived index artifact in the enrollment root
	IndexArtifactPattern = "faces_*.hnsw*"
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) of a frame sent for inference
	MaxImageSize = 1920

	// JPEGQuality is used whenever a frame is re-encoded
	JPEGQuality = 90
)

// Capture constants
const (
	// DefaultSkipFrames is the number of frames reusing the previous result between recomputes
	DefaultSkipFrames = 2

	// DefaultCaptureInterval is the delay between two frame reads
	DefaultCaptureInterval = 100 * time.Millisecond

	// CommandQueueSize is the buffer size of the capture loop command channel
	CommandQueueSize = 8
)
