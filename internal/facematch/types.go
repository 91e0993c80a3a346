// Package facematch correlates face detections with identity search candidates.
// It is shared between the HTTP handlers and the capture loop.
package facematch

// Unknown is the name given to a detection that no enrollment matched.
const Unknown = "Unknown"

// MaxDistance is reported for detections without a surviving match.
const MaxDistance = 1.0

// BoundingBox is a face region in pixel coordinates of one frame.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Valid reports whether the box has non-negative origin and positive size.
func (b BoundingBox) Valid() bool {
	return b.X >= 0 && b.Y >= 0 && b.W > 0 && b.H > 0
}

// Detection is a located face with the detector's confidence, independent of identity.
type Detection struct {
	Box        BoundingBox
	Confidence float64
}

// CandidateMatch is one ranked identity search row.
// SourceBox is where in the query frame the candidate face was found,
// not a region of the stored reference image.
type CandidateMatch struct {
	IdentityPath string
	SourceBox    BoundingBox
	Distances    map[string]float64 // keyed by metric name, e.g. "Facenet512_cosine"
}

// CorrelatedIdentity is the outcome for one detection in one frame.
type CorrelatedIdentity struct {
	Box      BoundingBox
	Name     string
	Distance float64
}

// Known reports whether the identity resolved to an enrollment name.
func (c CorrelatedIdentity) Known() bool {
	return c.Name != Unknown && c.Name != ""
}
