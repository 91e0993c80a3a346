package facematch

// Engine resolves detections against identity search candidates.
type Engine struct {
	Threshold      float64 // distance below which a candidate is accepted
	Tolerance      int     // pixel tolerance for box/candidate proximity
	Model          string  // preferred model for distance column selection
	EnrollmentRoot string  // used to tell per-person directories from flat images
}

// Correlate produces one CorrelatedIdentity per detection with positive confidence,
// in detection order.
//
// Each detection takes the first candidate, in the order the search returned them,
// whose source box lies within Tolerance of the detection. Candidates are not
// consumed: two detections may both resolve to the same candidate. A nil or empty
// candidate list resolves every detection to Unknown.
func (e *Engine) Correlate(detections []Detection, candidates []CandidateMatch) []CorrelatedIdentity {
	out := make([]CorrelatedIdentity, 0, len(detections))
	for _, d := range detections {
		if d.Confidence <= 0 {
			continue
		}
		out = append(out, e.resolve(d.Box, candidates))
	}
	return out
}

func (e *Engine) resolve(box BoundingBox, candidates []CandidateMatch) CorrelatedIdentity {
	unknown := CorrelatedIdentity{Box: box, Name: Unknown, Distance: MaxDistance}

	for i := range candidates {
		c := &candidates[i]
		if !Near(box, c.SourceBox, e.Tolerance) {
			continue
		}
		dist := SelectDistance(c.Distances, e.Model)
		if !e.Accept(dist) {
			return unknown
		}
		name := ResolveName(c.IdentityPath, e.EnrollmentRoot)
		if name == "" {
			return unknown
		}
		return CorrelatedIdentity{Box: box, Name: name, Distance: dist}
	}
	return unknown
}

// Accept reports whether a distance is close enough to count as a match.
func (e *Engine) Accept(distance float64) bool {
	return distance < e.Threshold
}
