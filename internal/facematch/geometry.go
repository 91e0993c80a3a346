package facematch

import "math"

// Near reports whether two boxes start within tolerance pixels of each other on both axes.
func Near(a, b BoundingBox, tolerance int) bool {
	return abs(a.X-b.X) < tolerance && abs(a.Y-b.Y) < tolerance
}

// CornerToBox converts a [x1, y1, x2, y2] pixel bbox to a BoundingBox.
// Coordinates are rounded and clamped at zero. Returns false for malformed input.
func CornerToBox(bbox []float64) (BoundingBox, bool) {
	if len(bbox) != 4 {
		return BoundingBox{}, false
	}
	x1 := math.Max(0, bbox[0])
	y1 := math.Max(0, bbox[1])
	box := BoundingBox{
		X: int(math.Round(x1)),
		Y: int(math.Round(y1)),
		W: int(math.Round(bbox[2] - x1)),
		H: int(math.Round(bbox[3] - y1)),
	}
	return box, box.Valid()
}

// Scale multiplies every coordinate of the box by factor.
// Used to map boxes found on a downscaled frame back onto the original frame.
func Scale(b BoundingBox, factor float64) BoundingBox {
	if factor == 1 || factor <= 0 {
		return b
	}
	return BoundingBox{
		X: int(math.Round(float64(b.X) * factor)),
		Y: int(math.Round(float64(b.Y) * factor)),
		W: int(math.Round(float64(b.W) * factor)),
		H: int(math.Round(float64(b.H) * factor)),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
