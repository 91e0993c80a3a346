package facematch

import "testing"

func TestSelectDistance(t *testing.T) {
	tests := []struct {
		name      string
		distances map[string]float64
		model     string
		expected  float64
	}{
		{"model cosine", map[string]float64{"Facenet512_cosine": 0.2, "Facenet512_euclidean": 9.5}, "Facenet512", 0.2},
		{"model euclidean only", map[string]float64{"Facenet512_euclidean": 9.5}, "Facenet512", 9.5},
		{"case insensitive model", map[string]float64{"facenet512_cosine": 0.3}, "Facenet512", 0.3},
		{"generic distance", map[string]float64{"distance": 0.4, "threshold": 0.6}, "Facenet512", 0.4},
		{"generic cosine", map[string]float64{"cosine": 0.35}, "Facenet512", 0.35},
		{"other model falls back to generic", map[string]float64{"ArcFace_cosine": 0.1}, "Facenet512", 0.1},
		{"no usable key", map[string]float64{"threshold": 0.6}, "Facenet512", MaxDistance},
		{"empty", nil, "Facenet512", MaxDistance},
		{"no model", map[string]float64{"distance": 0.25}, "", 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectDistance(tt.distances, tt.model); got != tt.expected {
				t.Errorf("SelectDistance(%v, %q) = %v, want %v", tt.distances, tt.model, got, tt.expected)
			}
		})
	}
}

func TestSelectDistance_Deterministic(t *testing.T) {
	distances := map[string]float64{"a_distance": 0.1, "b_distance": 0.2, "c_cosine": 0.3}
	for i := 0; i < 50; i++ {
		if got := SelectDistance(distances, "Facenet512"); got != 0.1 {
			t.Fatalf("iteration %d: got %v, want 0.1", i, got)
		}
	}
}
