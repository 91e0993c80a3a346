package facematch

import (
	"slices"
	"strings"
)

// SelectDistance picks the distance score of a candidate.
//
// Keys are examined in sorted order so the choice never depends on map iteration:
//  1. a key naming the model together with a known measure (cosine before euclidean),
//  2. any key containing "distance" or "cosine",
//  3. otherwise MaxDistance, which still goes through the threshold like any other score.
func SelectDistance(distances map[string]float64, model string) float64 {
	if len(distances) == 0 {
		return MaxDistance
	}

	keys := make([]string, 0, len(distances))
	for k := range distances {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	if model != "" {
		lowerModel := strings.ToLower(model)
		for _, measure := range []string{"cosine", "euclidean"} {
			for _, k := range keys {
				lk := strings.ToLower(k)
				if strings.Contains(lk, lowerModel) && strings.Contains(lk, measure) {
					return distances[k]
				}
			}
		}
	}

	for _, k := range keys {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "distance") || strings.Contains(lk, "cosine") {
			return distances[k]
		}
	}

	return MaxDistance
}
