package privacy

import "math"

// MaxScore caps the privacy score.
const MaxScore = 100

// Score sums weight*confidence over entities and floors the result into
// [0, MaxScore]. An empty set scores 0. Confidence is taken as given.
func Score(entities []Span, weights WeightTable) int {
	if len(entities) == 0 {
		return 0
	}
	var raw float64
	for _, e := range entities {
		raw += float64(weights.Weight(e.Type)) * e.Confidence
	}
	if math.IsNaN(raw) || raw <= 0 {
		return 0
	}
	if raw >= MaxScore {
		return MaxScore
	}
	return int(math.Floor(raw))
}
