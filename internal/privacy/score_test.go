package privacy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	w := DefaultTables().Weights

	assert.Equal(t, 0, Score(nil, w))
	assert.Equal(t, 0, Score([]Span{}, w))

	assert.Equal(t, 34, Score([]Span{
		{Type: Person, Confidence: 0.95},
		{Type: EmailAddress, Confidence: 1.0},
	}, w))

	// Unknown types weigh 10.
	assert.Equal(t, 7, Score([]Span{{Type: "BADGE_ID", Confidence: 0.75}}, w))

	many := make([]Span, 10)
	for i := range many {
		many[i] = Span{Type: USSSN, Confidence: 1}
	}
	assert.Equal(t, MaxScore, Score(many, w))
}

func TestScoreDoesNotValidateConfidence(t *testing.T) {
	w := WeightTable{Person: 15}
	assert.Equal(t, 30, Score([]Span{{Type: Person, Confidence: 2}}, w))
	assert.Equal(t, MaxScore, Score([]Span{{Type: Person, Confidence: 50}}, w))
}

func TestScoreIsMonotone(t *testing.T) {
	w := DefaultTables().Weights
	rng := rand.New(rand.NewSource(3))

	for round := 0; round < 200; round++ {
		var set []Span
		prev := 0
		for i := 0; i < 12; i++ {
			set = append(set, Span{
				Type:       KnownTypes[rng.Intn(len(KnownTypes))],
				Confidence: rng.Float64(),
			})
			got := Score(set, w)
			assert.GreaterOrEqual(t, got, prev)
			assert.LessOrEqual(t, got, MaxScore)
			prev = got
		}
	}
}
