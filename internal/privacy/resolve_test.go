package privacy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePriority(t *testing.T) {
	pri := PriorityTable{Person: 100, Location: 10}

	got := Resolve([]Span{
		{Type: Location, Start: 2, End: 9},
		{Type: Person, Start: 0, End: 6},
	}, pri)
	require.Len(t, got, 1)
	assert.Equal(t, Person, got[0].Type)

	got = Resolve([]Span{
		{Type: Person, Start: 0, End: 6},
		{Type: Location, Start: 2, End: 9},
	}, pri)
	require.Len(t, got, 1)
	assert.Equal(t, Person, got[0].Type)
}

func TestResolveTieKeepsEarlier(t *testing.T) {
	got := Resolve([]Span{
		{Type: "A", Start: 0, End: 5, Source: "first"},
		{Type: "B", Start: 3, End: 8, Source: "second"},
	}, PriorityTable{})
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Source)
}

func TestResolveSameStartKeepsInputOrderOnTie(t *testing.T) {
	got := Resolve([]Span{
		{Type: Person, Start: 4, End: 9, Source: "ner"},
		{Type: Person, Start: 4, End: 9, Source: "context"},
	}, DefaultTables().Priorities)
	require.Len(t, got, 1)
	assert.Equal(t, "ner", got[0].Source)
}

func TestResolveKeepsDisjointSpansSorted(t *testing.T) {
	got := Resolve([]Span{
		{Type: EmailAddress, Start: 20, End: 30},
		{Type: Person, Start: 0, End: 4},
		{Type: PhoneNumber, Start: 10, End: 18},
	}, DefaultTables().Priorities)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 10, 20}, []int{got[0].Start, got[1].Start, got[2].Start})
}

func TestResolveReplacementMovesToEnd(t *testing.T) {
	pri := DefaultTables().Priorities
	in := []Span{
		{Type: Location, Start: 0, End: 5},
		{Type: Occupation, Start: 7, End: 12},
		{Type: Person, Start: 3, End: 6},
	}
	got := Resolve(in, pri)
	require.Len(t, got, 2)
	assert.Equal(t, Person, got[0].Type)
	assert.Equal(t, Occupation, got[1].Type)
	assert.Equal(t, Location, in[0].Type, "input must not be reordered")
}

func TestResolveEmpty(t *testing.T) {
	assert.Empty(t, Resolve(nil, DefaultTables().Priorities))
}

// The resolver compares a span only with the first kept span it
// overlaps. This checks that the shortcut never leaves an intersecting
// pair in the output.
func TestResolveLeavesNoResidualOverlap(t *testing.T) {
	types := []EntityType{Person, Location, EmailAddress, Organization, "CUSTOM"}
	pri := DefaultTables().Priorities
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 500; round++ {
		n := 2 + rng.Intn(10)
		spans := make([]Span, n)
		for i := range spans {
			start := rng.Intn(60)
			spans[i] = Span{
				Type:  types[rng.Intn(len(types))],
				Start: start,
				End:   start + 1 + rng.Intn(12),
			}
		}
		got := Resolve(spans, pri)
		require.Empty(t, Overlaps(got), "round %d input %+v", round, spans)
	}
}

func TestOverlapsReportsPairs(t *testing.T) {
	got := Overlaps([]Span{
		{Type: Location, Start: 0, End: 5},
		{Type: Location, Start: 4, End: 8},
		{Type: Person, Start: 8, End: 10},
	})
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].A.Start)
	assert.Equal(t, 4, got[0].B.Start)
}
