package privacy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedDetector struct {
	spans []Span
	err   error
	calls int
	lang  string
}

func (d *fixedDetector) Detect(_ context.Context, _ string, language string) ([]Span, error) {
	d.calls++
	d.lang = language
	return d.spans, d.err
}

func TestAnalyzeNameAndEmail(t *testing.T) {
	text := "My name is John Doe and my email is john@example.com"
	det := &fixedDetector{spans: []Span{
		{Type: Person, Start: 11, End: 19, Confidence: 0.95},
		{Type: EmailAddress, Start: 36, End: 52, Confidence: 1.0},
	}}
	e := NewEngine(det, Options{})

	res, err := e.Analyze(context.Background(), text, "")
	require.NoError(t, err)

	assert.Equal(t, "My name is [PERSON] and my email is [EMAIL]", res.RedactedText)
	assert.Equal(t, 34, res.Score)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, "John Doe", res.Entities[0].Text)
	assert.Equal(t, "john@example.com", res.Entities[1].Text)
	assert.Equal(t, DefaultLanguage, det.lang)
}

func TestAnalyzeAddressFragments(t *testing.T) {
	text := "123 Main Street, Springfield, 62704"
	res := Consolidate(text, []Span{
		{Type: Location, Start: 0, End: 3, Confidence: 0.6},
		{Type: Location, Start: 4, End: 15, Confidence: 0.85},
		{Type: Location, Start: 17, End: 28, Confidence: 0.7},
	}, DefaultTables(), DefaultRules())

	require.Len(t, res.Entities, 1)
	loc := res.Entities[0]
	assert.Equal(t, Location, loc.Type)
	assert.Equal(t, 0, loc.Start)
	assert.Equal(t, len(text), loc.End)
	assert.Equal(t, text, loc.Text)
	assert.Equal(t, 0.85, loc.Confidence)
	assert.Equal(t, "[LOCATION]", res.RedactedText)
	assert.Equal(t, 1, strings.Count(res.RedactedText, "[LOCATION]"))
}

func TestAnalyzeNoEntities(t *testing.T) {
	text := "Nothing  sensitive\there."
	e := NewEngine(&fixedDetector{}, Options{})

	res, err := e.Analyze(context.Background(), text, "en")
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
	assert.NotNil(t, res.Entities)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, text, res.RedactedText)
}

func TestAnalyzePersonBeatsLocation(t *testing.T) {
	text := "Paris Hilton checked in"
	res := Consolidate(text, []Span{
		{Type: Location, Start: 0, End: 5, Confidence: 0.8},
		{Type: Person, Start: 0, End: 12, Confidence: 0.85},
	}, DefaultTables(), DefaultRules())

	require.Len(t, res.Entities, 1)
	assert.Equal(t, Person, res.Entities[0].Type)
	assert.Equal(t, "[PERSON] checked in", res.RedactedText)
}

func TestAnalyzeAugmentsMissedNames(t *testing.T) {
	text := "My name is Ravi Kumar, call me Ravi."
	e := NewEngine(&fixedDetector{}, Options{})

	res, err := e.Analyze(context.Background(), text, "en")
	require.NoError(t, err)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, "Ravi Kumar", res.Entities[0].Text)
	assert.Equal(t, "Ravi", res.Entities[1].Text)
	assert.Equal(t, "My name is [PERSON], call me [PERSON].", res.RedactedText)
	assert.Equal(t, 27, res.Score)
}

func TestAnalyzeInputValidation(t *testing.T) {
	det := &fixedDetector{}
	e := NewEngine(det, Options{MaxTextLength: 8})

	_, err := e.Analyze(context.Background(), "   \n", "en")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = e.Analyze(context.Background(), "far too long", "en")
	assert.ErrorIs(t, err, ErrTextTooLong)

	assert.Zero(t, det.calls, "detector must not run on invalid input")
}

func TestAnalyzeDetectorError(t *testing.T) {
	boom := errors.New("model offline")
	e := NewEngine(&fixedDetector{err: boom}, Options{})

	_, err := e.Analyze(context.Background(), "hello there", "en")
	assert.ErrorIs(t, err, boom)
}

func TestAnalyzeRejectsMalformedSpans(t *testing.T) {
	text := "Call 555-0100 now"
	var logged []string
	e := NewEngine(&fixedDetector{spans: []Span{
		{Type: PhoneNumber, Start: 5, End: 13, Confidence: 0.7, Source: "patterns"},
		{Type: PhoneNumber, Start: 9, End: 9, Confidence: 0.7, Source: "broken"},
		{Type: Location, Start: 40, End: 45, Confidence: 0.7, Source: "broken"},
	}}, Options{Logf: func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}})

	res, err := e.Analyze(context.Background(), text, "en")
	require.NoError(t, err)
	assert.Equal(t, "Call [PHONE] now", res.RedactedText)
	require.Len(t, res.Rejected, 2)
	for _, rej := range res.Rejected {
		assert.ErrorIs(t, rej, ErrMalformedSpan)
	}
	assert.Len(t, logged, 2)
}

func TestAnalyzeLogsClampedSpans(t *testing.T) {
	text := "Call 555-0100 now"
	var logged []string
	e := NewEngine(&fixedDetector{spans: []Span{
		{Type: PhoneNumber, Start: 5, End: 13, Confidence: 0.7, Source: "patterns"},
		{Type: Location, Start: 14, End: 60, Confidence: 0.4, Source: "remote"},
	}}, Options{Logf: func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}})

	res, err := e.Analyze(context.Background(), text, "en")
	require.NoError(t, err)
	assert.Empty(t, res.Rejected)
	require.Len(t, res.Clamped, 1)
	assert.Equal(t, "remote", res.Clamped[0].Span.Source)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "clamped candidate: offsets clamped to [14,17)")
	assert.Equal(t, "Call [PHONE] [LOCATION]", res.RedactedText)
}

func TestEntitiesStayInBounds(t *testing.T) {
	text := "Reach Anna at 12 Oak Road, Austin 73301 or anna@example.org"
	res := Consolidate(text, []Span{
		{Type: Person, Start: 6, End: 10, Confidence: 0.9},
		{Type: Location, Start: 14, End: 25, Confidence: 0.75},
		{Type: Location, Start: 27, End: 33, Confidence: 0.8},
		{Type: EmailAddress, Start: 43, End: 200, Confidence: 1},
		{Type: Location, Start: -3, End: 2, Confidence: 0.4},
	}, DefaultTables(), DefaultRules())

	for _, e := range res.Entities {
		assert.GreaterOrEqual(t, e.Start, 0)
		assert.Less(t, e.Start, e.End)
		assert.LessOrEqual(t, e.End, len(text))
		assert.Equal(t, text[e.Start:e.End], e.Text)
	}
	assert.Empty(t, Overlaps(res.Entities))
}

func TestSummaryCarriesNoRawText(t *testing.T) {
	text := "My name is John Doe and my email is john@example.com"
	res := Consolidate(text, []Span{
		{Type: Person, Start: 11, End: 19, Confidence: 0.95},
		{Type: EmailAddress, Start: 36, End: 52, Confidence: 1.0},
	}, DefaultTables(), DefaultRules())

	sum := res.Summary()
	assert.Equal(t, 34, sum.PrivacyScore)
	assert.Equal(t, []EntityType{Person, EmailAddress}, sum.EntityTypes)
	assert.Equal(t, 2, sum.EntityCount)
	assert.Equal(t, len(text), sum.InputLength)
	assert.Equal(t, len(res.RedactedText), sum.OutputLength)
	assert.NotContains(t, sum.RedactedSample, "John")
	assert.NotContains(t, sum.RedactedSample, "john@example.com")
}

func TestSummarySampleIsBounded(t *testing.T) {
	text := strings.Repeat("é", 150)
	res := Consolidate(text, nil, DefaultTables(), DefaultRules())

	sum := res.Summary()
	assert.Equal(t, 150, sum.InputLength)
	assert.Equal(t, 150, sum.OutputLength)
	assert.Equal(t, strings.Repeat("é", SampleLength), sum.RedactedSample)
}

func TestConsolidateGolden(t *testing.T) {
	cases := []struct {
		text  string
		spans []Span
	}{
		{
			text: "My name is John Doe and my email is john@example.com",
			spans: []Span{
				{Type: Person, Start: 11, End: 19, Confidence: 0.95},
				{Type: EmailAddress, Start: 36, End: 52, Confidence: 1.0},
			},
		},
		{
			text: "123 Main Street, Springfield, 62704",
			spans: []Span{
				{Type: Location, Start: 0, End: 3, Confidence: 0.6},
				{Type: Location, Start: 4, End: 15, Confidence: 0.85},
				{Type: Location, Start: 17, End: 28, Confidence: 0.7},
			},
		},
		{text: "Nothing sensitive here."},
		{
			text: "Paris Hilton checked in",
			spans: []Span{
				{Type: Location, Start: 0, End: 5, Confidence: 0.8},
				{Type: Person, Start: 0, End: 12, Confidence: 0.85},
			},
		},
		{text: "My name is Ravi Kumar, call me Ravi."},
	}

	blocks := make([]string, 0, len(cases))
	for _, c := range cases {
		res := Consolidate(c.text, c.spans, DefaultTables(), DefaultRules())
		var b strings.Builder
		fmt.Fprintf(&b, "input:    %s\n", c.text)
		fmt.Fprintf(&b, "redacted: %s\n", res.RedactedText)
		fmt.Fprintf(&b, "score:    %d\n", res.Score)
		for _, e := range res.Entities {
			fmt.Fprintf(&b, "  %s [%d,%d) %.2f %q\n", e.Type, e.Start, e.End, e.Confidence, e.Text)
		}
		blocks = append(blocks, b.String())
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "consolidate", []byte(strings.Join(blocks, "\n")))
}
