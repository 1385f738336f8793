package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

type closingDetector struct {
	Static
	closed bool
}

func (c *closingDetector) Close() error {
	c.closed = true
	return nil
}

func TestEnsembleConcatenatesInOrder(t *testing.T) {
	first := Static{Spans: []privacy.Span{{Type: privacy.Person, Start: 0, End: 4, Confidence: 0.9}}}
	second := Static{Spans: []privacy.Span{{Type: privacy.EmailAddress, Start: 10, End: 20, Confidence: 1}}}

	e := NewEnsemble(0, first, nil, second)
	spans, err := e.Detect(context.Background(), "text", "en")
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, privacy.Person, spans[0].Type)
	assert.Equal(t, privacy.EmailAddress, spans[1].Type)
	assert.Equal(t, []string{"static", "static"}, e.Members())
}

func TestEnsemblePartialFailure(t *testing.T) {
	ok := Static{Spans: []privacy.Span{{Type: privacy.Location, Start: 0, End: 4, Confidence: 0.7}}}
	broken := Static{Err: errors.New("sidecar down")}

	spans, err := NewEnsemble(0, broken, ok).Detect(context.Background(), "Pune", "en")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, privacy.Location, spans[0].Type)
}

func TestEnsembleAllFailed(t *testing.T) {
	e := NewEnsemble(0, Static{Err: errors.New("a")}, Static{Err: errors.New("b")})
	_, err := e.Detect(context.Background(), "x", "en")
	require.ErrorIs(t, err, ErrAllDetectorsFailed)
	assert.ErrorContains(t, err, "static: a")
}

func TestEnsembleEmpty(t *testing.T) {
	_, err := NewEnsemble(0).Detect(context.Background(), "x", "en")
	assert.ErrorIs(t, err, ErrNoDetectors)
}

func TestEnsembleBudget(t *testing.T) {
	slow := Func(func(ctx context.Context, text, language string) ([]privacy.Span, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	fast := Static{Spans: []privacy.Span{{Type: privacy.Person, Start: 0, End: 1, Confidence: 1}}}

	start := time.Now()
	spans, err := NewEnsemble(20*time.Millisecond, slow, fast).Detect(context.Background(), "x", "en")
	require.NoError(t, err)
	assert.Len(t, spans, 1)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = NewEnsemble(20*time.Millisecond, slow).Detect(context.Background(), "x", "en")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnsembleClose(t *testing.T) {
	c := &closingDetector{}
	require.NoError(t, NewEnsemble(0, c, Static{}).Close())
	assert.True(t, c.closed)
}
