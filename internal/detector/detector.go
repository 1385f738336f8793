// Package detector produces candidate PII spans for the privacy engine.
package detector

import (
	"context"
	"errors"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

var (
	// ErrNoDetectors is returned by an Ensemble with nothing to run.
	ErrNoDetectors = errors.New("detector: no detectors configured")
	// ErrAllDetectorsFailed is returned when every ensemble member failed.
	ErrAllDetectorsFailed = errors.New("detector: all detectors failed")
)

// Detector is the contract the privacy engine consumes.
type Detector = privacy.Detector

// Named is implemented by detectors that report a stable name for logs.
type Named interface {
	Name() string
}

// Static returns the same spans for every call.
type Static struct {
	Spans []privacy.Span
	Err   error
}

func (s Static) Name() string { return "static" }

func (s Static) Detect(ctx context.Context, text, language string) ([]privacy.Span, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]privacy.Span, len(s.Spans))
	copy(out, s.Spans)
	return out, nil
}

// Func adapts a function to Detector.
type Func func(ctx context.Context, text, language string) ([]privacy.Span, error)

func (f Func) Detect(ctx context.Context, text, language string) ([]privacy.Span, error) {
	return f(ctx, text, language)
}

func nameOf(d Detector) string {
	if n, ok := d.(Named); ok {
		return n.Name()
	}
	return "detector"
}
