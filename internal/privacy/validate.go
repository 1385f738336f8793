package privacy

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyText is returned for empty or whitespace-only input.
	ErrEmptyText = errors.New("privacy: text is empty")
	// ErrTextTooLong is returned when input exceeds the engine limit.
	ErrTextTooLong = errors.New("privacy: text exceeds maximum length")
	// ErrMalformedSpan marks a candidate span that violates the detector
	// contract.
	ErrMalformedSpan = errors.New("privacy: malformed candidate span")
)

// SpanError reports a candidate span that broke the detector contract,
// either rejected or kept after clamping.
type SpanError struct {
	Span   Span
	Reason string
}

func (e *SpanError) Error() string {
	return fmt.Sprintf("%v: %s %s [%d,%d) from %q", ErrMalformedSpan, e.Reason, e.Span.Type, e.Span.Start, e.Span.End, e.Span.Source)
}

func (e *SpanError) Unwrap() error {
	return ErrMalformedSpan
}

// Sanitize checks candidate spans against text. Offsets outside the text
// are clamped to its bounds, confidence is clamped to [0,1] and Text is
// re-sliced; each clamped span is also reported in clamped with its
// original values. Spans that stay empty or inverted after clamping,
// split a UTF-8 sequence, have no type or carry a NaN confidence are
// rejected. Valid spans keep their input order.
func Sanitize(text string, spans []Span) (valid []Span, clamped, rejected []*SpanError) {
	valid = make([]Span, 0, len(spans))

	for _, s := range spans {
		if s.Type == "" {
			rejected = append(rejected, &SpanError{Span: s, Reason: "missing entity type"})
			continue
		}
		if math.IsNaN(s.Confidence) {
			rejected = append(rejected, &SpanError{Span: s, Reason: "confidence is NaN"})
			continue
		}
		if s.Start >= s.End {
			rejected = append(rejected, &SpanError{Span: s, Reason: "start not before end"})
			continue
		}

		start, end := s.Start, s.End
		if start < 0 {
			start = 0
		}
		if end > len(text) {
			end = len(text)
		}
		if start >= end {
			rejected = append(rejected, &SpanError{Span: s, Reason: "outside text bounds"})
			continue
		}
		if !onRuneBoundary(text, start) || !onRuneBoundary(text, end) {
			rejected = append(rejected, &SpanError{Span: s, Reason: "offset splits a UTF-8 sequence"})
			continue
		}

		var reasons []string
		if start != s.Start || end != s.End {
			reasons = append(reasons, fmt.Sprintf("offsets clamped to [%d,%d)", start, end))
		}
		conf := math.Max(0, math.Min(1, s.Confidence))
		if conf != s.Confidence {
			reasons = append(reasons, fmt.Sprintf("confidence clamped to %g", conf))
		}
		if len(reasons) > 0 {
			clamped = append(clamped, &SpanError{Span: s, Reason: strings.Join(reasons, ", ")})
		}

		s.Start, s.End = start, end
		s.Confidence = conf
		s.Text = text[start:end]
		valid = append(valid, s)
	}
	return valid, clamped, rejected
}

func onRuneBoundary(text string, i int) bool {
	return i == len(text) || utf8.RuneStart(text[i])
}
