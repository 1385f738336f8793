package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/privacyshield/privacyshield/internal/privacy"
	"github.com/privacyshield/privacyshield/internal/scrub"
)

// Ensemble runs several detectors concurrently and concatenates their
// spans in member order. A member that fails or overruns the budget is
// logged and skipped; the call fails only when every member does.
type Ensemble struct {
	members []Detector
	budget  time.Duration
}

// NewEnsemble builds an ensemble. A zero budget leaves members bound only
// by the caller's context.
func NewEnsemble(budget time.Duration, members ...Detector) *Ensemble {
	kept := make([]Detector, 0, len(members))
	for _, m := range members {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return &Ensemble{members: kept, budget: budget}
}

func (e *Ensemble) Name() string { return "ensemble" }

// Members returns the names of the member detectors.
func (e *Ensemble) Members() []string {
	out := make([]string, len(e.members))
	for i, m := range e.members {
		out[i] = nameOf(m)
	}
	return out
}

func (e *Ensemble) Detect(ctx context.Context, text, language string) ([]privacy.Span, error) {
	if len(e.members) == 0 {
		return nil, ErrNoDetectors
	}
	if e.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.budget)
		defer cancel()
	}

	type result struct {
		spans []privacy.Span
		err   error
	}
	results := make([]result, len(e.members))
	var wg sync.WaitGroup
	for i, m := range e.members {
		wg.Add(1)
		go func(i int, m Detector) {
			defer wg.Done()
			spans, err := m.Detect(ctx, text, language)
			results[i] = result{spans: spans, err: err}
		}(i, m)
	}
	wg.Wait()

	var out []privacy.Span
	var errs []error
	for i, r := range results {
		if r.err != nil {
			name := nameOf(e.members[i])
			scrub.Logf("detector %s failed: %v", name, r.err)
			errs = append(errs, fmt.Errorf("%s: %w", name, r.err))
			continue
		}
		out = append(out, r.spans...)
	}
	if len(errs) == len(e.members) {
		return nil, fmt.Errorf("%w: %w", ErrAllDetectorsFailed, errors.Join(errs...))
	}
	return out, nil
}

// Close closes members that hold resources.
func (e *Ensemble) Close() error {
	var errs []error
	for _, m := range e.members {
		if c, ok := m.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
