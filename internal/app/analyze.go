package app

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/privacyshield/privacyshield/internal/audit"
	"github.com/privacyshield/privacyshield/internal/privacy"
	"github.com/privacyshield/privacyshield/internal/provider"
	"github.com/privacyshield/privacyshield/internal/telemetry"
)

// Request is one analysis call.
type Request struct {
	Text     string
	Language string
	// Generate forwards the redacted text to the generation provider.
	Generate bool
	// Route labels telemetry, e.g. "/v1/analyze" or "cli".
	Route string
}

// Analysis is the outcome of Analyze. Generation is nil when it was not
// requested.
type Analysis struct {
	Result     *privacy.Result
	Generation *provider.Outcome
}

// Analyze runs the privacy pipeline and, when asked, sends only the
// redacted text to the generation provider. Every successful analysis
// is handed to the audit emitter as a summary without raw text.
func (a *App) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	start := time.Now()
	ctx, span := a.Telemetry.StartSpan(ctx, "privacyshield.analyze", map[string]any{
		"privacyshield.route":     req.Route,
		"privacyshield.language":  req.Language,
		"privacyshield.generate":  req.Generate,
		"privacyshield.input_len": utf8.RuneCountInString(req.Text),
	})
	defer span.End()

	report := telemetry.Analysis{
		Route:        req.Route,
		ProviderType: a.Config.Provider.Type,
		Generation:   "skipped",
	}
	defer func() {
		report.DurationMs = msSince(start)
		a.Telemetry.RecordAnalysis(ctx, report)
	}()

	detectStart := time.Now()
	res, err := a.Engine.Analyze(ctx, req.Text, req.Language)
	report.DetectMs = msSince(detectStart)
	if err != nil {
		report.Outcome = "error"
		if IsInputError(err) {
			report.Outcome = "rejected"
		}
		span.SetStatus(codes.Error, report.Outcome)
		return nil, err
	}
	report.Outcome = "ok"
	report.PrivacyScore = res.Score
	for _, e := range res.Entities {
		report.EntityTypes = append(report.EntityTypes, string(e.Type))
	}
	span.SetAttributes(
		attribute.Int("privacyshield.entity_count", len(res.Entities)),
		attribute.Int("privacyshield.privacy_score", res.Score),
		attribute.Int("privacyshield.rejected_spans", len(res.Rejected)),
	)

	out := &Analysis{Result: res}
	var gen *audit.Generation
	if req.Generate {
		genStart := time.Now()
		outcome := provider.Complete(ctx, a.Provider, provider.Request{
			Prompt: res.RedactedText,
			System: a.Config.Provider.SystemPrompt,
		})
		report.GenerationMs = msSince(genStart)
		report.Generation = outcome.Status
		out.Generation = &outcome
		gen = &audit.Generation{
			Provider: outcome.Provider,
			Status:   outcome.Status,
			Reason:   outcome.Reason,
			Length:   utf8.RuneCountInString(outcome.Text),
		}
		span.SetAttributes(attribute.String("privacyshield.generation", outcome.Status))
	}

	a.Audit.Emit(audit.NewRecord(a.summary(res), gen))
	return out, nil
}

// Score scores a caller-supplied entity set with the configured weights.
func (a *App) Score(entities []privacy.Span) int {
	return a.Engine.Score(entities)
}

func (a *App) summary(res *privacy.Result) privacy.AuditSummary {
	sum := res.Summary()
	if n := a.Config.Audit.SampleSize; n > 0 {
		sum.RedactedSample = truncateRunes(sum.RedactedSample, n)
	}
	return sum
}

// IsInputError reports whether err is the caller's fault: empty or
// oversized text.
func IsInputError(err error) bool {
	return errors.Is(err, privacy.ErrEmptyText) || errors.Is(err, privacy.ErrTextTooLong)
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
