package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/privacyshield/privacyshield/internal/app"
	"github.com/privacyshield/privacyshield/internal/audit"
	"github.com/privacyshield/privacyshield/internal/privacy"
	"github.com/privacyshield/privacyshield/internal/provider"
)

func TestRenderGolden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	r := NewRenderer(false)

	t.Run("analysis_generated", func(t *testing.T) {
		var buf bytes.Buffer
		r.Analysis(&buf, &app.Analysis{
			Result: &privacy.Result{
				Entities: []privacy.Span{
					{Type: privacy.Person, Start: 11, End: 19, Confidence: 0.95, Text: "John Doe"},
					{Type: privacy.EmailAddress, Start: 36, End: 52, Confidence: 1, Text: "john@example.com"},
				},
				RedactedText: "My name is [PERSON] and my email is [EMAIL]",
				Score:        34,
			},
			Generation: &provider.Outcome{Provider: "echo", Status: provider.StatusOK, Text: "Hello [PERSON], noted.\n"},
		})
		g.Assert(t, "analysis_generated", buf.Bytes())
	})

	t.Run("analysis_failed", func(t *testing.T) {
		var buf bytes.Buffer
		r.Analysis(&buf, &app.Analysis{
			Result: &privacy.Result{
				RedactedText: "nothing to see here",
				Rejected:     []*privacy.SpanError{{Reason: "missing entity type"}},
			},
			Generation: &provider.Outcome{Provider: "none", Status: provider.StatusFailed, Reason: provider.ReasonNotConfigured},
		})
		g.Assert(t, "analysis_failed", buf.Bytes())
	})

	t.Run("audit_recent", func(t *testing.T) {
		var buf bytes.Buffer
		r.AuditRecords(&buf, []audit.Record{
			{
				Timestamp:    time.Date(2025, 3, 2, 10, 30, 0, 0, time.UTC),
				PrivacyScore: 85,
				EntityTypes:  []privacy.EntityType{privacy.Person, privacy.PhoneNumber},
				EntityCount:  3,
				Generation:   &audit.Generation{Provider: "gemini", Status: provider.StatusOK, Length: 120},
			},
			{
				Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			},
		})
		g.Assert(t, "audit_recent", buf.Bytes())
	})
}

func TestRenderColors(t *testing.T) {
	var plain, colored bytes.Buffer
	res := &app.Analysis{Result: &privacy.Result{RedactedText: "Hi [PERSON]", Score: 80}}

	NewRenderer(false).Analysis(&plain, res)
	NewRenderer(true).Analysis(&colored, res)

	assert.NotContains(t, plain.String(), "\x1b[")
	assert.Contains(t, colored.String(), "\x1b[")
	assert.Contains(t, plain.String(), "80/100 (high risk)")
}

func TestRiskBand(t *testing.T) {
	assert.Equal(t, "low", riskBand(0))
	assert.Equal(t, "low", riskBand(29))
	assert.Equal(t, "medium", riskBand(30))
	assert.Equal(t, "medium", riskBand(69))
	assert.Equal(t, "high", riskBand(70))
	assert.Equal(t, "high", riskBand(100))
}

func TestNoAuditRecords(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(false).AuditRecords(&buf, nil)
	assert.Equal(t, "No audit records.\n", buf.String())
}
