package server

import (
	"context"

	"github.com/privacyshield/privacyshield/internal/privacy"
	"github.com/privacyshield/privacyshield/internal/scrub"
)

// sampleText is synthetic; it names no real person.
const sampleText = "Hi, I'm Priya Sharma from Pune. Reach me at priya.sharma@example.com or +91 9876543210. " +
	"I work as a data scientist at Acme Analytics Pvt Ltd and live at 42 MG Road, Pune 411001."

type sampleResponse struct {
	OriginalText string         `json:"original_text"`
	RedactedText string         `json:"redacted_text"`
	Entities     []privacy.Span `json:"entities"`
	PrivacyScore int            `json:"privacy_score"`
}

// buildSample analyzes sampleText with the live engine so clients can
// render a realistic result without sending their own data. Detection
// errors fall back to an empty result.
func buildSample(ctx context.Context, engine *privacy.Engine) sampleResponse {
	res, err := engine.Analyze(ctx, sampleText, privacy.DefaultLanguage)
	if err != nil {
		scrub.Logf("sample analysis failed: %v", err)
		return sampleResponse{
			OriginalText: sampleText,
			RedactedText: sampleText,
			Entities:     []privacy.Span{},
		}
	}
	return sampleResponse{
		OriginalText: sampleText,
		RedactedText: res.RedactedText,
		Entities:     res.Entities,
		PrivacyScore: res.Score,
	}
}
