// Package audit records analysis metadata. Records carry only the
// privacy summary of a request, never its input text.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

// Generation summarizes the model call that followed an analysis.
type Generation struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	// Length is the model output length in characters.
	Length int `json:"length"`
}

// Record is one audit log entry.
type Record struct {
	ID             string               `json:"id"`
	Timestamp      time.Time            `json:"timestamp"`
	PrivacyScore   int                  `json:"privacy_score"`
	EntityTypes    []privacy.EntityType `json:"entity_types"`
	EntityCount    int                  `json:"entity_count"`
	InputLength    int                  `json:"input_length"`
	OutputLength   int                  `json:"output_length"`
	RedactedSample string               `json:"redacted_text_sample"`
	Generation     *Generation          `json:"generation,omitempty"`
}

// NewRecord stamps a summary with a fresh id and the current UTC time.
func NewRecord(sum privacy.AuditSummary, gen *Generation) *Record {
	types := sum.EntityTypes
	if types == nil {
		types = []privacy.EntityType{}
	}
	return &Record{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		PrivacyScore:   sum.PrivacyScore,
		EntityTypes:    types,
		EntityCount:    sum.EntityCount,
		InputLength:    sum.InputLength,
		OutputLength:   sum.OutputLength,
		RedactedSample: sum.RedactedSample,
		Generation:     gen,
	}
}
