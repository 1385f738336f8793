package privacy

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultLanguage is used when Analyze is called without a language.
const DefaultLanguage = "en"

// SampleLength bounds the redacted prefix handed to audit consumers.
const SampleLength = 100

// Detector produces candidate spans for text. Implementations may block;
// ctx bounds the call.
type Detector interface {
	Detect(ctx context.Context, text, language string) ([]Span, error)
}

// Result is the outcome of one analysis. It is never modified after it
// is returned.
type Result struct {
	Entities     []Span       `json:"entities"`
	RedactedText string       `json:"redacted_text"`
	Score        int          `json:"privacy_score"`
	InputLength  int          `json:"-"`
	Rejected     []*SpanError `json:"-"`
	// Clamped lists candidates kept after their offsets or confidence
	// were forced into range.
	Clamped []*SpanError `json:"-"`
}

// AuditSummary is the only view of a Result that leaves the process for
// audit logging. It never contains raw input.
type AuditSummary struct {
	PrivacyScore   int          `json:"privacy_score"`
	EntityTypes    []EntityType `json:"entity_types"`
	EntityCount    int          `json:"entity_count"`
	InputLength    int          `json:"input_length"`
	OutputLength   int          `json:"output_length"`
	RedactedSample string       `json:"redacted_text_sample"`
}

// Summary builds the audit view of r. Lengths count characters.
func (r *Result) Summary() AuditSummary {
	return AuditSummary{
		PrivacyScore:   r.Score,
		EntityTypes:    Types(r.Entities),
		EntityCount:    len(r.Entities),
		InputLength:    r.InputLength,
		OutputLength:   utf8.RuneCountInString(r.RedactedText),
		RedactedSample: prefix(r.RedactedText, SampleLength),
	}
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Options configures an Engine.
type Options struct {
	Tables Tables
	Rules  []Rule
	// MaxTextLength caps input size in bytes. Zero means no limit.
	MaxTextLength int
	// Logf receives one line per rejected or clamped candidate span. Nil
	// discards.
	Logf func(format string, args ...any)
}

// Engine runs detection and consolidation. It holds only read-only
// configuration and may be shared between goroutines.
type Engine struct {
	detector Detector
	tables   Tables
	rules    []Rule
	redactor *Redactor
	maxLen   int
	logf     func(format string, args ...any)
}

// NewEngine returns an Engine using d for candidate spans.
func NewEngine(d Detector, opts Options) *Engine {
	if opts.Tables.Priorities == nil {
		opts.Tables = DefaultTables()
	}
	if opts.Rules == nil {
		opts.Rules = DefaultRules()
	}
	return &Engine{
		detector: d,
		tables:   opts.Tables,
		rules:    opts.Rules,
		redactor: NewRedactor(opts.Tables.Placeholders, opts.Tables.SuffixTypes),
		maxLen:   opts.MaxTextLength,
		logf:     opts.Logf,
	}
}

// Tables returns the engine's tables.
func (e *Engine) Tables() Tables {
	return e.tables
}

// Analyze detects, consolidates, scores and redacts text.
func (e *Engine) Analyze(ctx context.Context, text, language string) (*Result, error) {
	if err := e.checkText(text); err != nil {
		return nil, err
	}
	if language == "" {
		language = DefaultLanguage
	}

	candidates, err := e.detector.Detect(ctx, text, language)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	res := e.consolidate(text, candidates)
	if e.logf != nil {
		for _, rej := range res.Rejected {
			e.logf("privacy: rejected candidate: %s %s [%d,%d) from %s", rej.Reason, rej.Span.Type, rej.Span.Start, rej.Span.End, rej.Span.Source)
		}
		for _, c := range res.Clamped {
			e.logf("privacy: clamped candidate: %s %s [%d,%d) from %s", c.Reason, c.Span.Type, c.Span.Start, c.Span.End, c.Span.Source)
		}
	}
	return res, nil
}

// Consolidate runs the detector-free part of Analyze over candidates.
func (e *Engine) Consolidate(text string, candidates []Span) (*Result, error) {
	if err := e.checkText(text); err != nil {
		return nil, err
	}
	return e.consolidate(text, candidates), nil
}

// Score scores entities with the engine's weights.
func (e *Engine) Score(entities []Span) int {
	return Score(entities, e.tables.Weights)
}

func (e *Engine) checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if e.maxLen > 0 && len(text) > e.maxLen {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTextTooLong, len(text), e.maxLen)
	}
	return nil
}

func (e *Engine) consolidate(text string, candidates []Span) *Result {
	valid, clamped, rejected := Sanitize(text, candidates)

	all := append(valid, Augment(text, valid, e.rules)...)
	entities := Merge(Resolve(all, e.tables.Priorities), text, e.tables.Merge)
	if entities == nil {
		entities = []Span{}
	}

	return &Result{
		Entities:     entities,
		RedactedText: e.redactor.Redact(text, entities),
		Score:        Score(entities, e.tables.Weights),
		InputLength:  utf8.RuneCountInString(text),
		Rejected:     rejected,
		Clamped:      clamped,
	}
}

// Consolidate is the pure pipeline over precomputed candidates with the
// given tables and rules.
func Consolidate(text string, candidates []Span, tables Tables, rules []Rule) *Result {
	e := NewEngine(nil, Options{Tables: tables, Rules: rules})
	return e.consolidate(text, candidates)
}
