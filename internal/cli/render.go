package cli

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/privacyshield/privacyshield/internal/app"
	"github.com/privacyshield/privacyshield/internal/audit"
	"github.com/privacyshield/privacyshield/internal/privacy"
	"github.com/privacyshield/privacyshield/internal/provider"
)

// Renderer writes human-readable output.
type Renderer struct {
	colors map[string]*color.Color
}

// NewRenderer returns a renderer; enabled toggles ANSI colors.
func NewRenderer(enabled bool) *Renderer {
	r := &Renderer{
		colors: map[string]*color.Color{
			"low":         color.New(color.FgGreen),
			"medium":      color.New(color.FgYellow),
			"high":        color.New(color.FgRed, color.Bold),
			"type":        color.New(color.FgCyan),
			"placeholder": color.New(color.FgMagenta, color.Bold),
			"heading":     color.New(color.FgWhite, color.Bold),
			"error":       color.New(color.FgRed),
		},
	}
	for _, c := range r.colors {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *Renderer) paint(name, s string) string {
	return r.colors[name].Sprint(s)
}

// riskBand buckets a privacy score.
func riskBand(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 30:
		return "medium"
	default:
		return "low"
	}
}

// Score writes the one-line score summary.
func (r *Renderer) Score(w io.Writer, score int) {
	band := riskBand(score)
	fmt.Fprintf(w, "%s %s\n", r.paint("heading", "Privacy score:"), r.paint(band, fmt.Sprintf("%d/%d (%s risk)", score, privacy.MaxScore, band)))
}

// Analysis writes score, entities, redacted text and generation outcome.
func (r *Renderer) Analysis(w io.Writer, out *app.Analysis) {
	res := out.Result
	r.Score(w, res.Score)

	fmt.Fprintf(w, "\n%s\n", r.paint("heading", fmt.Sprintf("Entities (%d)", len(res.Entities))))
	if len(res.Entities) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, e := range res.Entities {
		fmt.Fprintf(w, "  %s %-9s %.2f  %q\n",
			r.paint("type", fmt.Sprintf("%-16s", e.Type)),
			fmt.Sprintf("[%d,%d)", e.Start, e.End),
			e.Confidence,
			e.Text)
	}
	if n := len(res.Rejected); n > 0 {
		fmt.Fprintf(w, "  %s\n", r.paint("error", fmt.Sprintf("%d malformed candidate span(s) skipped", n)))
	}

	fmt.Fprintf(w, "\n%s\n  %s\n", r.paint("heading", "Redacted"), r.highlight(res.RedactedText))

	if g := out.Generation; g != nil {
		r.generation(w, g)
	}
}

func (r *Renderer) generation(w io.Writer, g *provider.Outcome) {
	fmt.Fprintf(w, "\n%s ", r.paint("heading", fmt.Sprintf("Generation (%s):", g.Provider)))
	if !g.OK() {
		fmt.Fprintln(w, r.paint("error", fmt.Sprintf("%s, %s", g.Status, g.Reason)))
		return
	}
	fmt.Fprintln(w, g.Status)
	for _, line := range strings.Split(strings.TrimSpace(g.Text), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

var placeholderRe = regexp.MustCompile(`\[[A-Z][A-Z0-9_]*\]`)

// highlight colors bracketed placeholder tokens. Custom templates without
// brackets are left as they are.
func (r *Renderer) highlight(redacted string) string {
	return placeholderRe.ReplaceAllStringFunc(redacted, func(tok string) string {
		return r.paint("placeholder", tok)
	})
}

// AuditRecords writes one line per record, newest first as given.
func (r *Renderer) AuditRecords(w io.Writer, recs []audit.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No audit records.")
		return
	}
	fmt.Fprintln(w, r.paint("heading", fmt.Sprintf("%-20s  %5s  %8s  %-10s  %s", "TIME", "SCORE", "ENTITIES", "GENERATION", "TYPES")))
	for _, rec := range recs {
		gen := "-"
		if rec.Generation != nil {
			gen = rec.Generation.Status
		}
		types := make([]string, len(rec.EntityTypes))
		for i, t := range rec.EntityTypes {
			types[i] = string(t)
		}
		fmt.Fprintf(w, "%-20s  %s  %8d  %-10s  %s\n",
			rec.Timestamp.UTC().Format(time.RFC3339),
			r.paint(riskBand(rec.PrivacyScore), fmt.Sprintf("%5d", rec.PrivacyScore)),
			rec.EntityCount,
			gen,
			strings.Join(types, ","))
	}
}
