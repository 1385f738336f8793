package privacy

import (
	"regexp"
	"sort"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Redact replaces every entity in text with its placeholder and
// normalizes the result. Location placeholders absorb a trailing postal
// code; use a Redactor to choose other types.
func Redact(text string, entities []Span, placeholders Placeholders) string {
	return NewRedactor(placeholders, map[EntityType]bool{Location: true}).Redact(text, entities)
}

// Redactor substitutes placeholders for entity spans. It is safe for
// concurrent use.
type Redactor struct {
	placeholders Placeholders
	suffixTypes  map[EntityType]bool
	tokens       map[string]bool
	suffix       map[string]bool
	base         *normalizer
}

// NewRedactor compiles the normalization patterns for every configured
// placeholder. suffixTypes are the types whose placeholders swallow a 4
// to 6 digit numeral that directly follows them.
func NewRedactor(placeholders Placeholders, suffixTypes map[EntityType]bool) *Redactor {
	r := &Redactor{
		placeholders: placeholders,
		suffixTypes:  suffixTypes,
		tokens:       make(map[string]bool),
		suffix:       make(map[string]bool),
	}
	for _, tok := range placeholders {
		if tok != "" {
			r.tokens[tok] = true
		}
	}
	for et, ok := range suffixTypes {
		if ok {
			tok := placeholders.For(et)
			r.tokens[tok] = true
			r.suffix[tok] = true
		}
	}
	r.base = newNormalizer(r.tokens, r.suffix)
	return r
}

// Redact rewrites text. Spans are cut from the original text in one
// left-to-right pass, so offsets never shift; a span that starts inside
// the previous one only extends what that placeholder covers. Text
// without entities is returned unchanged.
func (r *Redactor) Redact(text string, entities []Span) string {
	if len(entities) == 0 {
		return text
	}

	sorted := make([]Span, len(entities))
	copy(sorted, entities)
	SortByStart(sorted)

	var b strings.Builder
	b.Grow(len(text))
	var extra []string
	cursor := 0
	for _, e := range sorted {
		start, end := max(e.Start, 0), min(e.End, len(text))
		if start >= end {
			continue
		}
		if start < cursor {
			cursor = max(cursor, end)
			continue
		}
		tok := r.placeholders.For(e.Type)
		if !r.tokens[tok] {
			extra = append(extra, tok)
		}
		b.WriteString(text[cursor:start])
		b.WriteString(tok)
		cursor = end
	}
	b.WriteString(text[cursor:])

	n := r.base
	if len(extra) > 0 {
		tokens := make(map[string]bool, len(r.tokens)+len(extra))
		for tok := range r.tokens {
			tokens[tok] = true
		}
		for _, tok := range extra {
			tokens[tok] = true
		}
		n = newNormalizer(tokens, r.suffix)
	}
	return n.normalize(b.String())
}

// Normalize applies the clean-up that follows substitution: runs of one
// placeholder separated by spaces or commas collapse to a single token,
// postal-code numerals after suffix placeholders are dropped, and
// whitespace is squeezed and trimmed. Normalize(Normalize(s)) equals
// Normalize(s).
func (r *Redactor) Normalize(text string) string {
	return r.base.normalize(text)
}

type normalizer struct {
	collapse []*regexp.Regexp
	repl     []string
	strip    *regexp.Regexp
}

func newNormalizer(tokens, suffix map[string]bool) *normalizer {
	n := &normalizer{}
	for _, tok := range sortedKeys(tokens) {
		q := regexp.QuoteMeta(tok)
		n.collapse = append(n.collapse, regexp.MustCompile(q+`(?:[\s,]*`+q+`)+`))
		n.repl = append(n.repl, tok)
	}
	if len(suffix) > 0 {
		var alts []string
		for _, tok := range sortedKeys(suffix) {
			alts = append(alts, regexp.QuoteMeta(tok))
		}
		n.strip = regexp.MustCompile(`(` + strings.Join(alts, "|") + `)(?:[\s,]*\d{4,6}\b)+`)
	}
	return n
}

func (n *normalizer) normalize(s string) string {
	for {
		prev := s
		if n.strip != nil {
			s = n.strip.ReplaceAllString(s, "${1}")
		}
		for i, re := range n.collapse {
			s = re.ReplaceAllLiteralString(s, n.repl[i])
		}
		if s == prev {
			break
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
