package privacy

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Rule is one contextual heuristic. Group 1 of Pattern captures the name.
// An optional StopGroup bounds the capture, see FindAll.
type Rule struct {
	Name       string
	Pattern    *regexp.Regexp
	Confidence float64
}

// NewRule compiles a rule. The expression is matched case-insensitively.
func NewRule(name, expr string, confidence float64) (Rule, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", name, err)
	}
	if re.NumSubexp() < 1 {
		return Rule{}, fmt.Errorf("rule %q: pattern has no capture group", name)
	}
	return Rule{Name: name, Pattern: re, Confidence: confidence}, nil
}

func mustRule(name, expr string, confidence float64) Rule {
	r, err := NewRule(name, expr, confidence)
	if err != nil {
		panic(err)
	}
	return r
}

const nameCapture = `([a-z][a-z\s]+?)`

var defaultRules = []Rule{
	mustRule("my_name_is", `(?:my name is|my name's)\s+`+nameCapture+`(?P<stop>\s+and|\s+from|\s+works?|\.|,|$)`, 0.95),
	mustRule("i_am", `(?:I am|I'm)\s+`+nameCapture+`(?P<stop>\s+and|\s+from|\s+a\s+|\.|,|$)`, 0.85),
	mustRule("call_me", `(?:call me|called)\s+`+nameCapture+`(?P<stop>\s+and|\s+from|\.|,|$)`, 0.9),
	mustRule("this_is", `(?:this is|meet)\s+`+nameCapture+`(?P<stop>\s+from|\s+who|\.|,|$)`, 0.85),
	mustRule("named", `(?:named)\s+`+nameCapture+`(?P<stop>\s+from|\.|,|$)`, 0.85),
	mustRule("greeting", `(?:hi|hello|hey),?\s+(?:i'm|i am|this is)\s+`+nameCapture+`(?P<stop>\s+and|\s+from|\.|,|$)`, 0.9),
	mustRule("name_from_place", `\b`+nameCapture+`\s+from\s+([a-z]+)`, 0.9),
}

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}

// SelectRules drops the named rules from rules.
func SelectRules(rules []Rule, disabled []string) []Rule {
	if len(disabled) == 0 {
		return rules
	}
	skip := make(map[string]bool, len(disabled))
	for _, n := range disabled {
		skip[n] = true
	}
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if !skip[r.Name] {
			out = append(out, r)
		}
	}
	return out
}

var stopWords = map[string]bool{
	"and": true, "the": true, "is": true, "at": true, "to": true, "for": true,
	"of": true, "in": true, "on": true, "my": true, "email": true, "with": true,
	"here": true, "there": true, "what": true, "how": true, "when": true,
	"where": true, "why": true, "who": true, "can": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true,
	"must": true, "shall": true, "be": true, "am": true, "are": true,
	"works": true, "work": true, "working": true,
}

// Augment runs rules over text and returns PERSON spans that the
// detectors missed. Candidates that overlap a PERSON span in existing are
// dropped. Outputs are not de-duplicated against each other.
func Augment(text string, existing []Span, rules []Rule) []Span {
	var out []Span
	for _, r := range rules {
		for _, c := range r.matches(text) {
			if rejectName(c.Text) || overlapsPerson(c, existing) {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

// matches returns every candidate of r in text with surrounding
// whitespace trimmed from the offsets.
func (r Rule) matches(text string) []Span {
	var out []Span
	for _, loc := range FindAll(r.Pattern, text) {
		if loc[2] < 0 {
			continue
		}
		start, end := trimOffsets(text, loc[2], loc[3])
		if start >= end {
			continue
		}
		out = append(out, Span{
			Type:       Person,
			Start:      start,
			End:        end,
			Confidence: r.Confidence,
			Text:       text[start:end],
			Source:     "context:" + r.Name,
		})
	}
	return out
}

func trimOffsets(text string, start, end int) (int, int) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func rejectName(name string) bool {
	folded := cases.Fold().String(strings.TrimSpace(name))
	return stopWords[folded] || strings.Contains(folded, "email") || len([]rune(folded)) <= 1
}

func overlapsPerson(c Span, existing []Span) bool {
	for _, e := range existing {
		if e.Type == Person && e.Intersects(c) {
			return true
		}
	}
	return false
}
