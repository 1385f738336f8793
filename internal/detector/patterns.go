package detector

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

// Recognizer is one fixed pattern for one entity type. Group selects the
// capture reported as the span, 0 for the whole match. Validate, when
// set, drops matches that fail a checksum or range check.
type Recognizer struct {
	Name     string
	Type     privacy.EntityType
	Pattern  *regexp.Regexp
	Score    float64
	Group    int
	Validate func(match string) bool
}

func recognizer(name string, et privacy.EntityType, expr string, score float64) Recognizer {
	return Recognizer{Name: name, Type: et, Pattern: regexp.MustCompile(expr), Score: score}
}

const streetSuffix = `(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd|way|court|ct|place|pl)`

// DefaultRecognizers returns the built-in recognizers.
func DefaultRecognizers() []Recognizer {
	occupationContext := recognizer("occupation_context", privacy.Occupation,
		`(?i)\b(?:works?\s+as|job\s+is|occupation\s+is|profession\s+is|employed\s+as|position\s+is|role\s+is|title\s+is|i\s+am\s+a|i'm\s+a)\s+(?:a\s+|an\s+)?([a-z][a-z\s]{2,30}?)(?P<stop>\s+at|\s+in|\s+for|\.|,|$)`, 0.85)
	occupationContext.Group = 1
	orgContext := recognizer("org_context", privacy.Organization,
		`(?i)\b(?:works?\s+at|works?\s+for|employed\s+at|employed\s+by|company\s+is|organization\s+is)\s+([A-Za-z][A-Za-z0-9\s&.]{2,40}?)(?P<stop>\.|,|$|\s+as|\s+in)`, 0.85)
	orgContext.Group = 1

	creditCard := recognizer("credit_card", privacy.CreditCard, `\b(?:\d[ -]?){12,18}\d\b`, 1.0)
	creditCard.Validate = luhnValid
	iban := recognizer("iban", privacy.IBANCode, `\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`, 1.0)
	iban.Validate = ibanValid
	ssn := recognizer("us_ssn", privacy.USSSN, `\b\d{3}[- ]\d{2}[- ]\d{4}\b`, 0.85)
	ssn.Validate = ssnValid
	ip := recognizer("ipv4", privacy.IPAddress, `\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`, 0.6)

	return []Recognizer{
		recognizer("email", privacy.EmailAddress, `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, 1.0),
		recognizer("url", privacy.URL, `\bhttps?://[^\s"'<>]+[^\s"'<>.,;:!?)]`, 0.6),
		creditCard,
		iban,
		ssn,
		ip,
		recognizer("date_iso", privacy.DateTime, `\b(?:19|20)\d{2}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`, 0.6),
		recognizer("date_dmy", privacy.DateTime, `\b(?:0?[1-9]|[12]\d|3[01])[/.](?:0?[1-9]|1[0-2])[/.](?:19|20)\d{2}\b`, 0.6),

		recognizer("phone_plain", privacy.PhoneNumber, `\b\d{3}[-\s]?\d{4}\b`, 0.7),
		recognizer("phone_standard", privacy.PhoneNumber, `\b\d{3}[-\s]?\d{3}[-\s]?\d{4}\b`, 0.8),
		recognizer("phone_parens", privacy.PhoneNumber, `\(\d{3}\)\s?\d{3}[-\s]?\d{4}\b`, 0.9),
		recognizer("indian_phone", privacy.PhoneNumber, `\+?91[-\s]?\d{10}\b`, 0.9),
		recognizer("indian_phone_plain", privacy.PhoneNumber, `\b[6-9]\d{9}\b`, 0.75),

		occupationContext,
		recognizer("occupation_title", privacy.Occupation,
			`(?i)\b(software\s+engineer|data\s+scientist|product\s+manager|designer|developer|teacher|doctor|nurse|lawyer|accountant|engineer|manager|consultant|analyst|architect|ceo|cto|cfo|director|professor|researcher|student)\b`, 0.8),

		orgContext,
		recognizer("org_suffix", privacy.Organization,
			`\b([A-Z][A-Za-z0-9\s&.]{2,40})\s+(?:Inc\.?|LLC|Ltd\.?|Corporation|Corp\.?|Company|Co\.?|Technologies|Tech|Systems|Solutions|Services|Group|International|Pvt\.?\s+Ltd\.?|Limited)\b`, 0.9),

		recognizer("full_address_zip", privacy.Location,
			`(?i)\b\d+\s+[A-Za-z\s]+`+streetSuffix+`[\s,]+[A-Za-z\s]+[\s,]+[A-Z]{2}[\s,]+\d{5}(?:-\d{4})?\b`, 0.95),
		recognizer("address_city_zip", privacy.Location,
			`(?i)\b\d+\s+[A-Za-z\s]+`+streetSuffix+`[\s,]+[A-Za-z\s]+[\s,]+\d{5}(?:-\d{4})?\b`, 0.9),
		recognizer("street_address", privacy.Location,
			`(?i)\b\d+\s+[A-Za-z\s]+`+streetSuffix+`\b`, 0.75),

		recognizer("aadhaar_spaced", privacy.INAadhaar, `\b\d{4}\s\d{4}\s\d{4}\b`, 0.9),
		recognizer("aadhaar_plain", privacy.INAadhaar, `\b\d{12}\b`, 0.6),
		recognizer("pan_card", privacy.INPAN, `(?i)\b[A-Z]{5}\d{4}[A-Z]\b`, 0.95),
		recognizer("vehicle_reg", privacy.INVehicleRegistration, `(?i)\b[A-Z]{2}[-\s]?\d{2}[-\s]?[A-Z]{1,2}[-\s]?\d{4}\b`, 0.85),
		recognizer("indian_passport", privacy.INPassport, `(?i)\b[A-Z]\d{7}\b`, 0.9),
		recognizer("voter_id", privacy.INVoterID, `(?i)\b[A-Z]{3}\d{7}\b`, 0.85),
	}
}

// Patterns runs fixed-pattern recognizers.
type Patterns struct {
	recognizers []Recognizer
	minScore    float64
}

// PatternOptions selects recognizers. Disabled names recognizers or
// entity types to skip.
type PatternOptions struct {
	Disabled []string
	MinScore float64
	Extra    []Recognizer
}

// NewPatterns builds a pattern detector from the default recognizers.
func NewPatterns(opts PatternOptions) *Patterns {
	skip := make(map[string]bool, len(opts.Disabled))
	for _, d := range opts.Disabled {
		skip[strings.ToLower(strings.TrimSpace(d))] = true
	}
	var recs []Recognizer
	for _, r := range append(DefaultRecognizers(), opts.Extra...) {
		if skip[strings.ToLower(r.Name)] || skip[strings.ToLower(string(r.Type))] {
			continue
		}
		recs = append(recs, r)
	}
	return &Patterns{recognizers: recs, minScore: opts.MinScore}
}

// CompileRecognizer builds a recognizer from configuration.
func CompileRecognizer(name, entityType, expr string, score float64, group int) (Recognizer, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Recognizer{}, fmt.Errorf("recognizer %q: %w", name, err)
	}
	if group < 0 || group > re.NumSubexp() {
		return Recognizer{}, fmt.Errorf("recognizer %q: group %d out of range", name, group)
	}
	return Recognizer{Name: name, Type: privacy.ParseEntityType(entityType), Pattern: re, Score: score, Group: group}, nil
}

func (p *Patterns) Name() string { return "patterns" }

// Detect returns every recognizer hit. A hit contained in a hit of the
// same type with an equal or higher score is dropped.
func (p *Patterns) Detect(ctx context.Context, text, language string) ([]privacy.Span, error) {
	var out []privacy.Span
	for _, r := range p.recognizers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.Score < p.minScore {
			continue
		}
		for _, loc := range privacy.FindAll(r.Pattern, text) {
			start, end := loc[0], loc[1]
			if r.Group > 0 {
				start, end = loc[2*r.Group], loc[2*r.Group+1]
			}
			if start < 0 || start >= end {
				continue
			}
			start, end = trimSpaces(text, start, end)
			if start >= end {
				continue
			}
			if r.Validate != nil && !r.Validate(text[start:end]) {
				continue
			}
			out = append(out, privacy.Span{
				Type:       r.Type,
				Start:      start,
				End:        end,
				Confidence: r.Score,
				Text:       text[start:end],
				Source:     "pattern:" + r.Name,
			})
		}
	}
	return removeContained(out), nil
}

func trimSpaces(text string, start, end int) (int, int) {
	for start < end && strings.ContainsRune(" \t\r\n,", rune(text[start])) {
		start++
	}
	for end > start && strings.ContainsRune(" \t\r\n,", rune(text[end-1])) {
		end--
	}
	return start, end
}

// removeContained drops spans that lie inside another span of the same
// type whose score is at least as high. Exact duplicates keep the first
// highest-scoring copy.
func removeContained(spans []privacy.Span) []privacy.Span {
	if len(spans) < 2 {
		return spans
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		if spans[i].End != spans[j].End {
			return spans[i].End > spans[j].End
		}
		return spans[i].Confidence > spans[j].Confidence
	})
	keep := make([]bool, len(spans))
	for i := range spans {
		keep[i] = true
	}
	for i := range spans {
		for j := range spans {
			if i == j || !keep[j] || spans[i].Type != spans[j].Type {
				continue
			}
			outer, inner := spans[j], spans[i]
			if outer.Start <= inner.Start && inner.End <= outer.End && outer.Confidence >= inner.Confidence {
				if outer.Start == inner.Start && outer.End == inner.End && j > i {
					continue
				}
				keep[i] = false
				break
			}
		}
	}
	out := spans[:0]
	for i, s := range spans {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}

func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func ibanValid(s string) bool {
	s = strings.ReplaceAll(s, " ", "")
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	rearranged := s[4:] + s[:4]
	var b strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			fmt.Fprintf(&b, "%d", r-'A'+10)
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(b.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

func ssnValid(s string) bool {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) != 9 {
		return false
	}
	area, group, serial := digits[:3], digits[3:5], digits[5:]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}
