package privacy

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// MergeOptions controls Merge.
type MergeOptions struct {
	// Mergeable lists the types whose fragments are joined.
	Mergeable map[EntityType]bool
	// MaxGap is the largest byte distance between a window end and the
	// next fragment that still joins.
	MaxGap int
	// SuffixWindow is how many bytes after a window are searched for a
	// postal code.
	SuffixWindow int
}

var postalSuffixRe = regexp.MustCompile(`^[\s,]*(\d{4,6})\b`)

// Merge joins runs of mergeable spans separated by at most MaxGap bytes
// into one span and extends it over a 4 to 6 digit postal code found
// within SuffixWindow bytes after it. The merged span keeps the highest
// confidence of its parts and its Text is re-sliced from text. Other
// spans pass through in order. Merging the output again changes nothing.
func Merge(spans []Span, text string, opts MergeOptions) []Span {
	if len(spans) == 0 {
		return spans
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	SortByStart(sorted)

	merged := make([]Span, 0, len(sorted))
	for i := 0; i < len(sorted); {
		cur := sorted[i]
		if !opts.Mergeable[cur.Type] {
			merged = append(merged, cur)
			i++
			continue
		}

		win := cur
		j := i + 1
		for {
			for j < len(sorted) && opts.Mergeable[sorted[j].Type] && sorted[j].Start-win.End <= opts.MaxGap {
				if sorted[j].End > win.End {
					win.End = sorted[j].End
				}
				if sorted[j].Confidence > win.Confidence {
					win.Confidence = sorted[j].Confidence
				}
				j++
			}

			limit := len(text)
			if j < len(sorted) && sorted[j].Start < limit {
				limit = sorted[j].Start
			}
			end, ok := postalSuffix(text, win.End, opts.SuffixWindow, limit)
			if !ok {
				break
			}
			win.End = end
		}

		win.Text = text[win.Start:win.End]
		merged = append(merged, win)
		i = j
	}
	return merged
}

// postalSuffix reports where a postal code right after end finishes. The
// code must be a whole numeral in text and must not run past limit. A
// window whose last token is already a 4 to 6 digit numeral takes no
// second one.
func postalSuffix(text string, end, window, limit int) (int, bool) {
	if end <= 0 || end >= len(text) {
		return 0, false
	}
	if endsInPostalCode(text[:end]) {
		return 0, false
	}

	tail := text[end:min(end+window, len(text))]
	m := postalSuffixRe.FindStringSubmatchIndex(tail)
	if m == nil {
		return 0, false
	}
	if m[2] == 0 && isASCIIDigit(text[end-1]) {
		// The numeral continues a digit run inside the window.
		return 0, false
	}
	stop := end + m[3]
	if stop > limit {
		return 0, false
	}
	if stop < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[stop:]); r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return 0, false
		}
	}
	return stop, true
}

// endsInPostalCode reports whether s ends with a standalone 4 to 6 digit
// numeral.
func endsInPostalCode(s string) bool {
	i := len(s)
	for i > 0 && isASCIIDigit(s[i-1]) {
		i--
	}
	if n := len(s) - i; n < 4 || n > 6 {
		return false
	}
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }
