package privacy

import "regexp"

// StopGroup names the capture group that bounds a match without
// consuming it. RE2 has no look-ahead, so patterns end in
// (?P<stop>...) instead of (?=...).
const StopGroup = "stop"

// FindAll returns the submatch offsets of every match of re in text.
// When re has a stop group, the reported match ends where the stop group
// starts and the next search resumes there, so trailing context can
// start the following match.
func FindAll(re *regexp.Regexp, text string) [][]int {
	stop := re.SubexpIndex(StopGroup)
	var out [][]int
	pos := 0
	for pos <= len(text) {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}
		if stop > 0 && loc[2*stop] >= 0 {
			loc[1] = loc[2*stop]
		}
		out = append(out, loc)

		next := loc[1]
		if next <= loc[0] {
			next = loc[0] + 1
		}
		pos = next
	}
	return out
}
