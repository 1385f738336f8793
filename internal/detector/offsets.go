package detector

import "unicode/utf8"

// runeIndex converts character offsets to byte offsets within one text.
type runeIndex struct {
	bytes []int
}

func newRuneIndex(text string) runeIndex {
	idx := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		idx = append(idx, i)
	}
	idx = append(idx, len(text))
	return runeIndex{bytes: idx}
}

// byteOffset maps rune offset r to a byte offset. Out of range offsets
// are reported as not ok.
func (ri runeIndex) byteOffset(r int) (int, bool) {
	if r < 0 || r >= len(ri.bytes) {
		return 0, false
	}
	return ri.bytes[r], true
}
