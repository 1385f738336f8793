package privacy

// Resolve removes overlaps from spans using priorities. Spans are visited
// in start order. A span that overlaps an already kept span replaces it
// only when its priority is strictly greater; on a tie the kept span
// stays. Only the first overlapping kept span is compared. Because every
// kept span starts at or before the visited one, two kept spans that both
// overlap it would already overlap each other, so the scan never leaves
// a residual pair behind. TestResolveLeavesNoResidualOverlap checks this
// with Overlaps.
//
// The input slice is not modified. The result is sorted by start.
func Resolve(spans []Span, priorities PriorityTable) []Span {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	SortByStart(sorted)

	resolved := make([]Span, 0, len(sorted))
	for _, e := range sorted {
		idx := -1
		for i, r := range resolved {
			if e.Intersects(r) {
				idx = i
				break
			}
		}
		if idx < 0 {
			resolved = append(resolved, e)
			continue
		}
		if priorities.Priority(e.Type) > priorities.Priority(resolved[idx].Type) {
			resolved = append(resolved[:idx], resolved[idx+1:]...)
			resolved = append(resolved, e)
		}
	}

	SortByStart(resolved)
	return resolved
}
