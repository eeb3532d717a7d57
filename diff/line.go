package diff

import "strings"

// LineEdit is one mismatching line between two texts. Line is 0-based; a
// side that has no such line reports the empty string.
type LineEdit struct {
	Line  int    `json:"line"`
	Type  Type   `json:"type"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// LineStats aggregates a line comparison.
type LineStats struct {
	Total     int `json:"total"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// Lines compares two texts line by line. Liveness is checked once per line;
// aborted is true when the comparison was cancelled.
func Lines(left, right string, live Liveness) (edits []LineEdit, stats LineStats, aborted bool) {
	leftLines := strings.Split(left, "\n")
	rightLines := strings.Split(right, "\n")

	total := len(leftLines)
	if len(rightLines) > total {
		total = len(rightLines)
	}

	for i := 0; i < total; i++ {
		if cancelled(live) {
			return nil, LineStats{}, true
		}
		var leftLine, rightLine string
		if i < len(leftLines) {
			leftLine = leftLines[i]
		}
		if i < len(rightLines) {
			rightLine = rightLines[i]
		}
		if leftLine == rightLine {
			continue
		}
		kind := Changed
		if i >= len(leftLines) {
			kind = Added
		} else if i >= len(rightLines) {
			kind = Deleted
		}
		edits = append(edits, LineEdit{Line: i, Type: kind, Left: leftLine, Right: rightLine})
	}

	stats = LineStats{Total: total, Changed: len(edits), Unchanged: total - len(edits)}
	return edits, stats, false
}
