package worker

import (
	"regexp"
	"strings"

	"github.com/nullstack-solutions/iMock2-sub003/task"
)

// keyPattern matches a `"key":` occurrence on a single line. It is a
// line-scan heuristic, not a parser: strings that merely look like keys
// (for example inside nested values on the same line) match too. Known and
// accepted limitation of the positions feature.
var keyPattern = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"\s*:`)

// scanKeyPositions maps each key-looking occurrence to the span of its first
// appearance. Liveness is checked once per line.
func scanKeyPositions(text string, token *task.Token) map[string]KeySpan {
	positions := make(map[string]KeySpan)
	for lineIdx, line := range strings.Split(text, "\n") {
		if token != nil && token.Cancelled() {
			return nil
		}
		for _, match := range keyPattern.FindAllStringSubmatchIndex(line, -1) {
			key := line[match[2]:match[3]]
			if _, seen := positions[key]; seen {
				continue
			}
			positions[key] = KeySpan{
				Line:      lineIdx + 1,
				Column:    match[0] + 1,
				EndColumn: match[3] + 2, // past the closing quote
			}
		}
	}
	return positions
}
