package diff

import (
	"math"
	"strconv"

	"github.com/nullstack-solutions/iMock2-sub003/jsonpath"
	"github.com/nullstack-solutions/iMock2-sub003/jsonval"
)

// Thresholds for pairing a deletion with an addition as a rename. A pair
// merges when the values are deep-equal, or when both scores clear these
// bars.
const (
	renameKeyThreshold   = 0.55
	renameValueThreshold = 0.85
)

// DetectRenames collapses deleted/added pairs at the same parent path into
// single renamed edits. The pairing is greedy and order-dependent: each
// deletion takes the first unconsumed matching addition in original list
// order. That first-match policy is deliberate and deterministic, not an
// approximation of optimal matching, and re-running the pass on its own
// output is a no-op.
func DetectRenames(edits []Edit) []Edit {
	addedByParent := make(map[string][]int)
	for i, e := range edits {
		if e.Type == Added {
			parent := e.Path.Parent().Pointer()
			addedByParent[parent] = append(addedByParent[parent], i)
		}
	}
	if len(addedByParent) == 0 {
		return edits
	}

	consumed := make([]bool, len(edits))
	renamedAt := make(map[int]Edit)

	for d, deleted := range edits {
		if deleted.Type != Deleted || consumed[d] {
			continue
		}
		parent := deleted.Path.Parent().Pointer()
		for _, a := range addedByParent[parent] {
			if consumed[a] {
				continue
			}
			added := edits[a]
			keyScore := KeySimilarity(lastSegment(deleted.Path), lastSegment(added.Path))
			valueScore := ValueSimilarity(deleted.Left, added.Right)
			if !jsonval.Equal(deleted.Left, added.Right) &&
				(keyScore < renameKeyThreshold || valueScore < renameValueThreshold) {
				continue
			}

			consumed[d] = true
			consumed[a] = true
			anchor := d
			if a < anchor {
				anchor = a
			}
			renamedAt[anchor] = Edit{
				Path:    added.Path,
				Type:    Renamed,
				Left:    deleted.Left,
				Right:   added.Right,
				FromKey: lastSegment(deleted.Path),
				ToKey:   lastSegment(added.Path),
				Similarity: &Similarity{
					Key:   round3(keyScore),
					Value: round3(valueScore),
				},
			}
			break
		}
	}

	if len(renamedAt) == 0 {
		return edits
	}

	out := make([]Edit, 0, len(edits))
	for i, e := range edits {
		if renamed, ok := renamedAt[i]; ok {
			out = append(out, renamed)
			continue
		}
		if consumed[i] {
			continue
		}
		out = append(out, e)
	}
	return out
}

func lastSegment(p jsonpath.Path) string {
	step, ok := p.Last()
	if !ok {
		return ""
	}
	if step.IsIndex() {
		return strconv.Itoa(step.Index)
	}
	return step.Key
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
