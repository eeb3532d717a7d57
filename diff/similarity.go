package diff

import "github.com/nullstack-solutions/iMock2-sub003/jsonval"

// Levenshtein computes the edit distance between two strings (insertion,
// deletion and substitution each cost 1) using two rolling rows of length
// len(b)+1. Distance is measured over runes.
func Levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

// NormalizedDistance scales the edit distance into [0, 1] by the longer
// length, guarding the empty/empty case.
func NormalizedDistance(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest < 1 {
		longest = 1
	}
	return float64(Levenshtein(a, b)) / float64(longest)
}

// KeySimilarity scores how alike two object keys are, 1 meaning identical.
func KeySimilarity(a, b string) float64 {
	return 1 - NormalizedDistance(a, b)
}

// ValueSimilarity scores how alike two JSON values are by comparing their
// key-order-normalized compact serializations.
func ValueSimilarity(a, b interface{}) float64 {
	return 1 - NormalizedDistance(stringifyNormalized(a), stringifyNormalized(b))
}

// stringifyNormalized serializes with object keys sorted so the score is
// insensitive to key order.
func stringifyNormalized(v interface{}) string {
	out, err := jsonval.Format(jsonval.SortKeysDeep(v), 0)
	if err != nil {
		return ""
	}
	return out
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
