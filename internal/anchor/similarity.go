package anchor

import "github.com/sergi/go-diff/diffmatchpatch"

// Similarity computes a sequence-similarity ratio in [0,1] between two
// strings: twice the matched character count over the combined length,
// derived from a character-level diff.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	common := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			common += len(d.Text)
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b))
}
