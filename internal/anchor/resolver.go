package anchor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/attentra/attentra/internal/flatten"
)

// Range is a native document offset range [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Strategy names which rung of the cascade produced a resolution.
type Strategy string

const (
	StrategyLiteral    Strategy = "literal"
	StrategyNormalized Strategy = "normalized"
	StrategyFuzzy      Strategy = "fuzzy"
	StrategyStale      Strategy = "stale"
)

// Resolution is a located snippet. Text is the flattened text the match
// covers, used as the pre-edit backup; it is empty for the stale fallback,
// which only restates the previous anchor and must be treated as
// low-confidence by the caller.
type Resolution struct {
	Range     Range
	FlatStart int
	FlatEnd   int
	Text      string
	Strategy  Strategy
}

// Resolver locates a remembered snippet in a freshly flattened document.
// The zero value is unusable; use NewResolver or fill the tuning fields
// from config.
type Resolver struct {
	// SimilarityThreshold is the minimum fuzzy ratio accepted before the
	// cascade falls through to the stale anchor. Too low and a suggestion
	// can anchor to an unrelated paragraph.
	SimilarityThreshold float64
	// ProbePrefixChars is how much of the snippet is used to pin the
	// literal position of a normalized match.
	ProbePrefixChars int
}

// NewResolver returns a Resolver with the default tuning constants.
func NewResolver() Resolver {
	return Resolver{SimilarityThreshold: 0.62, ProbePrefixChars: 16}
}

// Resolve runs the matching cascade and returns the first strategy that
// succeeds. The second return is false when the snippet cannot be located
// at all; callers must treat that as a hard failure, not a silent no-op.
// Malformed input (blank snippet, empty document) degrades to the stale
// fallback or an unresolved result rather than an error.
func (r Resolver) Resolve(snippet string, prev *Range, fullText string, segments []flatten.Segment) (Resolution, bool) {
	normSnippet := flatten.Normalize(snippet)
	if normSnippet != "" && fullText != "" {
		// 1. Literal substring. Edits are usually small, so this is the
		// common case.
		if idx := strings.Index(fullText, snippet); idx >= 0 {
			if res, ok := r.resolveFlat(fullText, segments, idx, idx+len(snippet), StrategyLiteral); ok {
				return res, true
			}
		}

		// 2. Whitespace- and case-insensitive match, pinned inside the
		// owning segment. Segment text is already normalized, so the
		// normalized snippet appears as one contiguous run; the probe keys
		// the scan and the full snippet confirms each hit, which keeps a
		// duplicated opening phrase from anchoring the wrong paragraph.
		// Offsets always index fullText itself: offsets taken from a
		// lowercased copy drift when folding changes a rune's width.
		probe := normSnippet
		if n := r.ProbePrefixChars; n > 0 {
			if runes := []rune(normSnippet); len(runes) > n {
				probe = string(runes[:n])
			}
		}
		for _, seg := range segments {
			start, length := findNormalized(seg.Text, normSnippet, probe)
			if start < 0 {
				continue
			}
			if res, ok := r.resolveFlat(fullText, segments, seg.FlatStart+start, seg.FlatStart+start+length, StrategyNormalized); ok {
				return res, true
			}
		}

		// 3. Fuzzy best-segment match. Tolerates moderate rewrites; the
		// threshold keeps us off unrelated paragraphs. The whole segment
		// is returned, not a sub-range.
		bestIdx, bestRatio := -1, 0.0
		for i, seg := range segments {
			ratio := Similarity(normSnippet, flatten.Normalize(seg.Text))
			if ratio > bestRatio {
				bestIdx, bestRatio = i, ratio
			}
		}
		if bestIdx >= 0 && bestRatio >= r.SimilarityThreshold {
			seg := segments[bestIdx]
			return Resolution{
				Range:     Range{Start: seg.DocStart, End: seg.DocEnd},
				FlatStart: seg.FlatStart,
				FlatEnd:   seg.FlatEnd,
				Text:      strings.TrimRight(seg.Text, "\n"),
				Strategy:  StrategyFuzzy,
			}, true
		}
	}

	// 4. Stale-anchor fallback: the source paragraph may have been deleted,
	// but a previous anchor beats total data loss.
	if prev != nil && prev.End > prev.Start {
		return Resolution{Range: *prev, FlatStart: -1, FlatEnd: -1, Strategy: StrategyStale}, true
	}

	return Resolution{}, false
}

// findNormalized locates a fold-equal occurrence of snippet within a
// segment's text. Every probe hit is extended to the full snippet before
// it counts, so a repeated prefix earlier in the segment cannot steal the
// match. Returns (-1, 0) when the segment does not contain the snippet.
func findNormalized(segText, snippet, probe string) (int, int) {
	from := 0
	for from < len(segText) {
		i := indexFold(segText[from:], probe)
		if i < 0 {
			return -1, 0
		}
		at := from + i
		if n, ok := foldMatch(segText[at:], snippet); ok {
			return at, n
		}
		_, w := utf8.DecodeRuneInString(segText[at:])
		from = at + w
	}
	return -1, 0
}

// foldMatch reports whether s starts with a case-fold-equal occurrence of
// sub, and how many bytes of s it covers. The byte count matters: folding
// can change a rune's UTF-8 width, so len(sub) is not a safe span.
func foldMatch(s, sub string) (int, bool) {
	n := 0
	for _, sr := range sub {
		r, w := utf8.DecodeRuneInString(s[n:])
		if w == 0 || unicode.ToLower(r) != unicode.ToLower(sr) {
			return 0, false
		}
		n += w
	}
	return n, true
}

// indexFold is a case-insensitive strings.Index whose result is a byte
// offset into s itself.
func indexFold(s, sub string) int {
	for i := 0; i < len(s); {
		if _, ok := foldMatch(s[i:], sub); ok {
			return i
		}
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return -1
}

func (r Resolver) resolveFlat(fullText string, segments []flatten.Segment, flatStart, flatEnd int, strategy Strategy) (Resolution, bool) {
	start, ok := flatten.DocOffset(segments, flatStart)
	if !ok {
		return Resolution{}, false
	}
	end, ok := flatten.DocOffset(segments, flatEnd-1)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		Range:     Range{Start: start, End: end + 1},
		FlatStart: flatStart,
		FlatEnd:   flatEnd,
		Text:      fullText[flatStart:flatEnd],
		Strategy:  strategy,
	}, true
}
