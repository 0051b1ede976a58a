package anchor

import (
	"testing"

	"github.com/attentra/attentra/internal/flatten"
)

func flattenDoc(t *testing.T, blocks ...string) (string, []flatten.Segment) {
	t.Helper()
	snap := flatten.Snapshot{}
	off := 1
	for i, text := range blocks {
		snap.Blocks = append(snap.Blocks, flatten.Block{
			Index:    i,
			Text:     text,
			DocStart: off,
			DocEnd:   off + len(text) + 1,
		})
		off += len(text) + 1
	}
	full, segments, _ := flatten.New().Flatten(snap)
	return full, segments
}

func TestResolveLiteral(t *testing.T) {
	full, segments := flattenDoc(t, "The cat sat.", "The dog ran.")
	res, ok := NewResolver().Resolve("The dog ran.", nil, full, segments)
	if !ok {
		t.Fatalf("expected a resolution")
	}
	if res.Strategy != StrategyLiteral {
		t.Fatalf("expected literal, got %s", res.Strategy)
	}
	if res.Text != "The dog ran." {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.Range.Start <= 0 || res.Range.End <= res.Range.Start {
		t.Fatalf("bad range %+v", res.Range)
	}
}

func TestResolveNormalizedWhitespace(t *testing.T) {
	full, segments := flattenDoc(t, "The quick brown fox jumps over the lazy dog.")
	res, ok := NewResolver().Resolve("The quick  brown\tfox jumps", nil, full, segments)
	if !ok {
		t.Fatalf("expected a resolution")
	}
	if res.Strategy != StrategyNormalized {
		t.Fatalf("expected normalized, got %s", res.Strategy)
	}
}

func TestResolveNormalizedPrefersOwningParagraph(t *testing.T) {
	// Both paragraphs open with the same phrase, longer than the probe.
	// Only the second contains the whole snippet; the first occurrence of
	// the shared opening must not capture the anchor.
	full, segments := flattenDoc(t,
		"Install the tool on every machine in the fleet.",
		"Install the tool on every developer laptop too.",
	)
	res, ok := NewResolver().Resolve("Install the tool on every  developer laptop\ttoo.", nil, full, segments)
	if !ok {
		t.Fatalf("expected a resolution")
	}
	if res.Strategy != StrategyNormalized {
		t.Fatalf("expected normalized, got %s", res.Strategy)
	}
	if res.Text != "Install the tool on every developer laptop too." {
		t.Fatalf("anchored to the wrong paragraph: %q", res.Text)
	}
	seg, ok := flatten.SegmentAtDoc(segments, res.Range.Start)
	if !ok || seg.BlockIndex != 1 {
		t.Fatalf("range must land in block 1, got %+v", seg)
	}
}

func TestResolveNormalizedCaseFoldKeepsOffsets(t *testing.T) {
	// The Kelvin sign lowercases to a narrower rune, so offsets taken from
	// a lowercased copy of the text would point two bytes early.
	full, segments := flattenDoc(t,
		"Temperatures use the K sign; configure the listen address next.",
	)
	res, ok := NewResolver().Resolve("Configure The Listen Address", nil, full, segments)
	if !ok {
		t.Fatalf("expected a resolution")
	}
	if res.Strategy != StrategyNormalized {
		t.Fatalf("expected normalized, got %s", res.Strategy)
	}
	if res.Text != "configure the listen address" {
		t.Fatalf("match must cover the document's own bytes, got %q", res.Text)
	}
}

func TestResolveFuzzyRewrittenParagraph(t *testing.T) {
	full, segments := flattenDoc(t,
		"An entirely unrelated paragraph about cooking.",
		"The quick brown fox jumps over the lazy dog.",
	)
	res, ok := NewResolver().Resolve("The kwik brown fox jump over the lazy dog", nil, full, segments)
	if !ok {
		t.Fatalf("expected a fuzzy resolution")
	}
	if res.Strategy != StrategyFuzzy {
		t.Fatalf("expected fuzzy, got %s", res.Strategy)
	}
	if res.Text != "The quick brown fox jumps over the lazy dog." {
		t.Fatalf("fuzzy must return the whole best segment, got %q", res.Text)
	}
}

func TestResolveStaleFallback(t *testing.T) {
	full, segments := flattenDoc(t, "Completely different content now.")
	prev := &Range{Start: 40, End: 80}
	res, ok := NewResolver().Resolve("this snippet was deleted wholesale from the doc", prev, full, segments)
	if !ok {
		t.Fatalf("expected the stale fallback")
	}
	if res.Strategy != StrategyStale {
		t.Fatalf("expected stale, got %s", res.Strategy)
	}
	if res.Range != *prev {
		t.Fatalf("stale must restate the previous anchor, got %+v", res.Range)
	}
	if res.FlatStart != -1 || res.Text != "" {
		t.Fatalf("stale resolution carries no flat position or text")
	}
}

func TestResolveUnresolved(t *testing.T) {
	full, segments := flattenDoc(t, "Completely different content now.")
	if _, ok := NewResolver().Resolve("this snippet was deleted wholesale from the doc", nil, full, segments); ok {
		t.Fatalf("no match and no previous anchor must fail")
	}
}

func TestResolveBlankInputs(t *testing.T) {
	full, segments := flattenDoc(t, "Some content.")
	r := NewResolver()
	if _, ok := r.Resolve("   ", nil, full, segments); ok {
		t.Fatalf("blank snippet must not resolve without a previous anchor")
	}
	if res, ok := r.Resolve("   ", &Range{Start: 3, End: 9}, full, segments); !ok || res.Strategy != StrategyStale {
		t.Fatalf("blank snippet with a previous anchor must degrade to stale")
	}
	if _, ok := r.Resolve("Some content.", nil, "", nil); ok {
		t.Fatalf("empty document must not resolve")
	}
}

func TestResolveCascadePrefersLiteral(t *testing.T) {
	// The snippet appears literally in one paragraph and near-identically
	// in another; literal must win.
	full, segments := flattenDoc(t,
		"Deploy the service with the blue script.",
		"Deploy the service with the green script.",
	)
	res, ok := NewResolver().Resolve("the green script", nil, full, segments)
	if !ok || res.Strategy != StrategyLiteral {
		t.Fatalf("expected literal resolution, got %+v ok=%v", res, ok)
	}
	seg, found := flatten.SegmentAtDoc(segments, res.Range.Start)
	if !found || seg.BlockIndex != 1 {
		t.Fatalf("resolved into the wrong paragraph: %+v", res.Range)
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("abc", "abc"); got != 1 {
		t.Fatalf("identical strings: %v", got)
	}
	if got := Similarity("", ""); got != 1 {
		t.Fatalf("two empties are identical: %v", got)
	}
	if got := Similarity("abc", ""); got != 0 {
		t.Fatalf("one empty: %v", got)
	}
	high := Similarity("the quick brown fox", "the quick brown fix")
	low := Similarity("the quick brown fox", "completely different words here")
	if high <= low {
		t.Fatalf("similar pair %v must outscore dissimilar pair %v", high, low)
	}
	if high < 0.8 {
		t.Fatalf("near-identical strings should score high, got %v", high)
	}
}
