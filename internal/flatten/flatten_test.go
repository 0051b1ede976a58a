package flatten

import (
	"strings"
	"testing"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		ExternalID: "doc-1",
		Title:      "Onboarding Guide",
		Blocks: []Block{
			{Index: 0, HeadingLevel: 1, Text: "Getting Started", DocStart: 1, DocEnd: 17},
			{Index: 1, Text: "Install the CLI before anything else.", DocStart: 17, DocEnd: 55},
			{Index: 2, Text: "   \n\t", DocStart: 55, DocEnd: 58},
			{Index: 3, HeadingLevel: 2, Text: "Configuration", DocStart: 58, DocEnd: 72},
			{Index: 4, Text: "Copy config.example.json and\nedit the listen address.", DocStart: 72, DocEnd: 126},
		},
	}
}

func TestFlattenSegmentsAreContiguous(t *testing.T) {
	full, segments, _ := New().Flatten(sampleSnapshot())
	if len(segments) != 4 {
		t.Fatalf("expected 4 segments (blank block skipped), got %d", len(segments))
	}
	if segments[0].FlatStart != 0 {
		t.Fatalf("first segment must start at 0, got %d", segments[0].FlatStart)
	}
	for i, seg := range segments {
		if got := full[seg.FlatStart:seg.FlatEnd]; got != seg.Text {
			t.Fatalf("segment %d text mismatch: %q vs %q", i, got, seg.Text)
		}
		if i > 0 && segments[i-1].FlatEnd != seg.FlatStart {
			t.Fatalf("gap between segments %d and %d", i-1, i)
		}
	}
	if segments[len(segments)-1].FlatEnd != len(full) {
		t.Fatalf("last segment must end at len(full)")
	}
}

func TestFlattenNormalizesWhitespace(t *testing.T) {
	full, segments, _ := New().Flatten(sampleSnapshot())
	if !strings.Contains(full, "Copy config.example.json and edit the listen address.") {
		t.Fatalf("internal newline should normalize to a space: %q", full)
	}
	last := segments[len(segments)-1]
	if last.BlockIndex != 4 {
		t.Fatalf("blank block must not produce a segment, got block %d", last.BlockIndex)
	}
}

func TestFlattenHeadingStack(t *testing.T) {
	_, _, aois := New().Flatten(sampleSnapshot())
	byBlock := map[int]AOI{}
	for _, a := range aois {
		byBlock[a.BlockIndex] = a
	}
	if got := strings.Join(byBlock[1].HeadingPath, "/"); got != "Getting Started" {
		t.Fatalf("body under H1: %q", got)
	}
	if got := strings.Join(byBlock[4].HeadingPath, "/"); got != "Getting Started/Configuration" {
		t.Fatalf("body under H1>H2: %q", got)
	}
	// A heading block's own AOI path includes itself.
	if got := strings.Join(byBlock[3].HeadingPath, "/"); got != "Getting Started/Configuration" {
		t.Fatalf("heading AOI path: %q", got)
	}
}

func TestFlattenHeadingReplacesDeeperLevels(t *testing.T) {
	snap := Snapshot{Blocks: []Block{
		{Index: 0, HeadingLevel: 1, Text: "A"},
		{Index: 1, HeadingLevel: 2, Text: "B"},
		{Index: 2, HeadingLevel: 1, Text: "C"},
		{Index: 3, Text: "body"},
	}}
	_, _, aois := New().Flatten(snap)
	last := aois[len(aois)-1]
	if got := strings.Join(last.HeadingPath, "/"); got != "C" {
		t.Fatalf("new H1 must reset the stack, got %q", got)
	}
}

func TestFlattenAOIKeysStableUnderUnrelatedEdits(t *testing.T) {
	f := New()
	_, _, before := f.Flatten(sampleSnapshot())

	edited := sampleSnapshot()
	edited.Blocks[1].Text = "Install the CLI first, before anything else."
	edited.Blocks[1].DocEnd = 62
	_, _, after := f.Flatten(edited)

	keyOf := func(aois []AOI, block int) string {
		for _, a := range aois {
			if a.BlockIndex == block {
				return a.Key
			}
		}
		t.Fatalf("no AOI for block %d", block)
		return ""
	}
	if keyOf(before, 4) != keyOf(after, 4) {
		t.Fatalf("unrelated edit changed the key of block 4")
	}
	if keyOf(before, 1) == keyOf(after, 1) {
		t.Fatalf("editing the key prefix of block 1 must change its key")
	}
}

func TestFlattenDeterministic(t *testing.T) {
	f := New()
	full1, _, aois1 := f.Flatten(sampleSnapshot())
	full2, _, aois2 := f.Flatten(sampleSnapshot())
	if full1 != full2 {
		t.Fatalf("flatten output not deterministic")
	}
	for i := range aois1 {
		if aois1[i].Key != aois2[i].Key {
			t.Fatalf("key %d not deterministic", i)
		}
	}
}

func TestFlattenEmptySnapshot(t *testing.T) {
	full, segments, aois := New().Flatten(Snapshot{})
	if full != "" || len(segments) != 0 || len(aois) != 0 {
		t.Fatalf("empty snapshot must yield empty outputs")
	}
}

func TestDocOffsetRoundTrip(t *testing.T) {
	_, segments, _ := New().Flatten(sampleSnapshot())
	seg := segments[1]
	for flat := seg.FlatStart; flat < seg.FlatStart+len(seg.Text)-1; flat++ {
		doc, ok := DocOffset(segments, flat)
		if !ok {
			t.Fatalf("DocOffset(%d) failed", flat)
		}
		back, ok := SegmentAtDoc(segments, doc)
		if !ok || back.BlockIndex != seg.BlockIndex {
			t.Fatalf("doc offset %d mapped outside block %d", doc, seg.BlockIndex)
		}
	}
}

func TestSegmentAtOutOfRange(t *testing.T) {
	_, segments, _ := New().Flatten(sampleSnapshot())
	if _, ok := SegmentAt(segments, 1_000_000); ok {
		t.Fatalf("offset past the end must not resolve")
	}
	if _, ok := SegmentAt(nil, 0); ok {
		t.Fatalf("empty table must not resolve")
	}
}

func TestKeyIgnoresCaseAndUsesPrefix(t *testing.T) {
	path := []string{"Intro"}
	a := Key(path, 2, "The Quick Brown Fox Jumps Over The Lazy Dog", 32)
	b := Key(path, 2, "the quick brown fox jumps over the lazy dog", 32)
	if a != b {
		t.Fatalf("key must be case-insensitive")
	}
	c := Key(path, 2, "The Quick Brown Fox Jumps Over Th trailing tail changed", 32)
	if a != c {
		t.Fatalf("changes past the prefix must not change the key")
	}
	d := Key(path, 3, "The Quick Brown Fox Jumps Over The Lazy Dog", 32)
	if a == d {
		t.Fatalf("block index must participate in the key")
	}
	if len(a) != 16 {
		t.Fatalf("expected 16-char key, got %d", len(a))
	}
}
