package flatten

import (
	"sort"
	"strings"
)

// Block is one ordered block of a document snapshot as delivered by the
// document service. HeadingLevel is 0 for body text, 1..N for headings.
// DocStart/DocEnd are the service's native character offsets for the block.
type Block struct {
	Index        int
	HeadingLevel int
	Text         string
	DocStart     int
	DocEnd       int
}

// Snapshot is a read-only view of a document at one point in time.
type Snapshot struct {
	ExternalID string
	Title      string
	Blocks     []Block
}

// Segment maps a span of the flattened text back to the document's native
// offsets. Segments are contiguous and ordered by FlatStart; the block
// separator rides on the tail of the preceding segment so that
// fullText[FlatStart:FlatEnd] == Text with no gaps in between.
type Segment struct {
	Text       string
	DocStart   int
	DocEnd     int
	FlatStart  int
	FlatEnd    int
	BlockIndex int
}

// AOI is a content-addressed area of interest, typically one paragraph.
type AOI struct {
	Key         string
	HeadingPath []string
	BlockIndex  int
	DocStart    int
	DocEnd      int
	Snippet     string
}

// Flattener converts hierarchical snapshots into flattened text, the
// segment offset table and the AOI map.
type Flattener struct {
	KeyPrefixChars  int
	SnippetMaxChars int
}

// New returns a Flattener with the default tuning constants.
func New() Flattener {
	return Flattener{KeyPrefixChars: 32, SnippetMaxChars: 256}
}

// Flatten walks the snapshot's blocks in order, maintaining the heading-path
// stack, and emits the flattened text plus one segment and one AOI per
// non-blank block. Blocks that normalize to the empty string are skipped
// entirely. An empty snapshot yields empty outputs, not an error.
func (f Flattener) Flatten(snap Snapshot) (string, []Segment, []AOI) {
	if f.KeyPrefixChars <= 0 {
		f.KeyPrefixChars = 32
	}
	if f.SnippetMaxChars <= 0 {
		f.SnippetMaxChars = 256
	}

	var headingPath []string
	var segments []Segment
	var aois []AOI
	var b strings.Builder

	kept := 0
	for _, blk := range snap.Blocks {
		norm := Normalize(blk.Text)
		if norm == "" {
			continue
		}
		if blk.HeadingLevel > 0 {
			// A level-L heading replaces everything at depth L and below.
			depth := blk.HeadingLevel - 1
			if depth > len(headingPath) {
				depth = len(headingPath)
			}
			headingPath = append(headingPath[:depth:depth], norm)
		}

		if kept > 0 {
			// Separator belongs to the previous segment.
			segments[kept-1].Text += "\n"
			segments[kept-1].FlatEnd++
			b.WriteString("\n")
		}

		flatStart := b.Len()
		b.WriteString(norm)
		segments = append(segments, Segment{
			Text:       norm,
			DocStart:   blk.DocStart,
			DocEnd:     blk.DocEnd,
			FlatStart:  flatStart,
			FlatEnd:    flatStart + len(norm),
			BlockIndex: blk.Index,
		})

		snippet := truncateRunes(norm, f.SnippetMaxChars)
		path := append([]string(nil), headingPath...)
		aois = append(aois, AOI{
			Key:         Key(path, blk.Index, snippet, f.KeyPrefixChars),
			HeadingPath: path,
			BlockIndex:  blk.Index,
			DocStart:    blk.DocStart,
			DocEnd:      blk.DocEnd,
			Snippet:     snippet,
		})
		kept++
	}

	return b.String(), segments, aois
}

// Normalize collapses all whitespace runs (including newlines) to single
// spaces and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SegmentAt returns the segment whose flat range contains the given
// flattened-text offset.
func SegmentAt(segments []Segment, flat int) (Segment, bool) {
	i := sort.Search(len(segments), func(i int) bool { return segments[i].FlatEnd > flat })
	if i < len(segments) && flat >= segments[i].FlatStart {
		return segments[i], true
	}
	return Segment{}, false
}

// SegmentAtDoc returns the segment whose native range contains the given
// document offset.
func SegmentAtDoc(segments []Segment, doc int) (Segment, bool) {
	for _, seg := range segments {
		if doc >= seg.DocStart && doc < seg.DocEnd {
			return seg, true
		}
	}
	return Segment{}, false
}

// DocOffset maps a flattened-text offset to a native document offset via the
// segment table. Offsets past a segment's native range clamp to its DocEnd;
// native formatting codepoints make the two lengths only approximately equal.
func DocOffset(segments []Segment, flat int) (int, bool) {
	seg, ok := SegmentAt(segments, flat)
	if !ok {
		return 0, false
	}
	off := seg.DocStart + (flat - seg.FlatStart)
	if off > seg.DocEnd {
		off = seg.DocEnd
	}
	return off, true
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
