package docsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attentra/attentra/internal/anchor"
)

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/ext-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = w.Write([]byte(`{
			"external_id": "ext-1",
			"title": "Guide",
			"blocks": [
				{"index":0,"heading_level":1,"text":"Intro","doc_start":1,"doc_end":7},
				{"index":1,"text":"Body paragraph.","doc_start":7,"doc_end":23}
			]
		}`))
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL, time.Second).FetchSnapshot(context.Background(), "ext-1", "tok-1")
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if snap.ExternalID != "ext-1" || snap.Title != "Guide" {
		t.Fatalf("unexpected snapshot header: %+v", snap)
	}
	if len(snap.Blocks) != 2 || snap.Blocks[0].HeadingLevel != 1 || snap.Blocks[1].DocEnd != 23 {
		t.Fatalf("unexpected blocks: %+v", snap.Blocks)
	}
}

func TestFetchSnapshotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).FetchSnapshot(context.Background(), "ext-1", "tok"); err == nil {
		t.Fatalf("expected an error on 503")
	}
}

func TestApplyEditBatchesDeleteAndInsert(t *testing.T) {
	var got editRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/documents/ext-1:batchUpdate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode edit: %v", err)
		}
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).ApplyEdit(context.Background(), "ext-1", "tok", anchor.Range{Start: 10, End: 40}, "new text")
	if err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}
	if len(got.Requests) != 2 {
		t.Fatalf("delete and insert must travel in one batch, got %d ops", len(got.Requests))
	}
	del, ins := got.Requests[0].DeleteRange, got.Requests[1].InsertText
	if del == nil || del.Start != 10 || del.End != 40 {
		t.Fatalf("unexpected delete op: %+v", del)
	}
	if ins == nil || ins.Index != 10 || ins.Text != "new text" {
		t.Fatalf("insert must land at the delete start: %+v", ins)
	}
}

func TestWebImportParagraphOffsets(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Release Notes</title></head><body>
		<article>
			<p>The first paragraph explains the release in enough words to be counted as an actual paragraph of readable article content for extraction.</p>
			<p>The second paragraph goes on to describe the upgrade steps with even more words so the extractor keeps both paragraphs in the article body.</p>
		</article>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	snap, err := WebImporter{Timeout: 5 * time.Second}.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.ExternalID != srv.URL {
		t.Fatalf("external id must be the url, got %q", snap.ExternalID)
	}
	if len(snap.Blocks) == 0 {
		t.Fatalf("expected at least one paragraph block")
	}
	prevEnd := 1
	for i, b := range snap.Blocks {
		if b.Index != i {
			t.Fatalf("block %d has index %d", i, b.Index)
		}
		if b.DocStart != prevEnd {
			t.Fatalf("block %d offsets not contiguous: start=%d prev end=%d", i, b.DocStart, prevEnd)
		}
		if b.DocEnd != b.DocStart+len(b.Text)+1 {
			t.Fatalf("block %d end mismatch: %+v", i, b)
		}
		prevEnd = b.DocEnd
	}
}

func TestWebImportRejectsBlankURL(t *testing.T) {
	if _, err := (WebImporter{}).Fetch(context.Background(), "   "); err == nil {
		t.Fatalf("blank url must fail")
	}
}
