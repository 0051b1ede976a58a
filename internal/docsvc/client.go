package docsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/attentra/attentra/internal/anchor"
	"github.com/attentra/attentra/internal/flatten"
)

// Service is the boundary to the external document service that owns
// document storage and edit history. Handlers depend on this interface so
// tests can substitute fakes.
type Service interface {
	FetchSnapshot(ctx context.Context, externalID, credential string) (flatten.Snapshot, error)
	// ApplyEdit deletes the given native range and inserts text at its
	// start, as one batched request. Batching matters: it closes the
	// partial-failure window between the delete and the insert.
	ApplyEdit(ctx context.Context, externalID, credential string, del anchor.Range, insertText string) error
}

// Client talks to the document service over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type snapshotResponse struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Blocks     []struct {
		Index        int    `json:"index"`
		HeadingLevel int    `json:"heading_level"`
		Text         string `json:"text"`
		DocStart     int    `json:"doc_start"`
		DocEnd       int    `json:"doc_end"`
	} `json:"blocks"`
}

// FetchSnapshot retrieves the current state of a document.
func (c *Client) FetchSnapshot(ctx context.Context, externalID, credential string) (flatten.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/documents/%s", c.baseURL, externalID), nil)
	if err != nil {
		return flatten.Snapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return flatten.Snapshot{}, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return flatten.Snapshot{}, fmt.Errorf("document service returned status: %d", resp.StatusCode)
	}

	var sr snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return flatten.Snapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	snap := flatten.Snapshot{ExternalID: sr.ExternalID, Title: sr.Title}
	if snap.ExternalID == "" {
		snap.ExternalID = externalID
	}
	for _, b := range sr.Blocks {
		snap.Blocks = append(snap.Blocks, flatten.Block{
			Index:        b.Index,
			HeadingLevel: b.HeadingLevel,
			Text:         b.Text,
			DocStart:     b.DocStart,
			DocEnd:       b.DocEnd,
		})
	}
	return snap, nil
}

type editRequest struct {
	Requests []editOp `json:"requests"`
}

type editOp struct {
	DeleteRange *deleteRangeOp `json:"delete_range,omitempty"`
	InsertText  *insertTextOp  `json:"insert_text,omitempty"`
}

type deleteRangeOp struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type insertTextOp struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ApplyEdit sends the delete and the insert in one batch. Delete comes
// first; inserting at the same index afterwards keeps the replacement
// atomic from the document's point of view.
func (c *Client) ApplyEdit(ctx context.Context, externalID, credential string, del anchor.Range, insertText string) error {
	body := editRequest{Requests: []editOp{
		{DeleteRange: &deleteRangeOp{Start: del.Start, End: del.End}},
		{InsertText: &insertTextOp{Index: del.Start, Text: insertText}},
	}}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal edit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/documents/%s:batchUpdate", c.baseURL, externalID), bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to apply edit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("document service returned status: %d", resp.StatusCode)
	}
	return nil
}
