package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/attentra/attentra/provider"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// client implements provider.Provider using OpenAI's chat completions API.
type client struct {
	apiKey          string
	completionModel string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new OpenAI-backed rewrite provider.
func NewClient(apiKey, completionModel string, temperature float64, maxTokens int, timeout time.Duration) provider.Provider {
	return &client{
		apiKey:          apiKey,
		completionModel: completionModel,
		temperature:     temperature,
		maxTokens:       maxTokens,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// SuggestRewrite asks the model for a clearer version of one paragraph.
func (c *client) SuggestRewrite(ctx context.Context, req provider.RewriteRequest) (string, error) {
	systemPrompt := `
You are a documentation editor. Readers of the paragraph below showed high friction:
long dwell times, backward re-reads and explicit confusion signals. Propose a clearer
rewrite that preserves the paragraph's meaning and factual content.

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "title": "short label for the change",
  "proposed_text": "the full replacement paragraph",
  "rationale": "one or two sentences on why the rewrite helps",
  "risk_flags": ["array", "of", "strings"]
}
Do not include any other text or explanation.
`
	prefs, _ := json.Marshal(req.Preferences)
	userPrompt := fmt.Sprintf(`
DOCUMENT: %q
SECTION: %s

READER SIGNAL:
dwell_ms=%d regressions=%d confusion_flags=%d events=%d

ORG PREFERENCES: %s

PARAGRAPH:
%s
`, req.DocTitle, strings.Join(req.HeadingPath, " > "), req.Metrics.DwellMs, req.Metrics.Regressions,
		req.Metrics.ConfusionFlags, req.Metrics.EventsCount, string(prefs), req.Snippet)

	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}
	return c.sendRequest(ctx, messages)
}

// sendRequest sends a request to the OpenAI API
func (c *client) sendRequest(ctx context.Context, messages []Message) (string, error) {
	requestBody := request{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", openaiAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var openaiResp response
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return openaiResp.Choices[0].Message.Content, nil
}
