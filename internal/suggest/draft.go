package suggest

import (
	"encoding/json"
	"strings"
)

// Draft is the parsed shape of a generated rewrite.
type Draft struct {
	Title        string   `json:"title"`
	ProposedText string   `json:"proposed_text"`
	Rationale    string   `json:"rationale"`
	RiskFlags    []string `json:"risk_flags"`
}

// ParseResult is a tagged parse outcome: either the extracted fields or the
// raw text that failed to parse. Keeping the two cases distinct stops
// "provider returned garbage" from being confused with "provider is down".
type ParseResult struct {
	OK    bool
	Draft Draft
	Raw   string
}

// ParseDraft extracts a draft from a free-form model response. Models wrap
// JSON in prose and code fences often enough that we scan for the outermost
// object instead of trusting the blob wholesale.
func ParseDraft(raw string) ParseResult {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ParseResult{Raw: raw}
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw[start:end+1]), &d); err != nil {
		return ParseResult{Raw: raw}
	}
	if strings.TrimSpace(d.ProposedText) == "" {
		return ParseResult{Raw: raw}
	}
	return ParseResult{OK: true, Draft: d}
}

// FallbackDraft is the deterministic stub substituted whenever generation
// fails or no provider is configured. It keeps the pipeline total: every
// high-friction AOI yields a reviewable suggestion.
func FallbackDraft(headingPath []string, snippet string) Draft {
	label := snippet
	if len(headingPath) > 0 {
		label = headingPath[len(headingPath)-1]
	}
	if r := []rune(label); len(r) > 48 {
		label = string(r[:48]) + "…"
	}
	return Draft{
		Title:        "Clarify: " + label,
		ProposedText: strings.Join(strings.Fields(snippet), " "),
		Rationale:    "Readers showed elevated confusion on this section. Automatic rewriting was unavailable; review and simplify manually.",
		RiskFlags:    []string{"fallback"},
	}
}
