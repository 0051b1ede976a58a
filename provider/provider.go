package provider

import "context"

// SectionMetrics carries the aggregate friction signal for the paragraph a
// rewrite is requested for.
type SectionMetrics struct {
	DwellMs        int64
	Regressions    int64
	ConfusionFlags int64
	EventsCount    int64
}

// RewriteRequest describes one paragraph that readers struggle with.
type RewriteRequest struct {
	DocTitle    string
	HeadingPath []string
	Snippet     string
	Preferences map[string]interface{}
	Metrics     SectionMetrics
}

// Provider generates replacement text for a confusing paragraph. The raw
// response is a free-form text blob; callers are responsible for defensive
// parsing and a deterministic fallback.
type Provider interface {
	SuggestRewrite(ctx context.Context, req RewriteRequest) (string, error)
}
