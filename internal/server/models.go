package server

import (
	"encoding/json"
	"time"

	"github.com/attentra/attentra/internal/anchor"
	"github.com/attentra/attentra/internal/store"
)

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OrgName  string `json:"org_name"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// IngestEvent is one raw attention event as reported by a reading client.
type IngestEvent struct {
	DocID       string          `json:"doc_id"`
	AoiKey      string          `json:"aoi_key"`
	State       string          `json:"state"`
	DwellMs     int64           `json:"dwell_ms"`
	Regressions int64           `json:"regressions"`
	TimestampMs int64           `json:"timestamp_ms"`
	UserID      string          `json:"user_id"`
	SessionID   string          `json:"session_id"`
	Bbox        json.RawMessage `json:"bbox"`
	Context     json.RawMessage `json:"context"`
}

type IngestEventsRequest struct {
	Events []IngestEvent `json:"events"`
}

type RejectedEvent struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type IngestEventsResponse struct {
	Inserted int             `json:"inserted"`
	Rejected []RejectedEvent `json:"rejected,omitempty"`
}

type SyncDocumentRequest struct {
	ExternalID  string `json:"external_id"`
	AccessToken string `json:"access_token"`
	Title       string `json:"title"`
	Source      string `json:"source"`
}

type SyncDocumentResponse struct {
	DocID    string `json:"doc_id"`
	Title    string `json:"title"`
	AoiCount int    `json:"aoi_count"`
}

type AnalyticsSummary struct {
	Events         int64 `json:"events"`
	ConfusionFlags int64 `json:"confusion_flags"`
	DwellMs        int64 `json:"dwell_ms"`
}

// SectionMetrics is one AOI joined with its current aggregate.
type SectionMetrics struct {
	AoiKey         string    `json:"aoi_key"`
	DocID          string    `json:"doc_id"`
	HeadingPath    []string  `json:"heading_path,omitempty"`
	Snippet        string    `json:"snippet,omitempty"`
	BlockIndex     int       `json:"block_index"`
	DwellMs        int64     `json:"dwell_ms"`
	Regressions    int64     `json:"regressions"`
	ConfusionFlags int64     `json:"confusion_flags"`
	EventsCount    int64     `json:"events_count"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
}

type AnalyticsResponse struct {
	Summary              AnalyticsSummary `json:"summary"`
	TopConfusingSections []SectionMetrics `json:"top_confusing_sections"`
	Heatmap              []SectionMetrics `json:"heatmap"`
}

type GenerateSuggestionsRequest struct {
	DocID       string                 `json:"doc_id"`
	Preferences map[string]interface{} `json:"preferences"`
	Max         int                    `json:"max_suggestions"`
}

type AcceptSuggestionRequest struct {
	AccessToken string `json:"access_token"`
	Note        string `json:"note"`
}

type RejectSuggestionRequest struct {
	Note string `json:"note"`
}

type RollupRequest struct {
	DocID string `json:"doc_id"`
}

type RollupResponse struct {
	Upserts int `json:"upserts"`
}

// Suggestion is the wire shape of a stored suggestion.
type Suggestion struct {
	ID           string       `json:"id"`
	DocID        string       `json:"doc_id"`
	AoiKey       string       `json:"aoi_key"`
	Title        string       `json:"title"`
	OriginalText string       `json:"original_text"`
	ProposedText string       `json:"proposed_text"`
	Rationale    string       `json:"rationale"`
	RiskFlags    []string     `json:"risk_flags"`
	Anchor       anchor.Range `json:"anchor"`
	Status       string       `json:"status"`
	ManagerNote  string       `json:"manager_note,omitempty"`
	AppliedAt    *time.Time   `json:"applied_at,omitempty"`
	AppliedBy    string       `json:"applied_by,omitempty"`
	BackupText   string       `json:"backup_text,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

func toSuggestion(rec store.SuggestionRecord) Suggestion {
	return Suggestion{
		ID:           rec.ID,
		DocID:        rec.DocID,
		AoiKey:       rec.AoiKey,
		Title:        rec.Title,
		OriginalText: rec.OriginalText,
		ProposedText: rec.ProposedText,
		Rationale:    rec.Rationale,
		RiskFlags:    rec.RiskFlags,
		Anchor:       rec.Anchor,
		Status:       rec.Status,
		ManagerNote:  rec.ManagerNote,
		AppliedAt:    rec.AppliedAt,
		AppliedBy:    rec.AppliedBy,
		BackupText:   rec.BackupText,
		CreatedAt:    rec.CreatedAt,
	}
}
