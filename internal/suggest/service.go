package suggest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/attentra/attentra/internal/anchor"
	"github.com/attentra/attentra/internal/docsvc"
	"github.com/attentra/attentra/internal/flatten"
	"github.com/attentra/attentra/internal/metrics"
	"github.com/attentra/attentra/internal/store"
	"github.com/attentra/attentra/provider"
)

// ErrAnchorLost means the document changed beyond recognition and the
// suggestion's source paragraph could not be located. Distinct from not
// found so callers can offer "re-propose" instead of "retry".
var ErrAnchorLost = errors.New("anchor could not be resolved in current document")

// Service owns the suggestion lifecycle: generation against aggregate
// friction, and the re-anchor-then-edit accept path.
type Service struct {
	Store     *store.Store
	Docs      docsvc.Service
	LLM       provider.Provider // nil disables generation, fallback drafts only
	Flattener flatten.Flattener
	Resolver  anchor.Resolver
	Logger    *log.Logger
}

// Generate proposes edits for the highest-friction AOIs of a document.
// OriginalText and the anchor are snapshotted from the AOI map now: at
// accept time that old text is exactly what must be found and replaced.
func (s *Service) Generate(ctx context.Context, orgID, docID string, prefs map[string]interface{}, max int) ([]store.SuggestionRecord, error) {
	if max <= 0 {
		max = 3
	}
	doc, err := s.Store.GetDocument(ctx, orgID, docID)
	if err != nil {
		return nil, err
	}
	aggs, err := s.Store.ListAggregates(ctx, orgID, docID, max*4)
	if err != nil {
		return nil, err
	}

	var created []store.SuggestionRecord
	for _, agg := range aggs {
		if len(created) >= max {
			break
		}
		if agg.ConfusionFlags == 0 && agg.DwellMs == 0 {
			continue
		}
		aoi, err := s.Store.GetAOI(ctx, docID, agg.AoiKey)
		if errors.Is(err, store.ErrNotFound) {
			// Telemetry can reference AOIs from an older sync.
			continue
		}
		if err != nil {
			return created, err
		}
		if open, err := s.Store.HasOpenSuggestion(ctx, docID, aoi.Key); err != nil {
			return created, err
		} else if open {
			continue
		}

		draft := s.draftFor(ctx, doc, aoi, agg, prefs)
		rec := store.SuggestionRecord{
			OrgID:        orgID,
			DocID:        docID,
			AoiKey:       aoi.Key,
			Title:        draft.Title,
			OriginalText: aoi.Snippet,
			ProposedText: draft.ProposedText,
			Rationale:    draft.Rationale,
			RiskFlags:    draft.RiskFlags,
			Anchor:       anchor.Range{Start: aoi.DocStart, End: aoi.DocEnd},
		}
		id, err := s.Store.CreateSuggestion(ctx, rec)
		if err != nil {
			return created, err
		}
		rec.ID = id
		rec.Status = store.SuggestionStatusPending
		created = append(created, rec)
		metrics.SuggestionsCreated.Inc()
	}
	return created, nil
}

func (s *Service) draftFor(ctx context.Context, doc store.Document, aoi store.AOIRecord, agg store.AggregateRecord, prefs map[string]interface{}) Draft {
	if s.LLM == nil {
		return FallbackDraft(aoi.HeadingPath, aoi.Snippet)
	}
	raw, err := s.LLM.SuggestRewrite(ctx, provider.RewriteRequest{
		DocTitle:    doc.Title,
		HeadingPath: aoi.HeadingPath,
		Snippet:     aoi.Snippet,
		Preferences: prefs,
		Metrics: provider.SectionMetrics{
			DwellMs:        agg.DwellMs,
			Regressions:    agg.Regressions,
			ConfusionFlags: agg.ConfusionFlags,
			EventsCount:    agg.EventsCount,
		},
	})
	if err != nil {
		s.logf("rewrite generation failed for aoi %s: %v", aoi.Key, err)
		return FallbackDraft(aoi.HeadingPath, aoi.Snippet)
	}
	res := ParseDraft(raw)
	if !res.OK {
		s.logf("unparseable rewrite for aoi %s, using fallback", aoi.Key)
		return FallbackDraft(aoi.HeadingPath, aoi.Snippet)
	}
	return res.Draft
}

// Accept re-anchors the suggestion against the document's current state and
// applies the edit. The status moves to accepted before the external call,
// so a timeout or edit failure leaves a retryable accepted row rather than
// a phantom applied one. A suggestion can never be applied twice. The
// lookup is scoped to the caller's org, so another org's suggestion id
// behaves like an unknown one.
func (s *Service) Accept(ctx context.Context, orgID, suggestionID, credential, note, actor string) (store.SuggestionRecord, error) {
	rec, err := s.Store.GetSuggestion(ctx, orgID, suggestionID)
	if err != nil {
		return store.SuggestionRecord{}, err
	}
	switch rec.Status {
	case store.SuggestionStatusApplied:
		return store.SuggestionRecord{}, store.ErrAlreadyApplied
	case store.SuggestionStatusRejected:
		return store.SuggestionRecord{}, store.ErrAlreadyRejected
	}

	doc, err := s.Store.GetDocument(ctx, orgID, rec.DocID)
	if err != nil {
		return store.SuggestionRecord{}, err
	}
	if err := s.Store.MarkSuggestionAccepted(ctx, orgID, suggestionID, note); err != nil {
		return store.SuggestionRecord{}, err
	}

	snap, err := s.Docs.FetchSnapshot(ctx, doc.ExternalID, credential)
	if err != nil {
		return store.SuggestionRecord{}, fmt.Errorf("fetch current document: %w", err)
	}
	fullText, segments, _ := s.Flattener.Flatten(snap)

	prev := rec.Anchor
	res, ok := s.Resolver.Resolve(rec.OriginalText, &prev, fullText, segments)
	if !ok {
		metrics.AnchorResolutions.WithLabelValues("unresolved").Inc()
		return store.SuggestionRecord{}, ErrAnchorLost
	}
	metrics.AnchorResolutions.WithLabelValues(string(res.Strategy)).Inc()

	if err := s.Docs.ApplyEdit(ctx, doc.ExternalID, credential, res.Range, rec.ProposedText); err != nil {
		// Still accepted, still retryable; nothing was marked applied.
		return store.SuggestionRecord{}, fmt.Errorf("apply edit: %w", err)
	}

	backup := res.Text
	if backup == "" {
		// Stale fallback: the resolver could not see the deleted text, the
		// proposal snapshot is the closest record of it.
		backup = rec.OriginalText
	}
	if err := s.Store.MarkSuggestionApplied(ctx, orgID, suggestionID, res.Range, backup, actor); err != nil {
		return store.SuggestionRecord{}, err
	}
	metrics.SuggestionsApplied.Inc()

	return s.Store.GetSuggestion(ctx, orgID, suggestionID)
}

// Reject closes a suggestion without touching the document. Rejecting an
// already rejected suggestion is a no-op. Org-scoped like Accept.
func (s *Service) Reject(ctx context.Context, orgID, suggestionID, note string) error {
	err := s.Store.MarkSuggestionRejected(ctx, orgID, suggestionID, note)
	if errors.Is(err, store.ErrAlreadyRejected) {
		return nil
	}
	return err
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
