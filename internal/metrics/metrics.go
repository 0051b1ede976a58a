package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attentra_events_ingested_total",
		Help: "Attention events accepted into the event log.",
	})
	EventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attentra_events_rejected_total",
		Help: "Attention events rejected at ingest validation.",
	})
	RollupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attentra_rollup_runs_total",
		Help: "Completed rollup runs.",
	})
	RollupUpserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attentra_rollup_upserts_total",
		Help: "Aggregate rows written by rollup runs.",
	})
	DocumentsSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attentra_documents_synced_total",
		Help: "Document sync operations completed.",
	})
	SuggestionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attentra_suggestions_created_total",
		Help: "Suggestions stored as pending.",
	})
	SuggestionsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attentra_suggestions_applied_total",
		Help: "Suggestions successfully applied to documents.",
	})
	AnchorResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attentra_anchor_resolutions_total",
		Help: "Anchor resolutions by cascade strategy, plus 'unresolved'.",
	}, []string{"strategy"})
)
