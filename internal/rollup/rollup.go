package rollup

import (
	"context"
	"log"

	"github.com/attentra/attentra/internal/metrics"
	"github.com/attentra/attentra/internal/store"
)

// Engine recomputes per-AOI aggregates from the raw event log. Every run is
// a full recompute followed by overwriting upserts, so runs are idempotent
// and safe to race from cron and on-demand callers at once.
type Engine struct {
	Store  *store.Store
	Logger *log.Logger
}

// Run rolls up all events for an org, optionally narrowed to one document,
// and returns the number of aggregate rows upserted. Individual bad rows
// are logged and skipped; they never abort the job.
func (e *Engine) Run(ctx context.Context, orgID, docID string) (int, error) {
	recs, err := e.Store.AggregateEvents(ctx, orgID, docID)
	if err != nil {
		return 0, err
	}
	upserts := 0
	for _, rec := range recs {
		if rec.DocID == "" || rec.AoiKey == "" {
			e.logf("skipping aggregate row with missing key: org=%s doc=%q aoi=%q", orgID, rec.DocID, rec.AoiKey)
			continue
		}
		if err := e.Store.UpsertAggregate(ctx, rec); err != nil {
			e.logf("upsert aggregate org=%s doc=%s aoi=%s: %v", orgID, rec.DocID, rec.AoiKey, err)
			continue
		}
		upserts++
	}
	metrics.RollupRuns.Inc()
	metrics.RollupUpserts.Add(float64(upserts))
	return upserts, nil
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}
