package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/attentra/attentra/internal/metrics"
	"github.com/attentra/attentra/internal/store"
)

type EventsHandler struct {
	Store *store.Store
}

func (h *EventsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("", h.ingest)
}

// ingest appends attention events. Validation is per item: a malformed
// event is rejected individually and never aborts the batch. Aggregates
// are untouched here; rollup recomputes them from this log.
func (h *EventsHandler) ingest(c echo.Context) error {
	var req IngestEventsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	org := orgID(c)

	resp := IngestEventsResponse{}
	for i, ev := range req.Events {
		if ev.DocID == "" || ev.State == "" {
			resp.Rejected = append(resp.Rejected, RejectedEvent{Index: i, Reason: "doc_id and state required"})
			metrics.EventsRejected.Inc()
			continue
		}
		occurred := time.Now().UTC()
		if ev.TimestampMs > 0 {
			occurred = time.UnixMilli(ev.TimestampMs).UTC()
		}
		rec := store.EventRecord{
			ID:          uuid.NewString(),
			OrgID:       org,
			DocID:       ev.DocID,
			UserID:      ev.UserID,
			SessionID:   ev.SessionID,
			AoiKey:      ev.AoiKey,
			State:       ev.State,
			DwellMs:     ev.DwellMs,
			Regressions: ev.Regressions,
			Bbox:        ev.Bbox,
			Context:     ev.Context,
			OccurredAt:  occurred,
		}
		if err := h.Store.InsertEvent(ctx, rec); err != nil {
			resp.Rejected = append(resp.Rejected, RejectedEvent{Index: i, Reason: fmt.Sprintf("insert: %v", err)})
			metrics.EventsRejected.Inc()
			continue
		}
		resp.Inserted++
		metrics.EventsIngested.Inc()
	}
	return c.JSON(http.StatusOK, resp)
}
