package server

import (
	"errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/attentra/attentra/internal/rollup"
	"github.com/attentra/attentra/internal/store"
)

type AnalyticsHandler struct {
	Store  *store.Store
	Rollup *rollup.Engine
}

func (h *AnalyticsHandler) Register(api *echo.Group, secret []byte) {
	auth := func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) }
	api.GET("/analytics", h.analytics, auth)
	api.POST("/rollup", h.runRollup, auth)
}

const topSectionLimit = 10

// analytics rolls up on demand and returns current aggregates. Rollup here
// and the cron path share the same recompute, so racing them is safe.
func (h *AnalyticsHandler) analytics(c echo.Context) error {
	ctx := c.Request().Context()
	org := orgID(c)
	docID := c.QueryParam("doc_id")

	if _, err := h.Rollup.Run(ctx, org, docID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	sum, err := h.Store.SummarizeAggregates(ctx, org, docID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	aggs, err := h.Store.ListAggregates(ctx, org, docID, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := AnalyticsResponse{
		Summary: AnalyticsSummary{Events: sum.Events, ConfusionFlags: sum.ConfusionFlags, DwellMs: sum.DwellMs},
	}
	for i, agg := range aggs {
		row := h.sectionRow(c, agg)
		resp.Heatmap = append(resp.Heatmap, row)
		if i < topSectionLimit {
			resp.TopConfusingSections = append(resp.TopConfusingSections, row)
		}
	}
	// The heatmap reads in document order; the top list keeps friction order.
	sort.SliceStable(resp.Heatmap, func(i, j int) bool {
		if resp.Heatmap[i].DocID != resp.Heatmap[j].DocID {
			return resp.Heatmap[i].DocID < resp.Heatmap[j].DocID
		}
		return resp.Heatmap[i].BlockIndex < resp.Heatmap[j].BlockIndex
	})
	return c.JSON(http.StatusOK, resp)
}

func (h *AnalyticsHandler) sectionRow(c echo.Context, agg store.AggregateRecord) SectionMetrics {
	row := SectionMetrics{
		AoiKey:         agg.AoiKey,
		DocID:          agg.DocID,
		DwellMs:        agg.DwellMs,
		Regressions:    agg.Regressions,
		ConfusionFlags: agg.ConfusionFlags,
		EventsCount:    agg.EventsCount,
		WindowStart:    agg.WindowStart,
		WindowEnd:      agg.WindowEnd,
	}
	aoi, err := h.Store.GetAOI(c.Request().Context(), agg.DocID, agg.AoiKey)
	if err == nil {
		row.HeadingPath = aoi.HeadingPath
		row.Snippet = aoi.Snippet
		row.BlockIndex = aoi.BlockIndex
	} else if !errors.Is(err, store.ErrNotFound) {
		c.Logger().Warnf("load aoi %s/%s: %v", agg.DocID, agg.AoiKey, err)
	}
	return row
}

// runRollup is the explicit manual trigger; same semantics as the cron path.
func (h *AnalyticsHandler) runRollup(c echo.Context) error {
	var req RollupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.Rollup.Run(c.Request().Context(), orgID(c), req.DocID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, RollupResponse{Upserts: n})
}
