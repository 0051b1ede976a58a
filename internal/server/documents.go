package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/attentra/attentra/internal/docsvc"
	"github.com/attentra/attentra/internal/flatten"
	"github.com/attentra/attentra/internal/metrics"
	"github.com/attentra/attentra/internal/search"
	"github.com/attentra/attentra/internal/store"
)

type DocumentsHandler struct {
	Store     *store.Store
	Docs      docsvc.Service
	Web       *docsvc.WebImporter // nil when web import is disabled
	Flattener flatten.Flattener
	Search    *search.Service
}

func (h *DocumentsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.POST("/sync", h.sync)
	g.GET("/:id/search", h.search)
}

// sync fetches the current snapshot, rebuilds the flattened text and the
// AOI map, and upserts both. AOI rows keep their identity across syncs as
// long as heading path, block index and content prefix are undisturbed, so
// telemetry keyed on them survives unrelated edits.
func (h *DocumentsHandler) sync(c echo.Context) error {
	var req SyncDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ExternalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external_id required")
	}

	ctx := c.Request().Context()
	var snap flatten.Snapshot
	var err error
	switch req.Source {
	case "", "service":
		req.Source = "service"
		snap, err = h.Docs.FetchSnapshot(ctx, req.ExternalID, req.AccessToken)
	case "web":
		if h.Web == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "web import disabled")
		}
		snap, err = h.Web.Fetch(ctx, req.ExternalID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown source: "+req.Source)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	title := req.Title
	if title == "" {
		title = snap.Title
	}

	// An empty snapshot is a valid zero-AOI document, not an error.
	fullText, _, aois := h.Flattener.Flatten(snap)

	docID, err := h.Store.UpsertDocument(ctx, orgID(c), req.ExternalID, req.Source, title, fullText)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Store.UpsertAOIs(ctx, docID, aois); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.Search != nil {
		recs := make([]store.AOIRecord, 0, len(aois))
		now := time.Now()
		for _, a := range aois {
			recs = append(recs, store.AOIRecord{
				DocID:       docID,
				Key:         a.Key,
				HeadingPath: a.HeadingPath,
				BlockIndex:  a.BlockIndex,
				DocStart:    a.DocStart,
				DocEnd:      a.DocEnd,
				Snippet:     a.Snippet,
				UpdatedAt:   now,
			})
		}
		if err := h.Search.Rebuild(docID, recs); err != nil {
			// Search is best-effort; the sync itself succeeded.
			c.Logger().Warnf("rebuild search index for %s: %v", docID, err)
		}
	}

	metrics.DocumentsSynced.Inc()
	return c.JSON(http.StatusOK, SyncDocumentResponse{DocID: docID, Title: title, AoiCount: len(aois)})
}

func (h *DocumentsHandler) search(c echo.Context) error {
	docID := c.Param("id")
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	// Confirm the document belongs to the caller's org before searching.
	if _, err := h.Store.GetDocument(c.Request().Context(), orgID(c), docID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	hits, err := h.Search.Search(docID, q, 10)
	if errors.Is(err, search.ErrNoIndex) {
		return echo.NewHTTPError(http.StatusConflict, "document not indexed; sync it first")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"hits": hits})
}
