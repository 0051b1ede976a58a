package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/attentra/attentra/internal/store"
	"github.com/attentra/attentra/internal/suggest"
)

type SuggestionsHandler struct {
	Store   *store.Store
	Service *suggest.Service
}

func (h *SuggestionsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(func(next echo.HandlerFunc) echo.HandlerFunc { return withAuth(next, secret) })
	g.GET("", h.list)
	g.POST("/generate", h.generate)
	g.POST("/:id/accept", h.accept)
	g.POST("/:id/reject", h.reject)
}

func (h *SuggestionsHandler) generate(c echo.Context) error {
	var req GenerateSuggestionsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DocID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doc_id required")
	}
	created, err := h.Service.Generate(c.Request().Context(), orgID(c), req.DocID, req.Preferences, req.Max)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]Suggestion, 0, len(created))
	for _, rec := range created {
		out = append(out, toSuggestion(rec))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"created": len(out), "suggestions": out})
}

func (h *SuggestionsHandler) list(c echo.Context) error {
	status := c.QueryParam("status")
	if status == "" {
		status = store.SuggestionStatusPending
	}
	if status == "all" {
		status = ""
	}
	recs, err := h.Store.ListSuggestions(c.Request().Context(), orgID(c), status, c.QueryParam("doc_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]Suggestion, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toSuggestion(rec))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"suggestions": out})
}

// accept re-anchors and applies the edit. The error mapping keeps the
// failure classes distinct: 404 unknown id, 409 anchor lost (re-propose),
// 412 wrong state, 502 document service trouble (retry later).
func (h *SuggestionsHandler) accept(c echo.Context) error {
	var req AcceptSuggestionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.Service.Accept(c.Request().Context(), orgID(c), c.Param("id"), req.AccessToken, req.Note, userID(c))
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "suggestion not found")
	case errors.Is(err, suggest.ErrAnchorLost):
		return echo.NewHTTPError(http.StatusConflict, "document changed; anchor could not be resolved")
	case errors.Is(err, store.ErrAlreadyApplied):
		return echo.NewHTTPError(http.StatusPreconditionFailed, "suggestion already applied")
	case errors.Is(err, store.ErrAlreadyRejected):
		return echo.NewHTTPError(http.StatusPreconditionFailed, "suggestion already rejected")
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         rec.Status,
		"applied_anchor": rec.Anchor,
		"suggestion":     toSuggestion(rec),
	})
}

func (h *SuggestionsHandler) reject(c echo.Context) error {
	var req RejectSuggestionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.Service.Reject(c.Request().Context(), orgID(c), c.Param("id"), req.Note)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "suggestion not found")
	case errors.Is(err, store.ErrAlreadyApplied):
		return echo.NewHTTPError(http.StatusPreconditionFailed, "suggestion already applied")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": store.SuggestionStatusRejected})
}
