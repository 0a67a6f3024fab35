package search

import (
	"context"
	"net/http"
	"strings"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/auth"
	"gamelibrary/internal/catalog"
	"gamelibrary/internal/httpx"

	"github.com/go-chi/chi/v5"
)

// Reindexer rebuilds the mirror from the authoritative catalog.
type Reindexer interface {
	Reindex(ctx context.Context) (int, error)
}

// Handler serves read queries against the mirror. Results may lag the catalog.
type Handler struct {
	mirror    catalog.Mirror
	reindexer Reindexer
}

func NewHandler(mirror catalog.Mirror, reindexer Reindexer) *Handler {
	return &Handler{mirror: mirror, reindexer: reindexer}
}

func (h *Handler) Routes(r chi.Router) {
	read := auth.RequirePermission(auth.PermissionAdmin, auth.PermissionUser)

	r.Route("/search", func(r chi.Router) {
		r.With(read).Get("/title", h.handleTitle)
		r.With(read).Get("/genre", h.handleGenre)
		r.With(read).Get("/stats/prices", h.handlePriceStats)
		r.With(read).Get("/all", h.handleAll)
		r.With(auth.RequirePermission(auth.PermissionAdmin)).Post("/reindex", h.handleReindex)
	})
}

func (h *Handler) handleTitle(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		httpx.WriteError(w, apperr.Validation("missing title query"))
		return
	}
	items, err := h.mirror.SearchByTitlePrefix(r.Context(), title)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGenre(w http.ResponseWriter, r *http.Request) {
	genre, err := catalog.ParseGenre(r.URL.Query().Get("genre"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	items, err := h.mirror.SearchByGenre(r.Context(), string(genre))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handlePriceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.mirror.PriceStatistics(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleAll(w http.ResponseWriter, r *http.Request) {
	items, err := h.mirror.ListAll(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleReindex(w http.ResponseWriter, r *http.Request) {
	n, err := h.reindexer.Reindex(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"indexed": n})
}
