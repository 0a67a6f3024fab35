// internal/catalog/handler.go
package catalog

import (
	"net/http"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/auth"
	"gamelibrary/internal/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the /items endpoints. Authentication must already be applied.
func (h *Handler) Routes(r chi.Router) {
	read := auth.RequirePermission(auth.PermissionAdmin, auth.PermissionUser)
	write := auth.RequirePermission(auth.PermissionAdmin)

	r.Route("/items", func(r chi.Router) {
		r.With(read).Get("/", h.handleList)
		r.With(read).Get("/genre/{genre}", h.handleListByGenre)
		r.With(read).Get("/{id}", h.handleGet)
		r.With(write).Post("/", h.handleCreate)
		r.With(write).Put("/{id}", h.handleUpdate)
		r.With(write).Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleListByGenre(w http.ResponseWriter, r *http.Request) {
	genre, err := ParseGenre(chi.URLParam(r, "genre"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	items, err := h.service.ListByGenre(r.Context(), genre)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	item, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.SetLocation(w, r, "/items/"+item.ID.String())
	httpx.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var req UpdateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	if err := h.service.Update(r.Context(), id, req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func itemID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid item ID")
	}
	return id, nil
}
