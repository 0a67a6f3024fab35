// internal/library/handler.go
package library

import (
	"net/http"
	"strconv"
	"strings"

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

// Routes mounts the /users/{userId}/library endpoints. Authentication must
// already be applied. A User-tier principal may only reach its own library.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/users/{userId}/library", func(r chi.Router) {
		r.Use(auth.RequirePermission(auth.PermissionAdmin, auth.PermissionUser))
		r.Use(ownLibraryOnly)

		r.Get("/", h.handleList)
		r.Post("/", h.handlePurchase)
		r.Get("/installed", h.handleInstalled)
		r.Get("/{itemId}", h.handleGet)
		r.Get("/{itemId}/history", h.handleHistory)
		r.Patch("/{itemId}/installation", h.handleInstallation)
		r.Delete("/{itemId}", h.handleRemove)
	})
}

func ownLibraryOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFrom(r.Context())
		if p.Permission == auth.PermissionUser && !strings.EqualFold(p.UserID, chi.URLParam(r, "userId")) {
			httpx.WriteError(w, apperr.Forbidden("cannot access another user's library"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userId", "user")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	entries, err := h.service.GetLibrary(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleInstalled(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userId", "user")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	entries, err := h.service.GetInstalled(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, gameID, err := entryKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), userID, gameID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, gameID, err := entryKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	events, err := h.service.History(r.Context(), userID, gameID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userId", "user")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	raw := r.URL.Query().Get("itemId")
	if raw == "" {
		raw = r.URL.Query().Get("gameId")
	}
	gameID, err := uuid.Parse(raw)
	if err != nil {
		httpx.WriteError(w, apperr.Validation("invalid item ID"))
		return
	}

	entry, err := h.service.Purchase(r.Context(), userID, gameID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.SetLocation(w, r, "/users/"+userID.String()+"/library/"+gameID.String())
	httpx.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleInstallation(w http.ResponseWriter, r *http.Request) {
	userID, gameID, err := entryKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	raw := r.URL.Query().Get("installed")
	if raw == "" {
		raw = r.URL.Query().Get("installationStatus")
	}
	installed, err := strconv.ParseBool(raw)
	if err != nil {
		httpx.WriteError(w, apperr.Validation("installed must be true or false"))
		return
	}

	if installed {
		err = h.service.MarkInstalled(r.Context(), userID, gameID)
	} else {
		err = h.service.MarkUninstalled(r.Context(), userID, gameID)
	}
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	userID, gameID, err := entryKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := h.service.Remove(r.Context(), userID, gameID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func entryKey(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := pathUUID(r, "userId", "user")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	gameID, err := pathUUID(r, "itemId", "item")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, gameID, nil
}

func pathUUID(r *http.Request, param, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s ID", what)
	}
	return id, nil
}
