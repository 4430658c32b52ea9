package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/episode-watch/internal/app"
	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/httpjson"
)

type SettingsHandler struct {
	settings      *app.SettingsService
	notifications *app.NotificationService
}

func NewSettingsHandler(settings *app.SettingsService, notifications *app.NotificationService) *SettingsHandler {
	return &SettingsHandler{settings: settings, notifications: notifications}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/settings", h.get)
	r.Put("/settings", h.put)
	// Variante avec slash final (utile selon reverse-proxy / clients).
	r.Get("/settings/", h.get)
	r.Put("/settings/", h.put)

	if h.notifications != nil {
		r.Post("/settings/permission", h.requestPermission)
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, s)
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	var s domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	updated, err := h.settings.Put(r.Context(), s)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			httpjson.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, updated)
}

type permissionResponse struct {
	Permission domain.Permission `json:"permission"`
}

// requestPermission applique la même règle que l'abonnement: accord automatique si un canal existe.
func (h *SettingsHandler) requestPermission(w http.ResponseWriter, r *http.Request) {
	p, err := h.notifications.RequestPermission(r.Context())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p != domain.PermissionGranted {
		httpjson.WriteCodedError(w, http.StatusForbidden, app.CodePermissionDenied, "notification permission "+string(p))
		return
	}
	httpjson.Write(w, http.StatusOK, permissionResponse{Permission: p})
}
