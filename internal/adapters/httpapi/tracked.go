package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/episode-watch/internal/app"
	"github.com/Guilhem-Bonnet/episode-watch/internal/domain"
	"github.com/Guilhem-Bonnet/episode-watch/internal/httpjson"
)

// TrackedHandler expose la liste suivie par le moteur du daemon.
type TrackedHandler struct {
	engine    *app.Engine
	validator *requestValidator
}

func NewTrackedHandler(engine *app.Engine) *TrackedHandler {
	return &TrackedHandler{engine: engine, validator: newRequestValidator()}
}

func (h *TrackedHandler) Routes(r chi.Router) {
	r.Route("/tracked", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.add)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/check", h.check)
	})
}

func (h *TrackedHandler) list(w http.ResponseWriter, r *http.Request) {
	items := h.engine.TrackedItems()
	if items == nil {
		items = []domain.TrackedItem{}
	}
	httpjson.Write(w, http.StatusOK, items)
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (h *TrackedHandler) add(w http.ResponseWriter, r *http.Request) {
	var item domain.TrackedItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	item.ID = strings.TrimSpace(item.ID)
	if err := h.validator.Validate(item); err != nil {
		var verr *validationError
		if errors.As(err, &verr) {
			httpjson.Write(w, http.StatusBadRequest, validationResponse{Error: "validation failed", Fields: verr.Fields})
			return
		}
		httpjson.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	if !h.engine.AddItem(r.Context(), item) {
		httpjson.WriteError(w, http.StatusConflict, "item already tracked")
		return
	}
	httpjson.Write(w, http.StatusCreated, item)
}

func (h *TrackedHandler) remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.engine.RemoveItem(r.Context(), id) {
		httpjson.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// check vérifie un seul item de façon synchrone et renvoie l'état du service.
func (h *TrackedHandler) check(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if domain.IndexOf(h.engine.TrackedItems(), id) < 0 {
		httpjson.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	if !h.engine.ForceCheckOne(r.Context(), id) {
		httpjson.WriteError(w, http.StatusConflict, "detection is not running")
		return
	}
	httpjson.Write(w, http.StatusOK, h.engine.Status())
}
