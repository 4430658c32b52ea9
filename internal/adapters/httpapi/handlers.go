package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/bridge"
	"github.com/Guilhem-Bonnet/episode-watch/internal/buildinfo"
	"github.com/Guilhem-Bonnet/episode-watch/internal/httpjson"
)

const defaultRequestTimeout = 30 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, s.engine.Status())
}

// handleCheckAll lance un sweep en arrière-plan; la réponse n'attend pas la fin des vérifications.
func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Running() {
		httpjson.WriteError(w, http.StatusConflict, "detection is not running")
		return
	}
	go s.engine.ForceCheckAll(context.WithoutCancel(r.Context()))
	httpjson.Write(w, http.StatusAccepted, map[string]string{"status": "checking"})
}

// handleBridge reçoit une enveloppe d'un client distant et renvoie la réponse du Dispatcher.
func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	var env bridge.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if env.ID == "" || env.Type == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "envelope id and type are required")
		return
	}
	httpjson.Write(w, http.StatusOK, s.dispatcher.Handle(r.Context(), env))
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
