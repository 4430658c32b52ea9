package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/episode-watch/internal/app"
	"github.com/Guilhem-Bonnet/episode-watch/internal/bridge"
	"github.com/Guilhem-Bonnet/episode-watch/internal/ports"
)

type Server struct {
	logger        zerolog.Logger
	engine        *app.Engine
	dispatcher    *bridge.Dispatcher
	settings      *app.SettingsService
	notifications *app.NotificationService
	bus           ports.EventBus
}

func NewServer(logger zerolog.Logger, engine *app.Engine, dispatcher *bridge.Dispatcher, settings *app.SettingsService, notifications *app.NotificationService, bus ports.EventBus) *Server {
	return &Server{logger: logger, engine: engine, dispatcher: dispatcher, settings: settings, notifications: notifications, bus: bus}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Route("/api/v1", func(r chi.Router) {
		// Flux long: hors du timeout de requête.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.dispatcher != nil {
				r.Post("/bridge", s.handleBridge)
			}
			if s.engine != nil {
				r.Get("/status", s.handleStatus)
				r.Post("/check", s.handleCheckAll)
				NewTrackedHandler(s.engine).Routes(r)
			}
			if s.settings != nil {
				NewSettingsHandler(s.settings, s.notifications).Routes(r)
			}
		})
	})

	return r
}
