package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-classroom/internal/config"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/hub"
	"github.com/npezzotti/go-classroom/internal/logging"
	"github.com/rs/zerolog"
)

type ClassroomApp struct {
	log            zerolog.Logger
	db             database.Repository
	hub            *hub.Hub
	srv            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewClassroomApp(mux *http.ServeMux, logger zerolog.Logger, h *hub.Hub, db database.Repository, cfg *config.Config) *ClassroomApp {
	s := &ClassroomApp{
		log:            logger,
		db:             db,
		hub:            h,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.Handle("PUT /api/notifications/read-all", s.authMiddleware(s.markAllNotificationsRead))
	mux.Handle("PUT /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))
	mux.Handle("POST /api/notifications", s.authMiddleware(s.createNotification))
	mux.Handle("POST /api/events/{event}", s.authMiddleware(s.postEvent))
	mux.Handle("GET /api/room-messages/{roomId}", s.authMiddleware(s.getRoomMessages))
	mux.Handle("GET /api/room-users/{roomId}", s.authMiddleware(s.getRoomUsers))
	mux.Handle("GET /api/categories", s.authMiddleware(s.getCategories))
	mux.HandleFunc("GET /ws", s.serveWs)

	handler := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	handler = s.errorHandler(handler)
	handler = logging.HTTPMiddleware(logger)(handler)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: handler,
	}

	return s
}

// Handler exposes the fully wrapped handler chain.
func (s *ClassroomApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *ClassroomApp) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *ClassroomApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
