// Package httpapi is the HTTP ingress: transaction submission, profile
// snapshot replacement, and health/readiness endpoints.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fraudrules/fraudrules/internal/director"
	"github.com/fraudrules/fraudrules/internal/domain"
)

type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

func NewServer(cfg domain.ServerConfig, director *director.Director, history domain.HistoryStore, bus domain.EventBus, version string) *Server {
	handler := NewHandler(director, history, bus, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Post("/transactions", handler.ProcessTransaction)
	router.Post("/profiles", handler.RefreshProfiles)

	return &Server{router: router, handler: handler, config: cfg}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
