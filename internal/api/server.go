package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/juanlucasl/sendtrack/internal/config"
	"github.com/juanlucasl/sendtrack/internal/directory"
	"github.com/juanlucasl/sendtrack/internal/storage"
)

// Options carries the collaborators the handlers need.
type Options struct {
	Store             storage.Storage
	Directory         *directory.Directory
	OurConversationID string
	APIKey            string
	ReceiptSecret     string
}

type Server struct {
	cfg    config.ServerConfig
	opts   Options
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, opts Options, log zerolog.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		opts: opts,
		log:  log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	cnvHandler := NewConversationHandler(s.opts.Store, s.opts.Directory)
	msgHandler := NewMessageHandler(s.opts.Store, s.opts.Directory, s.opts.OurConversationID, s.log)
	rcptHandler := NewReceiptHandler(s.opts.Store, s.opts.Directory, s.opts.OurConversationID, s.opts.ReceiptSecret, s.log)
	statsHandler := NewStatsHandler(s.opts.Store)

	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Receipts authenticate by HMAC signature, not API key — the
		// delivery transport holds the shared secret, not a bearer token.
		r.Post("/receipts", rcptHandler.Ingest)

		r.Group(func(r chi.Router) {
			r.Use(APIKeyMiddleware(s.opts.APIKey))

			r.Post("/conversations", cnvHandler.Create)
			r.Get("/conversations", cnvHandler.List)

			r.Post("/messages", msgHandler.Send)
			r.Get("/messages", msgHandler.List)
			r.Get("/messages/{id}", msgHandler.Get)

			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
