package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/plays3000/ai-server/internal/api/handlers"
	appMiddleware "github.com/plays3000/ai-server/internal/api/middlewares"
	"github.com/plays3000/ai-server/internal/config"
	"github.com/plays3000/ai-server/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, templates *services.TemplateService, chat *services.ChatService, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, templates, chat, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("http"),
	}
}

// NewRouter returns the API routes. Generation can take several oracle round trips,
// so the timeout is generous.
func NewRouter(cfg *config.Config, templates *services.TemplateService, chat *services.ChatService, logger *zap.Logger) http.Handler {
	templateHandler := handlers.NewTemplateHandler(templates, cfg.UploadDir, cfg.MaxSamples, logger)
	chatHandler := handlers.NewChatHandler(chat, cfg.UploadDir, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWT([]byte(cfg.JWTSecret)))

			protected.Post("/templates/learn", templateHandler.Learn)
			protected.Get("/templates", templateHandler.List)
			protected.Get("/templates/{name}/versions", templateHandler.Versions)
			protected.Post("/templates/delete", templateHandler.Delete)

			protected.Post("/chat", chatHandler.Send)
			protected.Get("/chat/history", chatHandler.History)
			protected.Get("/chat/download/generated/{fileName}", chatHandler.Download)
		})
	})

	return r
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
