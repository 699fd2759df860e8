package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/docsmith-ai/docsmith/internal/api/handlers"
	appMiddleware "github.com/docsmith-ai/docsmith/internal/api/middlewares"
	"github.com/docsmith-ai/docsmith/internal/config"
	"github.com/docsmith-ai/docsmith/internal/core"
	"github.com/docsmith-ai/docsmith/internal/core/pipeline"
	"github.com/docsmith-ai/docsmith/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	dbClient core.DbClient,
	objClient core.ObjectClient,
	processor pipeline.DocumentProcessor,
	issuer *pipeline.TokenIssuer,
	coordinator *pipeline.Coordinator,
	registry *prometheus.Registry,
) *Server {
	userService := services.NewUserService(dbClient)
	docService := services.NewDocumentService(dbClient, objClient, cfg.BucketName, log)

	authHandler := handlers.NewAuthHandler(userService, cfg.JwtSecret)
	docHandler := handlers.NewDocumentHandler(docService, coordinator, log)
	ingestHandler := handlers.NewIngestHandler(processor, issuer, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Ingest-scope token only; the server execution path calls this.
	r.Post("/internal/ingest", ingestHandler.Ingest)

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JwtSecret))
			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Get("/documents/{id}/status", docHandler.GetDocumentStatus)
			protected.Post("/documents/{id}/reprocess", docHandler.ReprocessDocument)
			protected.Post("/documents/{id}/cancel", docHandler.CancelDocument)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
