// Package server provides the HTTP API for cardvision.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/config"
	"github.com/shirogane/cardvision/internal/encoder"
	"github.com/shirogane/cardvision/internal/imagecache"
	"github.com/shirogane/cardvision/internal/models"
	"github.com/shirogane/cardvision/internal/pipeline"
	"github.com/shirogane/cardvision/internal/search"
	"github.com/shirogane/cardvision/internal/storage"
)

// EncoderProvider builds a fresh encoder for the requested vector kind.
// Admin-triggered embedding runs construct and close one per run.
type EncoderProvider func(kind models.VectorKind) (encoder.ImageEncoder, error)

// Server is the HTTP server for the cardvision API.
type Server struct {
	engine  *search.Engine
	pipe    *pipeline.Pipeline
	cache   *imagecache.Cache
	storage storage.Storage
	// encoders is nil when no encoder is available in this build, which
	// disables the run endpoint (status stays available).
	encoders EncoderProvider
	cfg      *config.Config
	logger   *zap.Logger
	server   *http.Server

	embedMu      sync.Mutex
	embedRunning bool
	lastEmbed    *pipeline.Result
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	pipe *pipeline.Pipeline,
	cache *imagecache.Cache,
	store storage.Storage,
	encoders EncoderProvider,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		pipe:     pipe,
		cache:    cache,
		storage:  store,
		encoders: encoders,
		cfg:      cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/search/image", s.handleSearchImage)
	r.Get("/api/v1/cards", s.handleListCards)
	r.Get("/api/v1/cards/{id}/similar", s.handleSimilar)
	r.Get("/api/v1/cards/search", s.handleNameSearch)
	r.Get("/api/v1/cards/{id}", s.handleGetCard)
	r.Get("/images/{type}/{file}", s.handleImage)

	r.Post("/api/v1/admin/embeddings/run", s.handleEmbeddingsRun)
	r.Get("/api/v1/admin/embeddings/status", s.handleEmbeddingsStatus)
	r.Post("/api/v1/admin/vectors/migrate", s.handleVectorsMigrate)
	r.Get("/api/v1/admin/cache/stats", s.handleCacheStats)
	r.Post("/api/v1/admin/cache/cleanup", s.handleCacheCleanup)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
