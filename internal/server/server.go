// Package server exposes the contract extraction and recommendation
// pipelines over an authenticated HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/contract-optimizer/internal/auth"
	"github.com/sells-group/contract-optimizer/internal/blob"
	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/provider"
	"github.com/sells-group/contract-optimizer/internal/store"
)

// Extractor runs the extraction pipeline over uploaded documents.
type Extractor interface {
	Extract(ctx context.Context, docs []provider.Document) (*model.ExtractionResult, error)
}

// Recommender produces advisory records from stored contracts.
type Recommender interface {
	Generate(ctx context.Context, userID string, contracts []model.Contract, analyzed map[string]bool) ([]model.Recommendation, error)
}

// Config holds HTTP server settings.
type Config struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxDocuments   int
	MaxFileBytes   int64
}

// Server wires handlers to their collaborators.
type Server struct {
	store       store.Store
	storage     blob.Storage
	verifier    auth.Verifier
	extractor   Extractor
	recommender Recommender
	cfg         Config
	limiter     *rate.Limiter
}

// New builds a Server.
func New(st store.Store, storage blob.Storage, verifier auth.Verifier, extractor Extractor, recommender Recommender, cfg Config) *Server {
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = 5
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 10 * 1024 * 1024
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	return &Server{
		store:       st,
		storage:     storage,
		verifier:    verifier,
		extractor:   extractor,
		recommender: recommender,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.authenticate)

		r.Route("/upload", func(r chi.Router) {
			r.Post("/extract", s.handleExtract)
			r.Post("/confirm", s.handleConfirm)
		})

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", s.handleListContracts)
			r.Get("/summary", s.handleContractSummary)
			r.Get("/{contractID}", s.handleGetContract)
			r.Put("/{contractID}", s.handleUpdateContract)
			r.Delete("/{contractID}", s.handleDeleteContract)
			r.Get("/{contractID}/files/{fileID}/url", s.handleFileURL)
		})

		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/", s.handleListRecommendations)
			r.Post("/generate", s.handleGenerateRecommendations)
			r.Get("/{recID}", s.handleGetRecommendation)
			r.Put("/{recID}", s.handleUpdateRecommendation)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
