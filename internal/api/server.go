package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/esgcompare/internal/cache"
	"github.com/dgallion1/esgcompare/internal/config"
	"github.com/dgallion1/esgcompare/internal/extract"
	"github.com/dgallion1/esgcompare/internal/pipeline"
)

// Server is the HTTP API server for esgcompare.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	client       *extract.Throttled
	cache        *cache.Cache
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. client and c may be nil,
// in which case the matching stats endpoints report unavailable.
func NewServer(orch *pipeline.Orchestrator, client *extract.Throttled, c *cache.Cache, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		client:       client,
		cache:        c,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/compare", s.handleCompare)
		r.Route("/api/compare/{jobID}", func(r chi.Router) {
			r.Get("/status", s.handleCompareStatus)
			r.Get("/table", s.handleCompareTable)
			r.Get("/documents", s.handleCompareDocuments)
		})
		r.Delete("/api/compare/{jobID}", s.handleCompareCancel)

		r.Get("/api/documents/{fingerprint}/metrics", s.handleDocumentMetrics)

		r.Get("/api/stats/llm", s.handleLLMStats)
		r.Get("/api/stats/cache", s.handleCacheStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
