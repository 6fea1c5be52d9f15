// Package api is the HTTP gateway over the retrieval core: search, authority,
// taxonomy and resource endpoints with the {"detail": msg} error shape.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/neo-alexandria/neoalex/internal/authority"
	"github.com/neo-alexandria/neoalex/internal/bus"
	"github.com/neo-alexandria/neoalex/internal/ingest"
	"github.com/neo-alexandria/neoalex/internal/relevance"
	"github.com/neo-alexandria/neoalex/internal/search"
	"github.com/neo-alexandria/neoalex/internal/taxonomy"
	"github.com/neo-alexandria/neoalex/internal/telemetry"
)

// Server bundles the service dependencies behind the REST surface.
type Server struct {
	engine      *search.Engine
	rerankCache *search.RerankCache
	evaluator   *relevance.Evaluator
	authority   *authority.Service
	taxonomy    *taxonomy.Service
	ingest      *ingest.Coordinator
	telemetry   *telemetry.Collector
	bus         *bus.Bus
}

// Options carries the server dependencies.
type Options struct {
	Engine      *search.Engine
	RerankCache *search.RerankCache
	Authority   *authority.Service
	Taxonomy    *taxonomy.Service
	Ingest      *ingest.Coordinator
	Telemetry   *telemetry.Collector
	Bus         *bus.Bus
}

// NewServer creates the gateway. A nil telemetry collector or bus falls
// back to fresh/singleton instances.
func NewServer(opts Options) *Server {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewCollector()
	}
	if opts.Bus == nil {
		opts.Bus = bus.Default()
	}
	return &Server{
		engine:      opts.Engine,
		rerankCache: opts.RerankCache,
		evaluator:   relevance.NewEvaluator(opts.Engine),
		authority:   opts.Authority,
		taxonomy:    opts.Taxonomy,
		ingest:      opts.Ingest,
		telemetry:   opts.Telemetry,
		bus:         opts.Bus,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/search", func(r chi.Router) {
		r.Post("/", s.handleSearch)
		r.Get("/three-way-hybrid", s.handleThreeWayHybrid)
		r.Get("/compare-methods", s.handleCompareMethods)
		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/stats", s.handleStats)
	})

	r.Route("/authority", func(r chi.Router) {
		r.Get("/subjects/suggest", s.handleSuggestSubjects)
		r.Get("/classification/tree", s.handleClassificationTree)
	})

	r.Route("/taxonomy", func(r chi.Router) {
		r.Get("/tree", s.handleTaxonomyTree)
		r.Post("/nodes", s.handleTaxonomyCreate)
		r.Put("/nodes/{id}", s.handleTaxonomyUpdate)
		r.Delete("/nodes/{id}", s.handleTaxonomyDelete)
		r.Post("/nodes/{id}/move", s.handleTaxonomyMove)
		r.Post("/nodes/{id}/assign", s.handleTaxonomyAssign)
	})

	r.Route("/resources", func(r chi.Router) {
		r.Post("/", s.handleResourceCreate)
		r.Get("/{id}", s.handleResourceGet)
		r.Put("/{id}", s.handleResourceUpdate)
		r.Delete("/{id}", s.handleResourceDelete)
	})

	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", float64(time.Since(start).Microseconds())/1000.0,
			"request_id", middleware.GetReqID(r.Context()))
	})
}
