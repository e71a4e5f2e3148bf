// Package httpserver exposes the single HTTP surface C4 needs:
// POST /api/v1/resume/analyze. Grounded on the CV evaluator's
// internal/adapter/httpserver (chi router, go-chi/cors, go-chi/httprate,
// mimetype content sniffing ahead of text extraction, go-playground/
// validator for request parameters, the error-envelope/status-code mapping
// in responses.go), trimmed to the one endpoint and one upload field this
// core's spec calls for.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jobmatch/core/internal/config"
	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/resume"
)

// Analyzer is the subset of resume.Analyzer the server needs.
type Analyzer interface {
	Analyze(ctx domain.Context, resumeText string, opts resume.Options) (resume.Result, error)
}

// TextExtractor turns an uploaded résumé's raw bytes into plain text,
// restricted to the first maxPages pages. PDF/DOCX extraction is out of
// scope for this core (see DESIGN.md); the default extractor handles only
// text/plain uploads and reports anything else as domain.ErrInput, so a
// deployer can inject a real extractor without this package changing.
type TextExtractor interface {
	Extract(ctx domain.Context, data []byte, mime string, maxPages int) (string, error)
}

// Server aggregates the endpoint's dependencies.
type Server struct {
	Cfg       config.Config
	Analyzer  Analyzer
	Extractor TextExtractor
}

// New constructs a Server.
func New(cfg config.Config, analyzer Analyzer, extractor TextExtractor) *Server {
	return &Server{Cfg: cfg, Analyzer: analyzer, Extractor: extractor}
}

// Router builds the chi router: CORS, rate limiting, access logging, and
// panic recovery wrap the one POST /api/v1/resume/analyze route, plus a
// liveness probe at /healthz.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recoverer())
	r.Use(AccessLog())
	r.Use(middleware.Timeout(s.Cfg.HTTPWriteTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitCORSOrigins(s.Cfg.CORSAllowOrigins),
		AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(s.Cfg.RateLimitPerMin, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api/v1/resume", func(r chi.Router) {
		r.Post("/analyze", s.AnalyzeHandler())
	})
	return r
}
