// Package httpapi is the HTTP surface, generalized from the teacher's
// bare http.ServeMux (cmd/server/main.go's single /healthz route) into a
// go-chi router — go-chi/chi/v5 is the router the example corpus carries
// (AKJUS-bsc-erigon's go.mod; see DESIGN.md) — that implements both a
// session-ID-path surface and an equivalent bearer-token surface.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"dupligone/internal/catalog"
	"dupligone/internal/logging"
	"dupligone/internal/pipeline"
	"dupligone/internal/queue"
)

type Server struct {
	pipe   *pipeline.Orchestrator
	broker *queue.Broker
	cat    *catalog.Client
	log    *zap.Logger
}

func NewServer(pipe *pipeline.Orchestrator, broker *queue.Broker, cat *catalog.Client) *Server {
	return &Server{pipe: pipe, broker: broker, cat: cat, log: logging.Named("httpapi")}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/upload", s.handleUploadSession)
			r.Get("/", s.handleGetSession)
			r.Get("/results", s.handleGetResults)
			r.Get("/images", s.handleListImages)
			r.Get("/clusters", s.handleListClusters)
			r.Post("/confirm-deletions", s.handleConfirmDeletions)
			r.Delete("/", s.handleDeleteSession)
		})
	})

	r.Patch("/images/{imageID}/flag", s.handleFlagImage)
	r.Get("/jobs/{jobID}/status", s.handleJobStatus)

	// Token-based surface: one bearer token per session, equivalent to
	// the session-ID-path routes above.
	r.Post("/upload", s.handleTokenUpload)
	r.Get("/getResult", s.handleTokenGetResult)
	r.Post("/delete", s.handleTokenDelete)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"services": map[string]string{
			"catalog": "ok",
			"queue":   "ok",
		},
	})
}
