// Package httpapi serves the agent's status API.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeagent/internal/domain"
	apimw "github.com/hamed0406/uptimeagent/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeagent/internal/repo"
	"github.com/hamed0406/uptimeagent/internal/runner"
)

// Controller is the part of the runner the API exposes.
type Controller interface {
	Status() runner.Status
	Stop()
}

type Server struct {
	Logger   *zap.Logger
	Runner   Controller
	Results  repo.ResultStore
	Gatherer prometheus.Gatherer
	// Origins are the allowed CORS origins; empty allows any.
	Origins []string
}

func NewServer(l *zap.Logger, c Controller, rs repo.ResultStore, g prometheus.Gatherer) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Runner: c, Results: rs, Gatherer: g}
}

// Router wires the routes. Reads need any key, stopping needs an admin key;
// with no keys configured everything is open. publicRPM <= 0 disables rate
// limiting.
func (s *Server) Router(keys apimw.Keys, publicRPM, publicBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	origins := s.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(publicRPM, publicBurst))
		r.Use(apimw.RequireAny(keys))

		r.Get("/status", s.handleStatus)
		r.Get("/results", s.handleResults)
		r.Get("/results/{label}", s.handleResult)
		r.With(apimw.RequireAdmin(keys)).Post("/stop", s.handleStop)
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runner.Status())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Results.Latest(r.Context())
	if err != nil {
		s.Logger.Warn("api_results_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "results unavailable")
		return
	}
	if rows == nil {
		rows = []domain.ResultRecord{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	rec, err := s.Results.LastByLabel(r.Context(), label)
	if err != nil {
		s.Logger.Warn("api_result_failed", zap.String("label", label), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "results unavailable")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no result for "+label)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.Logger.Info("api_stop", zap.String("remote", r.RemoteAddr))
	s.Runner.Stop()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"stopping":     true,
		"requested_at": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
