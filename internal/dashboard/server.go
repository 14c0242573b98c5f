// Package dashboard serves the unit filter and figure gallery pages.
package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/export"
	"github.com/rpattn/unitdash/internal/filter"
	"github.com/rpattn/unitdash/internal/gallery"
	"github.com/rpattn/unitdash/internal/ingestion"
	"github.com/rpattn/unitdash/internal/middleware"
	"github.com/rpattn/unitdash/internal/session"
	"github.com/rpattn/unitdash/pkg/validator"
)

// DefaultPageSize is how many filtered rows the units page shows at once.
const DefaultPageSize = 200

// Config holds the dashboard dependencies.
type Config struct {
	Dataset   *ingestion.Dataset
	Ingestion *ingestion.Service
	Sessions  *session.Manager
	Gallery   *gallery.Service
	Logger    *slog.Logger
	PageSize  int
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
	// APIMiddleware wraps the /api routes, e.g. CORS.
	APIMiddleware func(http.Handler) http.Handler
}

// Server holds the handlers of the dashboard.
type Server struct {
	dataset   *ingestion.Dataset
	ingestion *ingestion.Service
	sessions  *session.Manager
	gallery   *gallery.Service
	validator *validator.StateValidator
	renderer  *renderer
	logger    *slog.Logger
	pageSize  int
	cfg       Config
}

// NewServer builds the dashboard.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Server{
		dataset:   cfg.Dataset,
		ingestion: cfg.Ingestion,
		sessions:  cfg.Sessions,
		gallery:   cfg.Gallery,
		validator: validator.NewStateValidator(),
		renderer:  newRenderer(),
		logger:    cfg.Logger,
		pageSize:  cfg.PageSize,
		cfg:       cfg,
	}
}

// Handler returns the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LoggingMiddleware(s.logger))
	r.Use(middleware.SessionMiddleware(s.cfg.SecureCookies))
	r.Use(middleware.DataLoaderMiddleware(s.gallery, s.logger))

	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the dashboard routes on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/units", http.StatusSeeOther)
	})

	r.Route("/units", func(r chi.Router) {
		r.Get("/", s.handleUnits)
		r.Post("/filters", s.handleUpdateFilters)
		r.Post("/selection", s.handleSelectRows)
		r.Post("/selection/filter", s.handleSelectFiltered)
		r.Post("/selection/{source}/clear", s.handleClearSelection)
		r.Get("/histogram/{column}", s.handleHistogram)
		r.Method(http.MethodGet, "/export.{format}", export.NewHTTPHandler(
			s.filteredTable,
			func(r *http.Request) string { return chi.URLParam(r, "format") },
			"units",
			s.logger,
		))
	})

	r.Get("/gallery", s.handleGallery)

	r.Group(func(r chi.Router) {
		if s.cfg.APIMiddleware != nil {
			r.Use(s.cfg.APIMiddleware)
		}
		r.Post("/api/filter", s.handleAPIFilter)
		r.Get("/api/images/{drawType}", s.handleAPIImage)
		if s.ingestion != nil {
			r.Method(http.MethodPost, "/api/dataset", ingestion.NewHTTPHandler(s.ingestion, s.dataset))
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rows":   s.dataset.Table().Len(),
		"source": s.dataset.Source(),
	})
}

// applyState filters the current dataset with a session's filter state.
func (s *Server) applyState(state domain.SessionState) (filter.Result, error) {
	return filter.Apply(s.dataset.Table(), state.Filter)
}

// filteredTable is the export source: the session's filtered rows.
func (s *Server) filteredTable(r *http.Request) (domain.Table, error) {
	state, err := s.sessions.Load(r.Context())
	if err != nil {
		return domain.Table{}, err
	}
	result, _ := s.applyState(state)
	return result.Table, nil
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "path", r.URL.Path, "error", err)
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
