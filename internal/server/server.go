// Package server exposes the comparison workflow over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/config"
	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
	"github.com/sells-group/policy-compare/internal/session"
	"github.com/sells-group/policy-compare/internal/settings"
	"github.com/sells-group/policy-compare/internal/store"
)

// Request-level error kinds mapped to status codes by wrap.
var (
	errBadRequest = eris.New("bad request")
	errNotFound   = eris.New("not found")
	errConflict   = eris.New("conflict")
)

// Server wires the pipeline, sessions, settings and optional
// persistence behind an HTTP API.
type Server struct {
	cfg      *config.Config
	settings *settings.Store
	pipe     *pipeline.Pipeline
	sessions *session.Registry
	store    store.Store // nil disables persistence
}

func NewServer(cfg *config.Config, st *settings.Store, pipe *pipeline.Pipeline, registry *session.Registry, persistence store.Store) *Server {
	return &Server{
		cfg:      cfg,
		settings: st,
		pipe:     pipe,
		sessions: registry,
		store:    persistence,
	}
}

// Handler builds the chi router for all workflow endpoints.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Get("/settings", s.wrap(s.handleGetSettings))
	mux.Put("/settings", s.wrap(s.handlePutSettings))
	mux.Get("/analysis-templates", s.wrap(s.handleAnalysisTemplates))

	mux.Route("/sessions", func(rt chi.Router) {
		rt.Post("/", s.wrap(s.handleCreateSession))
		rt.Get("/", s.wrap(s.handleListSessions))

		rt.Route("/{sessionID}", func(rt chi.Router) {
			rt.Get("/", s.wrap(s.handleGetSession))
			rt.Delete("/", s.wrap(s.handleDeleteSession))

			rt.Post("/products", s.wrap(s.handleIngest))
			rt.Get("/products", s.wrap(s.handleListProducts))
			rt.Get("/products/{product}", s.wrap(s.handleGetProduct))
			rt.Delete("/products/{product}", s.wrap(s.handleDeleteProduct))
			rt.Put("/products/{product}/pages", s.wrap(s.handleEditPage))

			rt.Get("/questions", s.wrap(s.handleGetQuestions))
			rt.Put("/questions", s.wrap(s.handlePutQuestions))
			rt.Post("/questions/suggest", s.wrap(s.handleSuggest))
			rt.Post("/questions/categories", s.wrap(s.handleAddCategory))
			rt.Delete("/questions/categories/{category}", s.wrap(s.handleDeleteCategory))
			rt.Post("/questions/items", s.wrap(s.handleAddQuestion))
			rt.Delete("/questions/items/{questionID}", s.wrap(s.handleDeleteQuestion))

			rt.Post("/extract", s.wrap(s.handleExtract))
			rt.Get("/extractions", s.wrap(s.handleListExtractions))
			rt.Post("/review", s.wrap(s.handleReview))
			rt.Post("/corrections/apply", s.wrap(s.handleApplyCorrections))

			rt.Post("/analyze", s.wrap(s.handleAnalyze))
			rt.Get("/analyses", s.wrap(s.handleListAnalyses))

			rt.Get("/export", s.wrap(s.handleExport))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("request failed",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
		}
		respondJSON(w, status, map[string]string{"error": err.Error()})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrFetch),
		errors.Is(err, model.ErrExtractionService),
		errors.Is(err, model.ErrSuggestionParse):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return eris.Wrap(errBadRequest, "invalid request body")
	}
	return nil
}

// session resolves the session from the URL, or errNotFound.
func (s *Server) session(r *http.Request) (*session.Session, error) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, eris.Wrapf(errNotFound, "session %s", id)
	}
	return sess, nil
}
