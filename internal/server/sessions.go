package server

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
	"github.com/sells-group/policy-compare/internal/session"
)

type sessionView struct {
	ID        string   `json:"id"`
	Stage     string   `json:"stage"`
	CreatedAt string   `json:"created_at"`
	Products  []string `json:"products"`
}

func viewSession(sess *session.Session) sessionView {
	products := sess.Products()
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	return sessionView{
		ID:        sess.ID(),
		Stage:     string(sess.Stage()),
		CreatedAt: sess.CreatedAt().UTC().Format("2006-01-02T15:04:05Z"),
		Products:  names,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) error {
	sess := s.sessions.Create()
	s.restoreSession(r, sess)
	respondJSON(w, http.StatusCreated, viewSession(sess))
	return nil
}

// restoreSession loads previously persisted products, question
// configuration and extractions into a fresh session. Failures are
// logged and the session starts empty.
func (s *Server) restoreSession(r *http.Request, sess *session.Session) {
	if s.store == nil {
		return
	}
	ctx := r.Context()

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		zap.L().Warn("restore products", zap.Error(err))
		return
	}
	for i := range products {
		sess.AddProduct(&products[i])
	}

	if qc, err := s.store.LoadQuestionConfig(ctx); err != nil {
		zap.L().Warn("restore question config", zap.Error(err))
	} else if qc != nil {
		sess.SetQuestionConfig(qc)
	}

	for i := range products {
		name := products[i].Name
		extractions, err := s.store.LoadExtractions(ctx, name)
		if err != nil {
			zap.L().Warn("restore extractions", zap.String("product", name), zap.Error(err))
			continue
		}
		if len(extractions) > 0 {
			sess.SetExtractions(name, extractions)
		}
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) error {
	ids := s.sessions.List()
	views := make([]sessionView, 0, len(ids))
	for _, id := range ids {
		if sess, ok := s.sessions.Get(id); ok {
			views = append(views, viewSession(sess))
		}
	}
	respondJSON(w, http.StatusOK, views)
	return nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, viewSession(sess))
	return nil
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	s.sessions.Delete(sess.ID())
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /sessions/{id}/products
// Body: {"name": "...", "urls": ["..."]}
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}

	var body struct {
		Name string   `json:"name"`
		URLs []string `json:"urls"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	if body.Name == "" || len(body.URLs) == 0 {
		return eris.Wrap(errBadRequest, "name and urls are required")
	}

	product, report, err := s.pipe.Ingest(r.Context(), body.Name, body.URLs)
	if err != nil {
		return err
	}
	sess.AddProduct(product)
	s.persistProduct(r, product)

	status := http.StatusCreated
	if len(report.Failures) > 0 {
		// Partial ingest still creates the product; the failures ride
		// along so the caller can surface them.
		status = http.StatusMultiStatus
	}
	respondJSON(w, status, map[string]any{
		"product": product,
		"report":  report,
	})
	return nil
}

func (s *Server) persistProduct(r *http.Request, p *model.Product) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveProduct(r.Context(), p); err != nil {
		zap.L().Warn("persist product", zap.String("product", p.Name), zap.Error(err))
	}
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, sess.Products())
	return nil
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	name, err := productParam(r)
	if err != nil {
		return err
	}
	product, ok := sess.Product(name)
	if !ok {
		return eris.Wrapf(errNotFound, "product %s", name)
	}
	respondJSON(w, http.StatusOK, product)
	return nil
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	name, err := productParam(r)
	if err != nil {
		return err
	}
	if !sess.RemoveProduct(name) {
		return eris.Wrapf(errNotFound, "product %s", name)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// PUT /sessions/{id}/products/{product}/pages
// Body: {"document": 0, "page": 2, "markdown": "..."}
func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	name, err := productParam(r)
	if err != nil {
		return err
	}
	product, ok := sess.Product(name)
	if !ok {
		return eris.Wrapf(errNotFound, "product %s", name)
	}

	var body struct {
		Document int    `json:"document"`
		Page     int    `json:"page"`
		Markdown string `json:"markdown"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	if err := pipeline.UpdatePage(product, body.Document, body.Page, body.Markdown); err != nil {
		return eris.Wrap(errBadRequest, err.Error())
	}
	s.persistProduct(r, product)

	respondJSON(w, http.StatusOK, product)
	return nil
}

func productParam(r *http.Request) (string, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "product"))
	if err != nil || name == "" {
		return "", eris.Wrap(errBadRequest, "invalid product name")
	}
	return name, nil
}
