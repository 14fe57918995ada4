package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
)

// POST /sessions/{id}/extract
// Body: {"products": ["..."]} runs a subset; empty runs every product.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	if err := sess.CanExtract(); err != nil {
		return eris.Wrap(errConflict, err.Error())
	}

	var body struct {
		Products []string `json:"products"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
	}

	qc := sess.QuestionConfig()
	for _, product := range sess.Products() {
		if len(body.Products) > 0 && !slices.Contains(body.Products, product.Name) {
			continue
		}
		extractions, err := s.pipe.Extract(r.Context(), product, qc)
		if err != nil {
			return err
		}
		sess.SetExtractions(product.Name, extractions)
		s.persistExtractions(r, product.Name, sess.Extractions(product.Name))
	}

	respondJSON(w, http.StatusOK, sess.AllExtractions())
	return nil
}

func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, sess.AllExtractions())
	return nil
}

// POST /sessions/{id}/review
// Body: {"product": "..."}
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}

	var body struct {
		Product string `json:"product"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	if err := sess.CanReview(body.Product); err != nil {
		return eris.Wrap(errConflict, err.Error())
	}

	product, ok := sess.Product(body.Product)
	if !ok {
		return eris.Wrapf(errNotFound, "product %s", body.Product)
	}

	corrections, err := s.pipe.Review(r.Context(), product, sess.Extractions(product.Name))
	if err != nil {
		return err
	}
	sess.SetCorrections(product.Name, corrections)
	respondJSON(w, http.StatusOK, corrections)
	return nil
}

// POST /sessions/{id}/corrections/apply
// Body: {"product": "..."}
func (s *Server) handleApplyCorrections(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}

	var body struct {
		Product string `json:"product"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	if _, ok := sess.Product(body.Product); !ok {
		return eris.Wrapf(errNotFound, "product %s", body.Product)
	}

	applied := sess.ApplyCorrections(body.Product)
	s.persistExtractions(r, body.Product, sess.Extractions(body.Product))

	respondJSON(w, http.StatusOK, map[string]any{
		"applied":     applied,
		"extractions": sess.Extractions(body.Product),
	})
	return nil
}

func (s *Server) persistExtractions(r *http.Request, product string, extractions []model.Extraction) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveExtractions(r.Context(), product, extractions); err != nil {
		zap.L().Warn("persist extractions", zap.String("product", product), zap.Error(err))
	}
}

// GET /analysis-templates
func (s *Server) handleAnalysisTemplates(w http.ResponseWriter, r *http.Request) error {
	respondJSON(w, http.StatusOK, pipeline.AnalysisTemplates())
	return nil
}

// POST /sessions/{id}/analyze
// Body: {"prompt": "..."} or {"template_id": "coverage_heatmap"}
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	if err := sess.CanAnalyze(); err != nil {
		return eris.Wrap(errConflict, err.Error())
	}

	var body struct {
		Prompt     string `json:"prompt"`
		TemplateID string `json:"template_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}

	prompt := strings.TrimSpace(body.Prompt)
	if body.TemplateID != "" {
		template, ok := pipeline.AnalysisTemplateByID(body.TemplateID)
		if !ok {
			return eris.Wrapf(errNotFound, "analysis template %s", body.TemplateID)
		}
		prompt = template.Prompt
	}
	if prompt == "" {
		return eris.Wrap(errBadRequest, "prompt or template_id is required")
	}

	result, err := s.pipe.Analyze(r.Context(), sess.AllExtractions(), prompt)
	if err != nil {
		// A partial result is still worth returning; the Error field
		// carries what went missing.
		if errors.Is(err, model.ErrAnalysisPartial) && result != nil {
			sess.AddAnalysis(result)
			s.persistAnalysis(r, result)
			respondJSON(w, http.StatusMultiStatus, result)
			return nil
		}
		return err
	}

	sess.AddAnalysis(result)
	s.persistAnalysis(r, result)
	respondJSON(w, http.StatusOK, result)
	return nil
}

func (s *Server) persistAnalysis(r *http.Request, a *model.AnalysisResult) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveAnalysis(r.Context(), a); err != nil {
		zap.L().Warn("persist analysis", zap.String("id", a.ID), zap.Error(err))
	}
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, sess.Analyses())
	return nil
}

// GET /sessions/{id}/export streams the comparison workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	if err := sess.CanExport(); err != nil {
		return eris.Wrap(errConflict, err.Error())
	}

	dir := s.cfg.Data.ExportDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "server: create export dir")
	}
	filename := fmt.Sprintf("comparison-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	if err := pipeline.ExportXLSX(sess.AllExtractions(), sess.QuestionConfig(), path); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
	return nil
}
