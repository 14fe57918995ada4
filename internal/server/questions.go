package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
)

func (s *Server) handleGetQuestions(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	qc := sess.QuestionConfig()
	if qc == nil {
		qc = &model.QuestionConfig{}
	}
	respondJSON(w, http.StatusOK, qc)
	return nil
}

// PUT /sessions/{id}/questions replaces the whole configuration.
func (s *Server) handlePutQuestions(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}

	var qc model.QuestionConfig
	if err := decodeJSON(r, &qc); err != nil {
		return err
	}
	qc.Categories = pipeline.NormalizeCategories(qc.Categories)
	if qc.Empty() {
		return eris.Wrap(errBadRequest, "at least one category is required")
	}
	for _, q := range qc.Questions {
		for _, cat := range q.AppliesTo {
			if !qc.HasCategory(cat) {
				return eris.Wrapf(errBadRequest, "question %s references unknown category %q", q.ID, cat)
			}
		}
	}

	sess.SetQuestionConfig(&qc)
	s.persistQuestions(r, &qc)
	respondJSON(w, http.StatusOK, &qc)
	return nil
}

// POST /sessions/{id}/questions/suggest runs category and question
// suggestion over the session's ingested documents.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	if err := sess.CanSuggest(); err != nil {
		return eris.Wrap(errConflict, err.Error())
	}

	qc, err := s.pipe.Suggest(r.Context(), sess.Products())
	if err != nil {
		return err
	}
	sess.SetQuestionConfig(qc)
	s.persistQuestions(r, qc)
	respondJSON(w, http.StatusOK, qc)
	return nil
}

// POST /sessions/{id}/questions/categories
// Body: {"name": "Water Damage"}
func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	normalized := pipeline.NormalizeCategories([]string{body.Name})
	if len(normalized) == 0 {
		return eris.Wrap(errBadRequest, "category name is required")
	}
	name := normalized[0]

	qc := questionConfigCopy(sess.QuestionConfig())
	if qc.HasCategory(name) {
		return eris.Wrapf(errConflict, "category %q already exists", name)
	}
	qc.Categories = append(qc.Categories, name)

	sess.SetQuestionConfig(qc)
	s.persistQuestions(r, qc)
	respondJSON(w, http.StatusOK, qc)
	return nil
}

// DELETE /sessions/{id}/questions/categories/{category}
// Questions left without any category are removed with it.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	name, err := url.PathUnescape(chi.URLParam(r, "category"))
	if err != nil || name == "" {
		return eris.Wrap(errBadRequest, "invalid category name")
	}

	qc := questionConfigCopy(sess.QuestionConfig())
	if !qc.HasCategory(name) {
		return eris.Wrapf(errNotFound, "category %q", name)
	}

	categories := qc.Categories[:0]
	for _, cat := range qc.Categories {
		if !strings.EqualFold(cat, name) {
			categories = append(categories, cat)
		}
	}
	qc.Categories = categories

	questions := qc.Questions[:0]
	for _, q := range qc.Questions {
		applies := make([]string, 0, len(q.AppliesTo))
		for _, cat := range q.AppliesTo {
			if !strings.EqualFold(cat, name) {
				applies = append(applies, cat)
			}
		}
		if len(applies) == 0 {
			continue
		}
		q.AppliesTo = applies
		questions = append(questions, q)
	}
	qc.Questions = questions

	sess.SetQuestionConfig(qc)
	s.persistQuestions(r, qc)
	respondJSON(w, http.StatusOK, qc)
	return nil
}

// POST /sessions/{id}/questions/items
// Body: {"text": "...", "applies_to_categories": ["..."]}
func (s *Server) handleAddQuestion(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}

	var body struct {
		Text      string   `json:"text"`
		AppliesTo []string `json:"applies_to_categories"`
	}
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	body.Text = strings.TrimSpace(body.Text)
	if body.Text == "" || len(body.AppliesTo) == 0 {
		return eris.Wrap(errBadRequest, "text and applies_to_categories are required")
	}

	qc := questionConfigCopy(sess.QuestionConfig())
	for _, cat := range body.AppliesTo {
		if !qc.HasCategory(cat) {
			return eris.Wrapf(errBadRequest, "unknown category %q", cat)
		}
	}

	question := model.Question{
		ID:        qc.NextQuestionID(),
		Text:      body.Text,
		AppliesTo: body.AppliesTo,
	}
	qc.Questions = append(qc.Questions, question)

	sess.SetQuestionConfig(qc)
	s.persistQuestions(r, qc)
	respondJSON(w, http.StatusCreated, question)
	return nil
}

// DELETE /sessions/{id}/questions/items/{questionID}
func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) error {
	sess, err := s.session(r)
	if err != nil {
		return err
	}
	id := chi.URLParam(r, "questionID")

	qc := questionConfigCopy(sess.QuestionConfig())
	if _, ok := qc.QuestionByID(id); !ok {
		return eris.Wrapf(errNotFound, "question %s", id)
	}

	questions := qc.Questions[:0]
	for _, q := range qc.Questions {
		if q.ID != id {
			questions = append(questions, q)
		}
	}
	qc.Questions = questions

	sess.SetQuestionConfig(qc)
	s.persistQuestions(r, qc)
	respondJSON(w, http.StatusOK, qc)
	return nil
}

func (s *Server) persistQuestions(r *http.Request, qc *model.QuestionConfig) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveQuestionConfig(r.Context(), qc); err != nil {
		zap.L().Warn("persist question config", zap.Error(err))
	}
}

// questionConfigCopy returns a mutable copy so handlers never edit the
// slices a session handed out.
func questionConfigCopy(qc *model.QuestionConfig) *model.QuestionConfig {
	out := &model.QuestionConfig{}
	if qc == nil {
		return out
	}
	out.Categories = append([]string(nil), qc.Categories...)
	out.Questions = make([]model.Question, len(qc.Questions))
	for i, q := range qc.Questions {
		q.AppliesTo = append([]string(nil), q.AppliesTo...)
		out.Questions[i] = q
	}
	return out
}
