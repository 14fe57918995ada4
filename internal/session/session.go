// Package session holds per-workflow state: ingested products, question
// config, extractions, corrections and analyses, with stage prerequisite
// checks so operations cannot run out of order.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/pipeline"
)

// Stage names the furthest workflow step the session has completed.
type Stage string

const (
	StageNew       Stage = "new"
	StageIngested  Stage = "ingested"
	StageConfig    Stage = "configured"
	StageExtracted Stage = "extracted"
	StageAnalyzed  Stage = "analyzed"
)

// Session is one comparison workflow instance.
type Session struct {
	mu          sync.RWMutex
	id          string
	createdAt   time.Time
	products    []*model.Product
	questions   *model.QuestionConfig
	extractions map[string][]model.Extraction
	corrections map[string][]model.Correction
	analyses    []*model.AnalysisResult
}

// New creates an empty session.
func New() *Session {
	return &Session{
		id:          uuid.NewString(),
		createdAt:   time.Now().UTC(),
		extractions: make(map[string][]model.Extraction),
		corrections: make(map[string][]model.Correction),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Stage reports the furthest completed workflow step.
func (s *Session) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case len(s.analyses) > 0:
		return StageAnalyzed
	case len(s.extractions) > 0:
		return StageExtracted
	case s.questions != nil && !s.questions.Empty():
		return StageConfig
	case len(s.products) > 0:
		return StageIngested
	default:
		return StageNew
	}
}

// AddProduct registers an ingested product. A product with the same name
// replaces the previous one and drops its stale extractions.
func (s *Session) AddProduct(p *model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.products {
		if existing.Name == p.Name {
			s.products[i] = p
			delete(s.extractions, p.Name)
			delete(s.corrections, p.Name)
			return
		}
	}
	s.products = append(s.products, p)
}

// Products returns the ingested products.
func (s *Session) Products() []*model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Product, len(s.products))
	copy(out, s.products)
	return out
}

// Product looks a product up by name.
func (s *Session) Product(name string) (*model.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// RemoveProduct drops a product and its extractions.
func (s *Session) RemoveProduct(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.products {
		if p.Name == name {
			s.products = append(s.products[:i], s.products[i+1:]...)
			delete(s.extractions, name)
			delete(s.corrections, name)
			return true
		}
	}
	return false
}

// SetQuestionConfig replaces the question taxonomy.
func (s *Session) SetQuestionConfig(cfg *model.QuestionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = cfg
}

// QuestionConfig returns the current taxonomy, or nil.
func (s *Session) QuestionConfig() *model.QuestionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.questions
}

// SetExtractions overlays extraction results for a product; re-extracted
// questions replace their previous answers.
func (s *Session) SetExtractions(product string, extractions []model.Extraction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractions[product] = pipeline.MergeExtractions(s.extractions[product], extractions)
}

// Extractions returns the extractions for one product.
func (s *Session) Extractions(product string) []model.Extraction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Extraction, len(s.extractions[product]))
	copy(out, s.extractions[product])
	return out
}

// AllExtractions returns every product's extractions flattened, in
// product name order.
func (s *Session) AllExtractions() []model.Extraction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.extractions {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []model.Extraction
	for _, name := range names {
		out = append(out, s.extractions[name]...)
	}
	return out
}

// SetCorrections stores review suggestions for a product without
// touching the extractions.
func (s *Session) SetCorrections(product string, corrections []model.Correction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrections[product] = corrections
}

// Corrections returns pending review suggestions for a product.
func (s *Session) Corrections(product string) []model.Correction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Correction, len(s.corrections[product]))
	copy(out, s.corrections[product])
	return out
}

// ApplyCorrections applies the pending suggestions for a product to its
// extractions and clears them. Idempotent: applying twice changes
// nothing further.
func (s *Session) ApplyCorrections(product string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.corrections[product]
	if len(pending) == 0 {
		return 0
	}
	s.extractions[product] = pipeline.ApplyCorrections(s.extractions[product], pending)
	delete(s.corrections, product)
	return len(pending)
}

// AddAnalysis appends an analysis result.
func (s *Session) AddAnalysis(a *model.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses = append(s.analyses, a)
}

// Analyses returns the analysis results, oldest first.
func (s *Session) Analyses() []*model.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.AnalysisResult, len(s.analyses))
	copy(out, s.analyses)
	return out
}

// CanSuggest reports whether taxonomy suggestion has its prerequisites.
func (s *Session) CanSuggest() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.products) == 0 {
		return eris.New("session: ingest at least one product before suggesting questions")
	}
	return nil
}

// CanExtract reports whether extraction has its prerequisites.
func (s *Session) CanExtract() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.products) == 0 {
		return eris.New("session: ingest at least one product before extracting")
	}
	if s.questions == nil || len(s.questions.Categories) == 0 {
		return eris.New("session: cannot extract before categories exist")
	}
	if len(s.questions.Questions) == 0 {
		return eris.New("session: cannot extract before questions exist")
	}
	return nil
}

// CanReview reports whether review has its prerequisites for a product.
func (s *Session) CanReview(product string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.extractions[product]) == 0 {
		return eris.Errorf("session: no extractions for product %q to review", product)
	}
	return nil
}

// CanAnalyze reports whether analysis has its prerequisites.
func (s *Session) CanAnalyze() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.extractions) == 0 {
		return eris.New("session: cannot analyze before extractions exist")
	}
	return nil
}

// CanExport reports whether export has its prerequisites.
func (s *Session) CanExport() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.extractions) == 0 {
		return eris.New("session: cannot export before extractions exist")
	}
	if s.questions == nil || s.questions.Empty() {
		return eris.New("session: cannot export without a question config")
	}
	return nil
}

// Registry tracks live sessions by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create makes and registers a new session.
func (r *Registry) Create() *Session {
	s := New()
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

// Get looks a session up by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes a session.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns all session ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
