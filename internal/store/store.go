package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-compare/internal/config"
	"github.com/sells-group/policy-compare/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for products, question
// configuration, extraction results and analysis artifacts.
type Store interface {
	// Products
	SaveProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// Question configuration (single active set of categories + questions)
	SaveQuestionConfig(ctx context.Context, qc *model.QuestionConfig) error
	LoadQuestionConfig(ctx context.Context) (*model.QuestionConfig, error)

	// Extractions, stored as one snapshot per product
	SaveExtractions(ctx context.Context, productName string, extractions []model.Extraction) error
	LoadExtractions(ctx context.Context, productName string) ([]model.Extraction, error)
	ListExtractions(ctx context.Context) ([]model.Extraction, error)
	DeleteExtractions(ctx context.Context, productName string) error

	// Analyses
	SaveAnalysis(ctx context.Context, a *model.AnalysisResult) error
	GetAnalysis(ctx context.Context, id string) (*model.AnalysisResult, error)
	ListAnalyses(ctx context.Context, limit int) ([]model.AnalysisResult, error)
	DeleteAnalysis(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a Store for the configured driver and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}
