package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/policy-compare/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create data dir")
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	data        TEXT NOT NULL,
	status      TEXT NOT NULL,
	ingested_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS question_config (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS extractions (
	product    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	prompt     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Products

func (s *SQLiteStore) SaveProduct(ctx context.Context, p *model.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.IngestedAt.IsZero() {
		p.IngestedAt = time.Now().UTC()
	}

	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal product")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, data, status, ingested_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET id = excluded.id, data = excluded.data,
		   status = excluded.status, ingested_at = excluded.ingested_at`,
		p.ID, p.Name, string(data), string(p.Status), p.IngestedAt,
	)
	return eris.Wrapf(err, "sqlite: save product %s", p.Name)
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM products WHERE id = ?`, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "product %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get product %s", id)
	}

	var p model.Product
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal product")
	}
	return &p, nil
}

func (s *SQLiteStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM products ORDER BY name ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		var p model.Product
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete product %s", id)
	}
	return checkRowsAffected(res, "product", id)
}

// Question configuration

func (s *SQLiteStore) SaveQuestionConfig(ctx context.Context, qc *model.QuestionConfig) error {
	data, err := json.Marshal(qc)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal question config")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO question_config (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save question config")
}

func (s *SQLiteStore) LoadQuestionConfig(ctx context.Context) (*model.QuestionConfig, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM question_config WHERE id = 1`,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load question config")
	}

	var qc model.QuestionConfig
	if err := json.Unmarshal([]byte(data), &qc); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal question config")
	}
	return &qc, nil
}

// Extractions

func (s *SQLiteStore) SaveExtractions(ctx context.Context, productName string, extractions []model.Extraction) error {
	data, err := json.Marshal(extractions)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extractions")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extractions (product, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (product) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		productName, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save extractions for %s", productName)
}

func (s *SQLiteStore) LoadExtractions(ctx context.Context, productName string) ([]model.Extraction, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM extractions WHERE product = ?`, productName,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load extractions for %s", productName)
	}

	var extractions []model.Extraction
	if err := json.Unmarshal([]byte(data), &extractions); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal extractions")
	}
	return extractions, nil
}

func (s *SQLiteStore) ListExtractions(ctx context.Context) ([]model.Extraction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM extractions ORDER BY product ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close()

	var all []model.Extraction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extractions")
		}
		var extractions []model.Extraction
		if err := json.Unmarshal([]byte(data), &extractions); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extractions")
		}
		all = append(all, extractions...)
	}
	return all, eris.Wrap(rows.Err(), "sqlite: list extractions iterate")
}

func (s *SQLiteStore) DeleteExtractions(ctx context.Context, productName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM extractions WHERE product = ?`, productName)
	return eris.Wrapf(err, "sqlite: delete extractions for %s", productName)
}

// Analyses

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *model.AnalysisResult) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, prompt, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET prompt = excluded.prompt, data = excluded.data`,
		a.ID, a.Prompt, string(data), a.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: save analysis %s", a.ID)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*model.AnalysisResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM analyses WHERE id = ?`, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "analysis %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", id)
	}

	var a model.AnalysisResult
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal analysis")
	}
	return &a, nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, limit int) ([]model.AnalysisResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM analyses ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var analyses []model.AnalysisResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		var a model.AnalysisResult
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal analysis")
		}
		analyses = append(analyses, a)
	}
	return analyses, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete analysis %s", id)
	}
	return checkRowsAffected(res, "analysis", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
