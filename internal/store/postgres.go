package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-compare/internal/model"
)

// Pool abstracts the pgx connection pool so the store can be unit
// tested with pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_product":     `INSERT INTO products (id, name, data, status, ingested_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (name) DO UPDATE SET id = $1, data = $3, status = $4, ingested_at = $5`,
	"get_product":      `SELECT data FROM products WHERE id = $1`,
	"save_extractions": `INSERT INTO extractions (product, data, updated_at) VALUES ($1, $2, $3) ON CONFLICT (product) DO UPDATE SET data = $2, updated_at = $3`,
	"load_extractions": `SELECT data FROM extractions WHERE product = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	data        JSONB NOT NULL,
	status      TEXT NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS question_config (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS extractions (
	product    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	prompt     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Products

func (s *PostgresStore) SaveProduct(ctx context.Context, p *model.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.IngestedAt.IsZero() {
		p.IngestedAt = time.Now().UTC()
	}

	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal product")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO products (id, name, data, status, ingested_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE SET id = $1, data = $3, status = $4, ingested_at = $5`,
		p.ID, p.Name, data, string(p.Status), p.IngestedAt,
	)
	return eris.Wrapf(err, "postgres: save product %s", p.Name)
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM products WHERE id = $1`, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "product %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get product %s", id)
	}

	var p model.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal product")
	}
	return &p, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM products ORDER BY name ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		var p model.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete product %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "product %s", id)
	}
	return nil
}

// Question configuration

func (s *PostgresStore) SaveQuestionConfig(ctx context.Context, qc *model.QuestionConfig) error {
	data, err := json.Marshal(qc)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal question config")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO question_config (id, data, updated_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = $1, updated_at = $2`,
		data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save question config")
}

func (s *PostgresStore) LoadQuestionConfig(ctx context.Context) (*model.QuestionConfig, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM question_config WHERE id = 1`,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: load question config")
	}

	var qc model.QuestionConfig
	if err := json.Unmarshal(data, &qc); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal question config")
	}
	return &qc, nil
}

// Extractions

func (s *PostgresStore) SaveExtractions(ctx context.Context, productName string, extractions []model.Extraction) error {
	data, err := json.Marshal(extractions)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extractions")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO extractions (product, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (product) DO UPDATE SET data = $2, updated_at = $3`,
		productName, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save extractions for %s", productName)
}

func (s *PostgresStore) LoadExtractions(ctx context.Context, productName string) ([]model.Extraction, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM extractions WHERE product = $1`, productName,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: load extractions for %s", productName)
	}

	var extractions []model.Extraction
	if err := json.Unmarshal(data, &extractions); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal extractions")
	}
	return extractions, nil
}

func (s *PostgresStore) ListExtractions(ctx context.Context) ([]model.Extraction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM extractions ORDER BY product ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	defer rows.Close()

	var all []model.Extraction
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extractions")
		}
		var extractions []model.Extraction
		if err := json.Unmarshal(data, &extractions); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extractions")
		}
		all = append(all, extractions...)
	}
	return all, eris.Wrap(rows.Err(), "postgres: list extractions iterate")
}

func (s *PostgresStore) DeleteExtractions(ctx context.Context, productName string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM extractions WHERE product = $1`, productName)
	return eris.Wrapf(err, "postgres: delete extractions for %s", productName)
}

// Analyses

func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *model.AnalysisResult) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (id, prompt, data, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET prompt = $2, data = $3`,
		a.ID, a.Prompt, data, a.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save analysis %s", a.ID)
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*model.AnalysisResult, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM analyses WHERE id = $1`, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "analysis %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get analysis %s", id)
	}

	var a model.AnalysisResult
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal analysis")
	}
	return &a, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, limit int) ([]model.AnalysisResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM analyses ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var analyses []model.AnalysisResult
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		var a model.AnalysisResult
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal analysis")
		}
		analyses = append(analyses, a)
	}
	return analyses, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func (s *PostgresStore) DeleteAnalysis(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete analysis %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "analysis %s", id)
	}
	return nil
}
