package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-compare/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetProduct_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM products WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProduct(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProduct(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	p := testStoreProduct("acme-ho3")
	p.ID = "prod-1"
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM products WHERE id = \$1`).
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	fetched, err := s.GetProduct(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, "acme-ho3", fetched.Name)
	assert.Equal(t, 2, fetched.PageCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveProduct_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(name\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "acme-ho3", pgxmock.AnyArg(), "processed", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := testStoreProduct("acme-ho3")
	err := s.SaveProduct(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteProduct_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM products WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteProduct(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadQuestionConfig_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM question_config WHERE id = 1`).
		WillReturnError(pgx.ErrNoRows)

	qc, err := s.LoadQuestionConfig(context.Background())
	require.NoError(t, err)
	assert.Nil(t, qc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveQuestionConfig_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO question_config`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveQuestionConfig(context.Background(), &model.QuestionConfig{
		Categories: []string{"Fire Damage"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveExtractions_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(product\) DO UPDATE`).
		WithArgs("acme-ho3", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveExtractions(context.Background(), "acme-ho3", []model.Extraction{
		{ProductName: "acme-ho3", QuestionID: "q001", Answer: "$500,000"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadExtractions_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM extractions WHERE product = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	extractions, err := s.LoadExtractions(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, extractions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListExtractions_Flattens(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	acme, err := json.Marshal([]model.Extraction{
		{ProductName: "acme-ho3", QuestionID: "q001", Answer: "$500,000"},
		{ProductName: "acme-ho3", QuestionID: "q002", Answer: "$25,000"},
	})
	require.NoError(t, err)
	zeta, err := json.Marshal([]model.Extraction{
		{ProductName: "zeta-dp3", QuestionID: "q001", Answer: "Not Found"},
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM extractions ORDER BY product ASC`).
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(acme).AddRow(zeta))

	all, err := s.ListExtractions(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "zeta-dp3", all[2].ProductName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAnalysis_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO analyses`).
		WithArgs(pgxmock.AnyArg(), "Compare limits", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &model.AnalysisResult{Prompt: "Compare limits"}
	err := s.SaveAnalysis(context.Background(), a)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysis_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM analyses WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAnalysis(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
