package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"cyber-digest/pkg/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLStore(conn, PostgresDialect), mock
}

func TestPostgres_EnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS articles")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Record(t *testing.T) {
	store, mock := newMockStore(t)
	rec := domain.Record{Date: "2024-06-03", Category: "Vulnerability", Title: "RCE", URL: "https://example.com/rce"}

	insert := regexp.QuoteMeta(PostgresDialect.Insert)
	mock.ExpectExec(insert).
		WithArgs(rec.Date, rec.Category, rec.Title, rec.URL).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WithArgs(rec.Date, rec.Category, rec.Title, rec.URL).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := store.Record(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Record(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.Insert)).
		WillReturnError(errors.New("connection reset"))

	_, err := store.Record(context.Background(), domain.Record{Date: "2024-06-03", URL: "https://example.com/x"})
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgres_Contains(t *testing.T) {
	store, mock := newMockStore(t)
	query := regexp.QuoteMeta(PostgresDialect.Contains)

	mock.ExpectQuery(query).WithArgs("https://example.com/seen").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(query).WithArgs("https://example.com/new").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	found, err := store.Contains(context.Background(), "https://example.com/seen")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.Contains(context.Background(), "https://example.com/new")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PruneAndAll(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(PostgresDialect.Prune)).
		WithArgs("2023-12-06").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(regexp.QuoteMeta(PostgresDialect.All)).
		WillReturnRows(sqlmock.NewRows([]string{"date", "category", "title", "url"}).
			AddRow("2024-06-01", "AI", "LLM jailbreak", "https://example.com/llm").
			AddRow("2024-06-03", "Breach", "Retailer breach", "https://example.com/retail"))

	deleted, err := store.Prune(context.Background(), time.Date(2023, 12, 6, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	all, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{
		{Date: "2024-06-01", Category: "AI", Title: "LLM jailbreak", URL: "https://example.com/llm"},
		{Date: "2024-06-03", Category: "Breach", Title: "Retailer breach", URL: "https://example.com/retail"},
	}, all)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenPostgres_RequiresDSN(t *testing.T) {
	_, err := OpenPostgres(context.Background(), PostgresConfig{})
	assert.Error(t, err)
}
