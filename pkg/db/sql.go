package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cyber-digest/pkg/domain"
)

// Dialect holds the statements that differ between SQL backends
type Dialect struct {
	Name     string
	Schema   string
	Insert   string
	Contains string
	Prune    string
	All      string
}

// SQLiteDialect matches the original articles.db layout
var SQLiteDialect = Dialect{
	Name: "sqlite",
	Schema: `CREATE TABLE IF NOT EXISTS articles
  (date TEXT, category TEXT, title TEXT, url TEXT UNIQUE)`,
	Insert:   `INSERT OR IGNORE INTO articles (date, category, title, url) VALUES (?, ?, ?, ?)`,
	Contains: `SELECT 1 FROM articles WHERE url = ? LIMIT 1`,
	Prune:    `DELETE FROM articles WHERE date < ?`,
	All:      `SELECT date, category, title, url FROM articles ORDER BY date, url`,
}

// PostgresDialect uses ON CONFLICT for the duplicate no-op
var PostgresDialect = Dialect{
	Name: "postgres",
	Schema: `CREATE TABLE IF NOT EXISTS articles (
  date TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  url TEXT PRIMARY KEY
)`,
	Insert:   `INSERT INTO articles (date, category, title, url) VALUES ($1, $2, $3, $4) ON CONFLICT (url) DO NOTHING`,
	Contains: `SELECT 1 FROM articles WHERE url = $1 LIMIT 1`,
	Prune:    `DELETE FROM articles WHERE date < $1`,
	All:      `SELECT date, category, title, url FROM articles ORDER BY date, url`,
}

// SQLStore implements Store over database/sql
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open handle; call EnsureSchema before first use
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// EnsureSchema creates the articles table when missing
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
		return fmt.Errorf("create %s articles table: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLStore) Contains(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.Contains, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query url %q: %w", url, err)
	}
	return true, nil
}

func (s *SQLStore) Record(ctx context.Context, rec domain.Record) (bool, error) {
	if rec.URL == "" {
		return false, fmt.Errorf("record without url")
	}
	res, err := s.db.ExecContext(ctx, s.dialect.Insert, rec.Date, rec.Category, rec.Title, rec.URL)
	if err != nil {
		return false, fmt.Errorf("insert url=%q: %w", rec.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.Prune, cutoffDate(before))
	if err != nil {
		return 0, fmt.Errorf("prune articles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLStore) All(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.All)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(&rec.Date, &rec.Category, &rec.Title, &rec.URL); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Close closes the underlying handle
func (s *SQLStore) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}
