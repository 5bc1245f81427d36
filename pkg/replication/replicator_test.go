package replication

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"cyber-digest/pkg/db"
	"cyber-digest/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceReader []domain.Record

func (s sliceReader) All(ctx context.Context) ([]domain.Record, error) { return s, nil }

type failingReader struct{}

func (failingReader) All(ctx context.Context) ([]domain.Record, error) {
	return nil, errors.New("connection refused")
}

type mapWriter struct {
	mu   sync.Mutex
	rows map[string]domain.Record
	fail string
}

func (w *mapWriter) Record(ctx context.Context, rec domain.Record) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.URL == w.fail {
		return false, errors.New("constraint violated")
	}
	if _, ok := w.rows[rec.URL]; ok {
		return false, nil
	}
	w.rows[rec.URL] = rec
	return true, nil
}

func records(n int) sliceReader {
	out := make(sliceReader, n)
	for i := range out {
		out[i] = domain.Record{
			Date:     "2024-06-03",
			Category: "Breach",
			Title:    fmt.Sprintf("Article %d", i),
			URL:      fmt.Sprintf("https://www.darkreading.com/a/%d", i),
		}
	}
	return out
}

func TestReplicate_CopiesAllAndSkipsExisting(t *testing.T) {
	src := records(250)
	target := &mapWriter{rows: map[string]domain.Record{src[0].URL: src[0], src[10].URL: src[10]}}

	r, err := NewReplicator(Config{From: src, To: target, BatchSize: 40, Workers: 3})
	require.NoError(t, err)

	stats, err := r.Replicate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 250, Inserted: 248, Skipped: 2}, stats)
	assert.Len(t, target.rows, 250)

	// a second pass inserts nothing
	stats, err = r.Replicate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Inserted)
	assert.Equal(t, 250, stats.Skipped)
}

func TestReplicate_SkipsRowsWithoutURL(t *testing.T) {
	src := append(records(2), domain.Record{Title: "no url"})
	target := &mapWriter{rows: map[string]domain.Record{}}

	r, err := NewReplicator(Config{From: src, To: target})
	require.NoError(t, err)

	stats, err := r.Replicate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
	assert.Equal(t, 1, stats.Skipped)
}

func TestReplicate_StopsOnWriteError(t *testing.T) {
	src := records(10)
	target := &mapWriter{rows: map[string]domain.Record{}, fail: src[3].URL}

	r, err := NewReplicator(Config{From: src, To: target, BatchSize: 5, Workers: 1})
	require.NoError(t, err)

	_, err = r.Replicate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violated")
}

func TestReplicate_SourceError(t *testing.T) {
	r, err := NewReplicator(Config{From: failingReader{}, To: &mapWriter{rows: map[string]domain.Record{}}})
	require.NoError(t, err)

	_, err = r.Replicate(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestReplicate_Empty(t *testing.T) {
	r, err := NewReplicator(Config{From: sliceReader{}, To: &mapWriter{rows: map[string]domain.Record{}}})
	require.NoError(t, err)

	stats, err := r.Replicate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestNewReplicator_RequiresStores(t *testing.T) {
	_, err := NewReplicator(Config{To: &mapWriter{}})
	assert.Error(t, err)
	_, err = NewReplicator(Config{From: sliceReader{}})
	assert.Error(t, err)
}

func TestReplicate_SQLiteToSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	from, err := db.OpenSQLite(ctx, filepath.Join(dir, "legacy.db"))
	require.NoError(t, err)
	defer from.Close(ctx)
	to, err := db.OpenSQLite(ctx, filepath.Join(dir, "new.db"))
	require.NoError(t, err)
	defer to.Close(ctx)

	for _, rec := range records(5) {
		_, err := from.Record(ctx, rec)
		require.NoError(t, err)
	}

	r, err := NewReplicator(Config{From: from, To: to, BatchSize: 2})
	require.NoError(t, err)
	stats, err := r.Replicate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Inserted)

	got, err := to.All(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

type undecodableReader struct{}

func (undecodableReader) All(ctx context.Context) ([]domain.Record, error) {
	return nil, fmt.Errorf("%w: 1 documents in articles", db.ErrUndecodable)
}

func TestReplicate_UndecodableSourceWritesNothing(t *testing.T) {
	target := &mapWriter{rows: map[string]domain.Record{}}
	r, err := NewReplicator(Config{From: undecodableReader{}, To: target})
	require.NoError(t, err)

	_, err = r.Replicate(context.Background())
	assert.ErrorIs(t, err, db.ErrUndecodable)
	assert.Empty(t, target.rows)
}
