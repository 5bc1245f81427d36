// Package replication copies the article record from one store backend to
// another, e.g. a legacy articles.db into Postgres.
package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/logger"
)

const (
	DefaultBatchSize = 100
	DefaultWorkers   = 5
	progressEvery    = 1000
)

// Reader lists every record of the source store
type Reader interface {
	All(ctx context.Context) ([]domain.Record, error)
}

// Writer inserts records into the target store, skipping known URLs
type Writer interface {
	Record(ctx context.Context, rec domain.Record) (bool, error)
}

// Config wires the replication dependencies.
type Config struct {
	From      Reader
	To        Writer
	BatchSize int
	Workers   int
	Logger    logger.Logger
}

// Stats summarizes one replication
type Stats struct {
	Processed int
	Inserted  int
	// Skipped rows were already present in the target or had no url
	Skipped int
}

// Replicator copies records between stores. The target's url uniqueness is
// what makes re-running it safe.
type Replicator struct {
	from      Reader
	to        Writer
	batchSize int
	workers   int
	log       logger.Logger
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.From == nil {
		return nil, errors.New("source store is required")
	}
	if cfg.To == nil {
		return nil, errors.New("target store is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Replicator{
		from:      cfg.From,
		to:        cfg.To,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		log:       cfg.Logger,
	}, nil
}

// Replicate reads every record from the source and inserts the ones the
// target does not have yet. It stops at the first write error.
func (r *Replicator) Replicate(ctx context.Context) (Stats, error) {
	records, err := r.from.All(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("read source records: %w", err)
	}

	r.log.Info("Loaded source records, processing in batches",
		logger.Int("records", len(records)),
		logger.Int("batch_size", r.batchSize))

	stats, err := r.processBatches(ctx, records)
	if err != nil {
		return stats, err
	}

	r.log.Info("Replication complete",
		logger.Int("processed", stats.Processed),
		logger.Int("inserted", stats.Inserted),
		logger.Int("skipped", stats.Skipped))
	return stats, nil
}

type batchJob struct {
	batch      []domain.Record
	start, end int
}

type batchResult struct {
	processed int
	inserted  int
	err       error
}

// processBatches fans batches out to the worker pool and fails fast on error
func (r *Replicator) processBatches(ctx context.Context, records []domain.Record) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numBatches := (len(records) + r.batchSize - 1) / r.batchSize
	jobs := make(chan batchJob, numBatches)
	results := make(chan batchResult, numBatches)

	for start := 0; start < len(records); start += r.batchSize {
		end := min(start+r.batchSize, len(records))
		jobs <- batchJob{batch: records[start:end], start: start, end: end}
	}
	close(jobs)

	var wg sync.WaitGroup
	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					results <- batchResult{err: ctx.Err()}
					continue
				}
				inserted, err := r.processBatch(ctx, job)
				results <- batchResult{processed: len(job.batch), inserted: inserted, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var stats Stats
	lastLogged := 0
	for result := range results {
		if result.err != nil {
			return stats, result.err
		}
		stats.Processed += result.processed
		stats.Inserted += result.inserted
		stats.Skipped += result.processed - result.inserted

		if stats.Processed-lastLogged >= progressEvery {
			lastLogged = stats.Processed
			r.log.Info("Replication progress",
				logger.Int("processed", stats.Processed),
				logger.Int("total", len(records)),
				logger.Int("inserted", stats.Inserted))
		}
	}
	return stats, nil
}

// processBatch writes one batch and returns how many rows were new
func (r *Replicator) processBatch(ctx context.Context, job batchJob) (int, error) {
	inserted := 0
	for _, rec := range job.batch {
		if rec.URL == "" {
			continue
		}
		ok, err := r.to.Record(ctx, rec)
		if err != nil {
			return inserted, fmt.Errorf("insert batch [%d:%d] url=%q: %w", job.start, job.end, rec.URL, err)
		}
		if ok {
			inserted++
		}
	}
	r.log.Debug("Batch replicated",
		logger.Int("start", job.start),
		logger.Int("end", job.end),
		logger.Int("inserted", inserted))
	return inserted, nil
}
