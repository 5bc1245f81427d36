package dedup

import (
	"context"
	"fmt"

	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/logger"
)

// RecordStore is the slice of db.Store the deduplicator needs
type RecordStore interface {
	Contains(ctx context.Context, url string) (bool, error)
	Record(ctx context.Context, rec domain.Record) (bool, error)
}

// Deduplicator combines the in-run SeenSet with the persistent store.
// The store's uniqueness constraint is authoritative; the set only keeps
// two links to the same URL in one run from both being followed.
type Deduplicator struct {
	seen   *SeenSet
	store  RecordStore
	logger logger.Logger
}

// New creates a deduplicator with a fresh in-run set
func New(store RecordStore, log logger.Logger) *Deduplicator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Deduplicator{seen: NewSeenSet(), store: store, logger: log}
}

// Contains reports whether url is known to this run or any earlier one.
// It satisfies urls.Membership.
func (d *Deduplicator) Contains(ctx context.Context, url string) (bool, error) {
	if d.seen.Has(url) {
		return true, nil
	}
	if d.store == nil {
		return false, nil
	}
	found, err := d.store.Contains(ctx, url)
	if err != nil {
		return false, fmt.Errorf("store lookup: %w", err)
	}
	return found, nil
}

// IsNew reports whether url is in neither the run set nor the store
func (d *Deduplicator) IsNew(ctx context.Context, url string) (bool, error) {
	known, err := d.Contains(ctx, url)
	if err != nil {
		return false, err
	}
	return !known, nil
}

// Claim marks url as taken by the caller. It returns false when url was
// already claimed in this run or is present in the store. Of several
// goroutines claiming the same new URL exactly one wins.
func (d *Deduplicator) Claim(ctx context.Context, url string) (bool, error) {
	if d.seen.Has(url) {
		return false, nil
	}
	if d.store != nil {
		found, err := d.store.Contains(ctx, url)
		if err != nil {
			return false, fmt.Errorf("store lookup: %w", err)
		}
		if found {
			return false, nil
		}
	}
	return d.seen.Add(url), nil
}

// Record persists rec. A URL already in the store is logged and reported as
// inserted=false; that is not an error.
func (d *Deduplicator) Record(ctx context.Context, rec domain.Record) (bool, error) {
	d.seen.Add(rec.URL)
	if d.store == nil {
		return true, nil
	}

	inserted, err := d.store.Record(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("record %s: %w", rec.URL, err)
	}
	if !inserted {
		d.logger.Info("Article already recorded, skipping",
			logger.String("url", rec.URL),
			logger.String("category", rec.Category))
	}
	return inserted, nil
}

// Seen exposes the in-run set
func (d *Deduplicator) Seen() *SeenSet {
	return d.seen
}
