package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cyber-digest/pkg/db"
	"cyber-digest/pkg/logger"
	"cyber-digest/pkg/replication"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		fromBackend = flag.String("from", string(db.BackendSQLite), "Source store backend (sqlite, postgres, mongo)")
		fromDSN     = flag.String("from-dsn", db.DefaultSQLitePath, "Source store DSN or path")
		toBackend   = flag.String("to", string(db.BackendPostgres), "Target store backend (sqlite, postgres, mongo)")
		toDSN       = flag.String("to-dsn", "", "Target store DSN or path")
		batchSize   = flag.Int("batch", replication.DefaultBatchSize, "Records per batch")
		workers     = flag.Int("workers", replication.DefaultWorkers, "Number of parallel batch writers")
		level       = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	log, err := logger.New(logger.Config{Level: *level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	if *toDSN == "" {
		log.Error("Target DSN is required (-to-dsn)")
		return 1
	}

	ctx := context.Background()

	from, err := db.Open(ctx, db.Backend(*fromBackend), *fromDSN)
	if err != nil {
		log.Error("Failed to open source store", logger.String("backend", *fromBackend), logger.Error(err))
		return 1
	}
	defer from.Close(ctx)

	to, err := db.Open(ctx, db.Backend(*toBackend), *toDSN)
	if err != nil {
		log.Error("Failed to open target store", logger.String("backend", *toBackend), logger.Error(err))
		return 1
	}
	defer to.Close(ctx)

	r, err := replication.NewReplicator(replication.Config{
		From:      from,
		To:        to,
		BatchSize: *batchSize,
		Workers:   *workers,
		Logger:    log,
	})
	if err != nil {
		log.Error("Failed to build replicator", logger.Error(err))
		return 1
	}

	start := time.Now()
	stats, err := r.Replicate(ctx)
	if err != nil {
		log.Error("Replication failed", logger.Int("processed", stats.Processed), logger.Error(err))
		return 1
	}
	log.Info("Done",
		logger.String("from", *fromBackend),
		logger.String("to", *toBackend),
		logger.Int("inserted", stats.Inserted),
		logger.Duration("elapsed", time.Since(start)))
	return 0
}
