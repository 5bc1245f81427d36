// Package digestservice runs one complete digest: prune, crawl, supplementary
// feeds, render and delivery.
package digestservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cyber-digest/pkg/dedup"
	"cyber-digest/pkg/digest"
	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/feeds"
	"cyber-digest/pkg/logger"
	"cyber-digest/pkg/metrics"
	"cyber-digest/pkg/pipeline"

	"github.com/google/uuid"
)

// Process exit codes
const (
	ExitOK             = 0
	ExitSetup          = 1
	ExitSourceFailed   = 2
	ExitDeliveryFailed = 3
)

// Store is the slice of db.Store a run needs
type Store interface {
	dedup.RecordStore
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close(ctx context.Context) error
}

// StoreOpener connects to the record store; every run opens its own and
// closes it before returning
type StoreOpener func(ctx context.Context) (Store, error)

// Sender delivers the rendered digest
type Sender interface {
	Configured() bool
	Send(ctx context.Context, subject, htmlBody string) error
}

// Config holds configuration for the service
type Config struct {
	OpenStore  StoreOpener
	Sender     Sender
	Clients    pipeline.ClientFactory
	Classifier pipeline.Classifier
	Categories []domain.Category
	Providers  []feeds.Provider

	// Pipeline carries sources and pool settings; Window and RecordDate are
	// set per run
	Pipeline pipeline.Config

	// RetentionDays of zero disables pruning
	RetentionDays int

	Metrics        *metrics.Metrics
	PushgatewayURL string
	Instance       string

	Logger logger.Logger
	// Now is the clock; nil uses time.Now
	Now func() time.Time
}

// Outcome is what one run produced
type Outcome struct {
	RunID     string
	Date      time.Time
	Document  digest.Document
	Report    pipeline.Report
	Delivered bool
	ExitCode  int
	Err       error
}

// Service runs digests. It is safe to call Run from a scheduler; every run
// gets a fresh pipeline and in-run seen set.
type Service struct {
	cfg Config
	log logger.Logger
	now func() time.Time
}

// NewService creates a Service
func NewService(config Config) (*Service, error) {
	if config.OpenStore == nil {
		return nil, errors.New("digestservice: store opener is required")
	}
	if config.Sender == nil {
		return nil, errors.New("digestservice: sender is required")
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Service{cfg: config, log: config.Logger, now: now}, nil
}

// Run executes one digest and reports its exit code. It never panics on
// source failures; those only lower the exit code to ExitSourceFailed.
func (s *Service) Run(ctx context.Context) Outcome {
	started := s.now()
	out := Outcome{RunID: uuid.NewString(), Date: started}
	log := s.log.With(logger.String("run_id", out.RunID))
	window := domain.WindowFor(started)

	log.Info("Digest run started",
		logger.String("window_start", window.Start.Format(time.RFC3339)),
		logger.String("window_end", window.End.Format(time.RFC3339)))

	defer func() {
		elapsed := s.now().Sub(started)
		s.observe(ctx, log, elapsed, out.Delivered)
		log.Info("Digest run finished",
			logger.Int("exit_code", out.ExitCode),
			logger.Bool("delivered", out.Delivered),
			logger.Duration("elapsed", elapsed))
	}()

	store, err := s.cfg.OpenStore(ctx)
	if err != nil {
		log.Error("Failed to open record store", logger.Error(err))
		out.ExitCode, out.Err = ExitSetup, err
		return out
	}
	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to close record store", logger.Error(err))
		}
	}()

	s.prune(ctx, log, store, started)

	result, err := s.crawl(ctx, log, store, started, window)
	if err != nil {
		log.Error("Crawl failed", logger.Error(err))
		out.ExitCode, out.Err = ExitSetup, err
		return out
	}
	out.Report = result.Report

	supplements := feeds.Collect(ctx, s.cfg.Providers, window, log)
	out.Document = digest.Build(started, s.cfg.Categories, result.Articles).WithSupplements(supplements...)

	if err := s.deliver(ctx, log, out.Document); err != nil {
		out.ExitCode, out.Err = ExitDeliveryFailed, err
		return out
	}
	out.Delivered = true

	if !out.Report.Healthy() {
		for _, f := range out.Report.Failed {
			log.Warn("Source failed during run",
				logger.String("source", f.Source),
				logger.String("stage", f.Stage),
				logger.Error(f.Err))
		}
		out.ExitCode = ExitSourceFailed
		return out
	}
	out.ExitCode = ExitOK
	return out
}

func (s *Service) prune(ctx context.Context, log logger.Logger, store Store, now time.Time) {
	if s.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.cfg.RetentionDays)
	deleted, err := store.Prune(ctx, cutoff)
	if err != nil {
		log.Warn("Failed to prune old records", logger.Error(err))
		return
	}
	if deleted > 0 {
		log.Info("Pruned old records",
			logger.Int("deleted", int(deleted)),
			logger.String("before", cutoff.Format(domain.DateLayout)))
	}
}

func (s *Service) crawl(ctx context.Context, log logger.Logger, store Store, now time.Time, window domain.DateWindow) (*pipeline.Result, error) {
	cfg := s.cfg.Pipeline
	cfg.Window = window
	cfg.RecordDate = now

	p, err := pipeline.New(cfg, pipeline.Deps{
		Clients:    s.cfg.Clients,
		Classifier: s.cfg.Classifier,
		Dedup:      dedup.New(store, log),
		Logger:     log,
		Metrics:    s.cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return p.Run(ctx)
}

func (s *Service) deliver(ctx context.Context, log logger.Logger, doc digest.Document) error {
	body, err := digest.RenderHTML(doc)
	if err != nil {
		log.Error("Failed to render digest", logger.Error(err))
		return err
	}

	if !s.cfg.Sender.Configured() {
		log.Warn("Mail delivery not configured, digest not sent",
			logger.String("subject", doc.Subject()))
		return errors.New("mail delivery not configured")
	}

	if err := s.cfg.Sender.Send(ctx, doc.Subject(), body); err != nil {
		log.Error("Failed to send digest", logger.String("subject", doc.Subject()), logger.Error(err))
		return err
	}
	log.Info("Digest sent",
		logger.String("subject", doc.Subject()),
		logger.Int("articles", doc.ArticleCount()))
	return nil
}

func (s *Service) observe(ctx context.Context, log logger.Logger, elapsed time.Duration, delivered bool) {
	if s.cfg.Metrics == nil {
		return
	}
	s.cfg.Metrics.ObserveRun(elapsed, delivered, s.now())
	if s.cfg.PushgatewayURL == "" {
		return
	}
	if err := s.cfg.Metrics.Push(ctx, s.cfg.PushgatewayURL, s.cfg.Instance); err != nil {
		log.Warn("Failed to push metrics", logger.Error(err))
	}
}
