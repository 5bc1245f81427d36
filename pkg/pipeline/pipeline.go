// Package pipeline crawls every source, screens and classifies candidate
// links, enriches the survivors and records them once all sources are done.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/logger"
	"cyber-digest/pkg/metrics"
	"cyber-digest/pkg/urls"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency    = 4
	DefaultArticleWorkers = 2
)

// SourceClient is the HTTP surface used against one source
type SourceClient interface {
	urls.Getter
	Probe(ctx context.Context, url string) error
}

// ClientFactory returns the client for a source (header profile per site)
type ClientFactory func(src domain.Source) SourceClient

// Classifier assigns a category from title and optional summary text
type Classifier interface {
	Classify(texts ...string) (string, bool)
}

// Deduplicator is the run's identity ledger
type Deduplicator interface {
	urls.Membership
	Claim(ctx context.Context, url string) (bool, error)
	Record(ctx context.Context, rec domain.Record) (bool, error)
}

// Config is the per-run pipeline settings
type Config struct {
	Sources        []domain.Source
	Concurrency    int
	ArticleWorkers int
	// SourceDelay spaces consecutive requests to the same source
	SourceDelay time.Duration
	// MatchSummary classifies on title and summary, enriching every candidate first
	MatchSummary bool
	Window       domain.DateWindow
	// RecordDate stamps the store rows
	RecordDate time.Time
}

// Deps are the collaborators the pipeline drives
type Deps struct {
	Clients    ClientFactory
	Classifier Classifier
	Dedup      Deduplicator
	// Processor builds the article processor for a source's client;
	// nil uses NewHTTPArticleProcessor
	Processor func(client urls.Getter) ArticleProcessor
	Logger    logger.Logger
	// Metrics is optional
	Metrics *metrics.Metrics
}

// Pipeline runs one digest crawl
type Pipeline struct {
	cfg  Config
	deps Deps
	log  logger.Logger
}

// New validates the wiring and fills defaults
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Clients == nil {
		return nil, errors.New("pipeline: client factory is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if deps.Dedup == nil {
		return nil, errors.New("pipeline: deduplicator is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ArticleWorkers <= 0 {
		cfg.ArticleWorkers = DefaultArticleWorkers
	}
	if cfg.RecordDate.IsZero() {
		cfg.RecordDate = time.Now()
	}
	if deps.Processor == nil {
		deps.Processor = func(client urls.Getter) ArticleProcessor { return NewHTTPArticleProcessor(client) }
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: deps.Logger}, nil
}

// Run crawls all sources on a bounded pool, then records the accepted
// articles in configured source order. A failing source is reported, never
// returned as an error; err is only set when ctx ends first.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	results := make([]sourceResult, len(p.cfg.Sources))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, src := range p.cfg.Sources {
		g.Go(func() error {
			results[i] = p.crawlSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}

	return p.record(ctx, results), nil
}

// record is the join point: everything after it is deterministic given the
// source order and the classifier's category order
func (p *Pipeline) record(ctx context.Context, results []sourceResult) *Result {
	out := &Result{Report: Report{Sources: len(results)}}
	date := p.cfg.RecordDate.Format(domain.DateLayout)

	for _, res := range results {
		out.Report.Candidates += res.candidates
		if res.failure != nil {
			out.Report.Failed = append(out.Report.Failed, *res.failure)
			if p.deps.Metrics != nil {
				p.deps.Metrics.SourcesFailed.Inc()
			}
			continue
		}

		for _, a := range res.articles {
			out.Report.Accepted++
			inserted, err := p.deps.Dedup.Record(ctx, domain.Record{
				Date:     date,
				Category: a.Category,
				Title:    a.Title,
				URL:      a.URL,
			})
			switch {
			case err != nil:
				// kept in the digest; the next run may list it again
				p.log.Error("Failed to record article",
					logger.String("url", a.URL),
					logger.Error(err))
			case !inserted:
				// another run recorded it between our claim and now
				out.Report.Duplicates++
				continue
			default:
				out.Report.Recorded++
			}

			if p.deps.Metrics != nil {
				p.deps.Metrics.ArticlesAccepted.WithLabelValues(a.Category).Inc()
			}
			out.Articles = append(out.Articles, a)
		}
	}

	p.log.Info("Crawl complete",
		logger.Int("sources", out.Report.Sources),
		logger.Int("failed", len(out.Report.Failed)),
		logger.Int("candidates", out.Report.Candidates),
		logger.Int("accepted", out.Report.Accepted),
		logger.Int("recorded", out.Report.Recorded),
		logger.Int("duplicates", out.Report.Duplicates))
	return out
}
