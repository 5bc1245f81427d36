package pipeline

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"cyber-digest/pkg/content"
	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/httpclient"
	"cyber-digest/pkg/logger"
	"cyber-digest/pkg/urls"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Crawl stages named in SourceFailure
const (
	StageProbe = "probe"
	StageIndex = "index"
	StagePanic = "panic"
)

type sourceResult struct {
	articles   []domain.Article
	candidates int
	failure    *SourceFailure
}

// crawlSource runs one source to completion. Every failure, panics included,
// stays inside the returned result.
func (p *Pipeline) crawlSource(ctx context.Context, src domain.Source) (res sourceResult) {
	log := p.log.With(logger.String("source", src.Name))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Source crawl panicked", logger.String("panic", fmt.Sprint(r)))
			res = sourceResult{failure: &SourceFailure{Source: src.Name, Stage: StagePanic, Err: fmt.Errorf("%v", r)}}
		}
	}()

	client := newPacedClient(p.deps.Clients(src), p.cfg.SourceDelay)

	if err := client.Probe(ctx, src.BaseURL); err != nil {
		log.Warn("Source is down, skipping", logger.String("url", src.BaseURL), logger.Error(err))
		return sourceResult{failure: &SourceFailure{Source: src.Name, Stage: StageProbe, Err: err}}
	}

	pageLinks, err := urls.NewHTMLFetcher(client).Fetch(ctx, src.BaseURL)
	if err != nil {
		log.Warn("Failed to fetch index page, skipping", logger.String("url", src.BaseURL), logger.Error(err))
		return sourceResult{failure: &SourceFailure{Source: src.Name, Stage: StageIndex, Err: err}}
	}

	sequences := []iter.Seq[domain.CandidateLink]{pageLinks}
	if src.FeedURL != "" {
		feedLinks, err := urls.NewRSSParser(client).Fetch(ctx, src.FeedURL)
		if err != nil {
			log.Warn("Feed unavailable, using page links only", logger.String("feed", src.FeedURL), logger.Error(err))
		} else {
			sequences = append(sequences, feedLinks)
		}
	}

	normalizer := urls.NewSourceNormalizer(src.BaseURL, src.Exclusions...)
	var pending []domain.Article
	for _, seq := range sequences {
		for link := range seq {
			res.candidates++
			if a, ok := p.screen(ctx, log, normalizer, src, link); ok {
				pending = append(pending, a)
			}
		}
	}

	res.articles = p.enrich(ctx, log, client, pending)
	log.Info("Source crawled",
		logger.Int("candidates", res.candidates),
		logger.Int("screened", len(pending)),
		logger.Int("accepted", len(res.articles)),
		logger.Duration("elapsed", time.Since(start)))
	return res
}

// screen normalizes, filters and claims one candidate. In title-only mode
// the title is classified first so unmatched links are never fetched.
func (p *Pipeline) screen(ctx context.Context, log logger.Logger, n *urls.Normalizer, src domain.Source, link domain.CandidateLink) (domain.Article, bool) {
	title := strings.TrimSpace(link.Title)
	if title == "" {
		return domain.Article{}, false
	}

	abs, ok, err := n.Accept(ctx, link.RawHref, src.BaseURL, p.deps.Dedup)
	if err != nil {
		log.Warn("Seen check failed, dropping link", logger.String("href", link.RawHref), logger.Error(err))
		return domain.Article{}, false
	}
	if !ok {
		return domain.Article{}, false
	}

	var category string
	if !p.cfg.MatchSummary {
		if category, ok = p.deps.Classifier.Classify(title); !ok {
			return domain.Article{}, false
		}
	}

	claimed, err := p.deps.Dedup.Claim(ctx, abs)
	if err != nil {
		log.Warn("Claim failed, dropping link", logger.String("url", abs), logger.Error(err))
		return domain.Article{}, false
	}
	if !claimed {
		return domain.Article{}, false
	}

	return domain.Article{URL: abs, Title: title, Category: category, Source: src.Name}, true
}

// enrich fetches every pending article on the per-source pool and keeps,
// in input order, those classified and inside the date window
func (p *Pipeline) enrich(ctx context.Context, log logger.Logger, client urls.Getter, pending []domain.Article) []domain.Article {
	processor := p.deps.Processor(client)
	kept := make([]*domain.Article, len(pending))

	var g errgroup.Group
	g.SetLimit(p.cfg.ArticleWorkers)
	for i := range pending {
		a := pending[i]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Article enrichment panicked",
						logger.String("url", a.URL),
						logger.String("panic", fmt.Sprint(r)))
				}
			}()

			enr, err := processor.Process(ctx, a.URL)
			if err != nil {
				log.Debug("Article enrichment failed", logger.String("url", a.URL), logger.Error(err))
			}
			a.PublishedAt = enr.PublishedAt
			a.Summary = enr.Summary

			if a.Category == "" {
				summary := a.Summary
				if summary == content.NotAvailable {
					summary = ""
				}
				name, ok := p.deps.Classifier.Classify(a.Title, summary)
				if !ok {
					return nil
				}
				a.Category = name
			}

			if a.HasPublishedAt() && !p.cfg.Window.Contains(a.PublishedAt) {
				log.Debug("Article outside date window",
					logger.String("url", a.URL),
					logger.String("published", a.PublishedAt.Format(time.RFC3339)))
				return nil
			}

			kept[i] = &a
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.Article, 0, len(pending))
	for _, a := range kept {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// pacedClient spaces every request to one source through a shared limiter
type pacedClient struct {
	next    SourceClient
	limiter *rate.Limiter
}

func newPacedClient(next SourceClient, delay time.Duration) *pacedClient {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &pacedClient{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (c *pacedClient) Fetch(ctx context.Context, url string) (*httpclient.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &httpclient.Failure{Kind: httpclient.FailureCancelled, Method: "GET", URL: url, Err: err}
	}
	return c.next.Fetch(ctx, url)
}

func (c *pacedClient) Probe(ctx context.Context, url string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &httpclient.Failure{Kind: httpclient.FailureCancelled, Method: "HEAD", URL: url, Err: err}
	}
	return c.next.Probe(ctx, url)
}
