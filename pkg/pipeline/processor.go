package pipeline

import (
	"context"
	"fmt"
	"time"

	"cyber-digest/pkg/content"
	"cyber-digest/pkg/urls"
)

// Enrichment is what an article page yields beyond its link title
type Enrichment struct {
	PublishedAt time.Time
	Summary     string
}

// ArticleProcessor follows a candidate link to its page
type ArticleProcessor interface {
	// Process fetches url and extracts date and summary. On error the
	// article is kept without enrichment.
	Process(ctx context.Context, url string) (Enrichment, error)
}

// HTTPArticleProcessor implements ArticleProcessor by fetching the page and
// running the content extractors
type HTTPArticleProcessor struct {
	client urls.Getter
}

// NewHTTPArticleProcessor creates a processor fetching through client
func NewHTTPArticleProcessor(client urls.Getter) *HTTPArticleProcessor {
	return &HTTPArticleProcessor{client: client}
}

// Process fetches url and extracts date and summary independently
func (p *HTTPArticleProcessor) Process(ctx context.Context, url string) (Enrichment, error) {
	resp, err := p.client.Fetch(ctx, url)
	if err != nil {
		return Enrichment{Summary: content.NotAvailable}, fmt.Errorf("failed to fetch article: %w", err)
	}

	page, err := content.ParsePage(resp.Body, url)
	if err != nil {
		return Enrichment{Summary: content.NotAvailable}, err
	}

	var out Enrichment
	if published, ok := content.ExtractDate(page); ok {
		out.PublishedAt = published
	}
	out.Summary = content.ExtractSummary(page)
	return out, nil
}
