package urls

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"cyber-digest/pkg/domain"

	"github.com/mmcdole/gofeed"
)

// RSSParser handles RSS/Atom feed parsing operations
type RSSParser struct {
	client     Getter
	feedParser *gofeed.Parser
}

// NewRSSParser creates a new RSS parser fetching through client
func NewRSSParser(client Getter) *RSSParser {
	return &RSSParser{
		client:     client,
		feedParser: gofeed.NewParser(),
	}
}

// Fetch implements LinkFetcher - fetches and parses an RSS/Atom feed
func (p *RSSParser) Fetch(ctx context.Context, feedURL string) (iter.Seq[domain.CandidateLink], error) {
	resp, err := p.client.Fetch(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	feed, err := p.feedParser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed: %w", err)
	}

	if feed == nil || len(feed.Items) == 0 {
		return nil, fmt.Errorf("feed contains no items")
	}

	links := make([]domain.CandidateLink, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		links = append(links, domain.CandidateLink{
			Title:   strings.TrimSpace(item.Title),
			RawHref: item.Link,
		})
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("no valid URLs found in feed items")
	}

	return slices.Values(links), nil
}
