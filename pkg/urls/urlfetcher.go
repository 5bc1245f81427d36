package urls

import (
	"context"
	"iter"

	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/httpclient"
)

// LinkFetcher yields candidate links found at a URL (HTML page, RSS feed, ...)
type LinkFetcher interface {
	Fetch(ctx context.Context, url string) (iter.Seq[domain.CandidateLink], error)
}

// Getter is the part of the HTTP client the link fetchers need
type Getter interface {
	Fetch(ctx context.Context, url string) (*httpclient.Response, error)
}
