package urls

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"strings"

	"cyber-digest/pkg/domain"

	"github.com/PuerkitoBio/goquery"
)

// LinkExtractor turns a page body into a lazy sequence of candidate links
type LinkExtractor func(body []byte) iter.Seq[domain.CandidateLink]

// HTMLFetcher handles fetching HTML pages and extracting links using a provided extractor
type HTMLFetcher struct {
	client    Getter
	extractor LinkExtractor
}

// NewHTMLFetcher creates a new HTML fetcher using ExtractLinks
func NewHTMLFetcher(client Getter) *HTMLFetcher {
	return NewHTMLFetcherWithExtractor(client, ExtractLinks)
}

// NewHTMLFetcherWithExtractor creates a new HTML fetcher with a specific extractor
func NewHTMLFetcherWithExtractor(client Getter, extractor LinkExtractor) *HTMLFetcher {
	return &HTMLFetcher{
		client:    client,
		extractor: extractor,
	}
}

// Fetch implements LinkFetcher - fetches the page and returns its anchors
func (f *HTMLFetcher) Fetch(ctx context.Context, pageURL string) (iter.Seq[domain.CandidateLink], error) {
	if f.extractor == nil {
		return nil, fmt.Errorf("extractor function is not set")
	}

	resp, err := f.client.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTML: %w", err)
	}
	return f.extractor(resp.Body), nil
}

// ExtractLinks yields (trimmed text, raw href) for every anchor with a non-empty
// href, in document order. Parsing happens on each iteration, so the sequence
// can be ranged over more than once. Unparseable input yields nothing.
func ExtractLinks(body []byte) iter.Seq[domain.CandidateLink] {
	return func(yield func(domain.CandidateLink) bool) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return
		}

		doc.Find("a[href]").EachWithBreak(func(i int, link *goquery.Selection) bool {
			href := strings.TrimSpace(link.AttrOr("href", ""))
			if href == "" {
				return true
			}

			title := collapseSpace(link.Text())
			if title == "" {
				// Fallback: image links and icon links often only carry a title attribute
				title = collapseSpace(link.AttrOr("title", ""))
			}

			return yield(domain.CandidateLink{Title: title, RawHref: href})
		})
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
