package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cyber-digest/pkg/content"
	"cyber-digest/pkg/digest"
	"cyber-digest/pkg/domain"
)

// NewsAPIEndpoint is the "everything" search endpoint
const NewsAPIEndpoint = "https://newsapi.org/v2/everything"

// NewsAPI lists aggregated news articles matching a query
type NewsAPI struct {
	client   Getter
	apiKey   string
	query    string
	endpoint string
}

// NewNewsAPI creates the news feed for query; an empty key disables it
func NewNewsAPI(client Getter, apiKey, query string) *NewsAPI {
	if query == "" {
		query = "cybersecurity"
	}
	return &NewsAPI{client: client, apiKey: apiKey, query: query, endpoint: NewsAPIEndpoint}
}

// WithEndpoint points the feed at another base URL
func (n *NewsAPI) WithEndpoint(endpoint string) *NewsAPI {
	n.endpoint = endpoint
	return n
}

func (n *NewsAPI) Name() string { return "Top News" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (n *NewsAPI) Fetch(ctx context.Context, window domain.DateWindow) ([]digest.Entry, error) {
	if n.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	q := url.Values{}
	q.Set("q", n.query)
	q.Set("from", window.Start.UTC().Format("2006-01-02T15:04:05"))
	q.Set("to", window.End.UTC().Format("2006-01-02T15:04:05"))
	q.Set("sortBy", "publishedAt")
	q.Set("language", "en")
	q.Set("pageSize", strconv.Itoa(MaxEntries))

	resp, err := n.client.FetchWithHeaders(ctx, n.endpoint+"?"+q.Encode(), http.Header{"X-Api-Key": {n.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("fetch newsapi: %w", err)
	}

	var body newsAPIResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}
	if body.Status != "" && body.Status != "ok" {
		return nil, fmt.Errorf("newsapi %s: %s", body.Code, body.Message)
	}

	entries := make([]digest.Entry, 0, len(body.Articles))
	for _, a := range body.Articles {
		title := strings.TrimSpace(a.Title)
		if title == "" || a.URL == "" || title == "[Removed]" {
			continue
		}
		if a.Source.Name != "" {
			title += " (" + a.Source.Name + ")"
		}
		entries = append(entries, digest.Entry{
			Title:   title,
			URL:     a.URL,
			Summary: content.Truncate(strings.TrimSpace(a.Description), 200),
		})
	}
	return entries, nil
}
