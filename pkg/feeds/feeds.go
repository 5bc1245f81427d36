// Package feeds fetches the supplementary digest sections from third-party APIs.
package feeds

import (
	"context"
	"errors"
	"net/http"

	"cyber-digest/pkg/digest"
	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/httpclient"
	"cyber-digest/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// MaxEntries caps each supplementary section
const MaxEntries = 10

// ErrMissingAPIKey is returned by providers configured without a key
var ErrMissingAPIKey = errors.New("api key not configured")

// Getter is the slice of the HTTP client providers use
type Getter interface {
	FetchWithHeaders(ctx context.Context, url string, header http.Header) (*httpclient.Response, error)
}

// Provider produces the entries of one supplementary section
type Provider interface {
	Name() string
	Fetch(ctx context.Context, window domain.DateWindow) ([]digest.Entry, error)
}

// Collect queries every provider concurrently. A failing provider yields a
// Failed supplement; results keep provider order.
func Collect(ctx context.Context, providers []Provider, window domain.DateWindow, log logger.Logger) []digest.Supplement {
	out := make([]digest.Supplement, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			entries, err := p.Fetch(ctx, window)
			if err != nil {
				log.Warn("Supplementary feed failed",
					logger.String("feed", p.Name()),
					logger.Error(err))
				out[i] = digest.Supplement{Name: p.Name(), Failed: true}
				return nil
			}
			if len(entries) > MaxEntries {
				entries = entries[:MaxEntries]
			}
			out[i] = digest.Supplement{Name: p.Name(), Entries: entries}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
