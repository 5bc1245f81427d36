package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html/charset"
)

// ClientType represents the type of HTTP client configuration
type ClientType string

const (
	// BrowserClient uses browser-like headers to avoid 406 (Not Acceptable) errors
	// Used for sites that require browser-like User-Agent and headers
	BrowserClient ClientType = "browser"

	// CloudflareClient uses simple headers (like curl) to avoid 403 (Forbidden) errors
	// Used for Cloudflare-protected sites that block browser-like User-Agents
	CloudflareClient ClientType = "cloudflare"

	// APIClient asks for JSON and identifies the digest honestly
	APIClient ClientType = "api"
)

const (
	// DefaultTimeout bounds every single request
	DefaultTimeout = 30 * time.Second
	// DefaultMaxAttempts caps attempts per request, including the first one
	DefaultMaxAttempts = 5

	maxBodyBytes = 5 << 20
	maxRedirects = 10
)

// Options tunes timeouts and retry behavior
type Options struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// OnAttempt is called once per request attempt (metrics hook)
	OnAttempt func(method string)
}

// DefaultOptions returns the production settings
func DefaultOptions() Options {
	return Options{
		Timeout:        DefaultTimeout,
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Response is a fully read, UTF-8 decoded response
type Response struct {
	Status      int
	Body        []byte
	FinalURL    string
	ContentType string
	Attempts    int
}

// HTTPClient wraps an http.Client with header profile, timeout and retry policy
type HTTPClient struct {
	client     *http.Client
	clientType ClientType
	opts       Options
}

// NewClient creates a new HTTP client with the specified type
func NewClient(clientType ClientType, opts Options) *HTTPClient {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaults.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaults.MaxBackoff
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &HTTPClient{
		client:     client,
		clientType: clientType,
		opts:       opts,
	}
}

// Fetch performs a GET with retry and returns the decoded body.
// All failures are returned as *Failure.
func (c *HTTPClient) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	return c.FetchWithHeaders(ctx, rawURL, nil)
}

// FetchWithHeaders is Fetch with extra request headers (API keys)
func (c *HTTPClient) FetchWithHeaders(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	resp, err := c.doWithRetry(ctx, http.MethodGet, rawURL, header)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, &Failure{Kind: FailureEmptyBody, Method: http.MethodGet, URL: rawURL, Status: resp.Status, Attempts: resp.Attempts}
	}
	return resp, nil
}

// Probe sends a lightweight HEAD request and fails unless the site answers 200
func (c *HTTPClient) Probe(ctx context.Context, rawURL string) error {
	resp, err := c.doWithRetry(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return &Failure{Kind: FailureStatus, Method: http.MethodHead, URL: rawURL, Status: resp.Status, Attempts: resp.Attempts}
	}
	return nil
}

func (c *HTTPClient) doWithRetry(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	if u, err := url.Parse(rawURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &Failure{Kind: FailureInvalidURL, Method: method, URL: rawURL, Err: err}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.InitialBackoff
	eb.MaxInterval = c.opts.MaxBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.opts.MaxAttempts-1)), ctx)

	var (
		result   *Response
		attempts int
	)
	operation := func() error {
		attempts++
		if c.opts.OnAttempt != nil {
			c.opts.OnAttempt(method)
		}
		resp, err := c.do(ctx, method, rawURL, header)
		if err != nil {
			f := classifyTransportError(ctx, method, rawURL, err)
			if f.Transient() {
				return f
			}
			return backoff.Permanent(f)
		}
		if isRetryableStatus(resp.Status) {
			return &Failure{Kind: FailureStatus, Method: method, URL: rawURL, Status: resp.Status}
		}
		if resp.Status < 200 || resp.Status >= 300 {
			return backoff.Permanent(&Failure{Kind: FailureStatus, Method: method, URL: rawURL, Status: resp.Status})
		}
		result = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = classifyTransportError(ctx, method, rawURL, err)
		}
		f.Attempts = attempts
		return nil, f
	}
	result.Attempts = attempts
	return result, nil
}

func (c *HTTPClient) do(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		Status:      resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if method == http.MethodHead || resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return out, nil
	}

	body, err := readDecoded(resp.Body, out.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	out.Body = body
	return out, nil
}

// readDecoded reads at most maxBodyBytes and converts the body to UTF-8
func readDecoded(r io.Reader, contentType string) ([]byte, error) {
	limited := io.LimitReader(r, maxBodyBytes)
	decoded, err := charset.NewReader(limited, contentType)
	if err != nil {
		// unknown charset label, keep the raw bytes
		return io.ReadAll(limited)
	}
	return io.ReadAll(decoded)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// setHeaders sets the appropriate headers based on client type
func (c *HTTPClient) setHeaders(req *http.Request) {
	switch c.clientType {
	case BrowserClient:
		// Browser-like headers to avoid 406 (Not Acceptable) errors
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	case CloudflareClient:
		// Cloudflare lets curl-like clients through but blocks spoofed browsers
		req.Header.Set("User-Agent", "curl/8.7.1")

	case APIClient:
		req.Header.Set("User-Agent", "cyber-digest/1.0")
		req.Header.Set("Accept", "application/json")

	default:
		// Default: use Go's default User-Agent
	}
}
