package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies why a request did not yield a usable response
type FailureKind string

const (
	FailureNetwork    FailureKind = "network"
	FailureTimeout    FailureKind = "timeout"
	FailureStatus     FailureKind = "status"
	FailureEmptyBody  FailureKind = "empty_body"
	FailureInvalidURL FailureKind = "invalid_url"
	FailureDNS        FailureKind = "dns"
	FailureCancelled  FailureKind = "cancelled"
)

// Failure is the typed error returned by every HTTPClient request
type Failure struct {
	Kind     FailureKind
	Method   string
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	switch {
	case f.Kind == FailureStatus:
		return fmt.Sprintf("%s %s: unexpected status code %d after %d attempt(s)", f.Method, f.URL, f.Status, f.Attempts)
	case f.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", f.Method, f.URL, f.Kind, f.Err)
	default:
		return fmt.Sprintf("%s %s: %s", f.Method, f.URL, f.Kind)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Transient reports whether retrying the same request may succeed
func (f *Failure) Transient() bool {
	switch f.Kind {
	case FailureNetwork, FailureTimeout:
		return true
	case FailureStatus:
		return isRetryableStatus(f.Status)
	}
	return false
}

// classifyTransportError maps an error from http.Client.Do into a Failure.
// A cancelled parent context is never transient.
func classifyTransportError(ctx context.Context, method, rawURL string, err error) *Failure {
	if ctx.Err() != nil {
		return &Failure{Kind: FailureCancelled, Method: method, URL: rawURL, Err: ctx.Err()}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Failure{Kind: FailureTimeout, Method: method, URL: rawURL, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		// unknown host is permanent for this run
		return &Failure{Kind: FailureDNS, Method: method, URL: rawURL, Err: err}
	}

	return &Failure{Kind: FailureNetwork, Method: method, URL: rawURL, Err: err}
}
