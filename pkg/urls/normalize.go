package urls

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Normalize resolves href against baseURL and canonicalizes the result:
// lower-case scheme and host, no fragment, no utm_* tracking parameters.
// Empty and fragment-only hrefs resolve to the base page itself.
func Normalize(href, baseURL string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}

	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)

	if resolved.RawQuery != "" {
		q := resolved.Query()
		for key := range q {
			if strings.HasPrefix(strings.ToLower(key), "utm_") {
				q.Del(key)
			}
		}
		resolved.RawQuery = q.Encode()
	}
	return resolved.String(), nil
}

// Normalizer turns raw hrefs into accepted absolute article URLs
type Normalizer struct {
	filters []UrlFilter
}

// NewNormalizer builds the standard filter chain plus the given site exclusions
func NewNormalizer(exclusions ...string) *Normalizer {
	return NewNormalizerWithFilters(
		NewSchemeFilter(),
		NewBaseURLFilter(),
		NewAuthorFilter(),
		NewListingFilter(),
		NewExclusionFilter(exclusions...),
	)
}

// NewSourceNormalizer is NewNormalizer restricted to links on the source's own host
func NewSourceNormalizer(baseURL string, exclusions ...string) *Normalizer {
	return NewNormalizerWithFilters(
		NewSchemeFilter(),
		NewHostFilter(baseURL),
		NewBaseURLFilter(),
		NewAuthorFilter(),
		NewListingFilter(),
		NewExclusionFilter(exclusions...),
	)
}

// NewNormalizerWithFilters uses exactly the given filters
func NewNormalizerWithFilters(filters ...UrlFilter) *Normalizer {
	return &Normalizer{filters: filters}
}

// Accept resolves href against baseURL and returns the absolute URL when it
// survives every filter and is not in seen. It has no side effects: the caller
// claims accepted URLs. err is only set when seen could not be consulted.
func (n *Normalizer) Accept(ctx context.Context, href, baseURL string, seen Membership) (string, bool, error) {
	abs, err := Normalize(href, baseURL)
	if err != nil {
		return "", false, nil
	}

	keep, err := ApplyFilters(ctx, abs, n.filters...)
	if err != nil || !keep {
		return "", false, err
	}

	if seen != nil {
		keep, err = NewAlreadySeenFilter(seen).ShouldKeep(ctx, abs)
		if err != nil || !keep {
			return "", false, err
		}
	}
	return abs, true, nil
}
