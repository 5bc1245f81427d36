package urls

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// UrlFilter defines the interface for URL filtering
type UrlFilter interface {
	ShouldKeep(ctx context.Context, url string) (bool, error)
}

// Membership answers whether a URL was already processed
type Membership interface {
	Contains(ctx context.Context, url string) (bool, error)
}

var (
	// AuthorSegments mark author listing pages
	AuthorSegments = []string{"author", "authors", "contributor", "contributors"}
	// ListingSegments mark category, topic and section listing pages
	ListingSegments = []string{"category", "categories", "topic", "topics", "section", "sections", "tag", "tags"}
)

// SchemeFilter keeps only http and https URLs (drops javascript:, mailto:, tel:, ...)
type SchemeFilter struct{}

// NewSchemeFilter creates a new scheme filter
func NewSchemeFilter() *SchemeFilter {
	return &SchemeFilter{}
}

// ShouldKeep returns false for non-web schemes
func (f *SchemeFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, nil
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != "", nil
}

// BaseURLFilter filters out base/root URLs
type BaseURLFilter struct{}

// NewBaseURLFilter creates a new base URL filter
func NewBaseURLFilter() *BaseURLFilter {
	return &BaseURLFilter{}
}

// ShouldKeep returns false if URL is a base/root URL
func (f *BaseURLFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, nil
	}

	// Check if path is empty or just "/"
	path := strings.Trim(parsed.Path, "/")
	return path != "", nil
}

// HostFilter keeps URLs on the source's own host or one of its subdomains
type HostFilter struct {
	host string
}

// NewHostFilter creates a filter for the host of baseURL, ignoring a leading "www."
func NewHostFilter(baseURL string) *HostFilter {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return &HostFilter{}
	}
	return &HostFilter{host: bareHost(parsed.Hostname())}
}

// ShouldKeep returns false for off-site links; an empty host keeps everything
func (f *HostFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	if f.host == "" {
		return true, nil
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, nil
	}
	host := bareHost(parsed.Hostname())
	return host == f.host || strings.HasSuffix(host, "."+f.host), nil
}

func bareHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// PathSegmentFilter drops URLs whose path contains one of the given segments
type PathSegmentFilter struct {
	segments map[string]struct{}
}

// NewPathSegmentFilter creates a filter rejecting any path containing one of segments
func NewPathSegmentFilter(segments ...string) *PathSegmentFilter {
	set := make(map[string]struct{}, len(segments))
	for _, s := range segments {
		set[strings.ToLower(strings.Trim(s, "/"))] = struct{}{}
	}
	return &PathSegmentFilter{segments: set}
}

// NewAuthorFilter rejects author listing pages
func NewAuthorFilter() *PathSegmentFilter {
	return NewPathSegmentFilter(AuthorSegments...)
}

// NewListingFilter rejects category/topic/section listing pages
func NewListingFilter() *PathSegmentFilter {
	return NewPathSegmentFilter(ListingSegments...)
}

// ShouldKeep returns false if any path segment is in the rejected set
func (f *PathSegmentFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, nil
	}
	for _, seg := range strings.Split(strings.ToLower(parsed.Path), "/") {
		if _, found := f.segments[seg]; found {
			return false, nil
		}
	}
	return true, nil
}

// ExclusionFilter drops URLs matching a site-specific rule set
type ExclusionFilter struct {
	rules *RuleSet
}

// NewExclusionFilter creates a filter from exclusion patterns
func NewExclusionFilter(patterns ...string) *ExclusionFilter {
	return &ExclusionFilter{rules: NewRuleSet(patterns...)}
}

// ShouldKeep returns false if any exclusion rule matches
func (f *ExclusionFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, nil
	}
	return !f.rules.Match(parsed), nil
}

// AlreadySeenFilter filters out URLs that a Membership already knows
type AlreadySeenFilter struct {
	seen Membership
}

// NewAlreadySeenFilter creates a new already-seen filter
func NewAlreadySeenFilter(seen Membership) *AlreadySeenFilter {
	return &AlreadySeenFilter{seen: seen}
}

// ShouldKeep returns false if URL is already in the seen set
func (f *AlreadySeenFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	found, err := f.seen.Contains(ctx, urlStr)
	if err != nil {
		return false, fmt.Errorf("check seen %s: %w", urlStr, err)
	}
	return !found, nil
}

// ApplyFilters runs filters in order and stops at the first rejection
func ApplyFilters(ctx context.Context, urlStr string, filters ...UrlFilter) (bool, error) {
	for _, f := range filters {
		keep, err := f.ShouldKeep(ctx, urlStr)
		if err != nil {
			return false, err
		}
		if !keep {
			return false, nil
		}
	}
	return true, nil
}
