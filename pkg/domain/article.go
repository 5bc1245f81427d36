package domain

import "time"

// Source is one configured news website crawled per run
type Source struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	// FeedURL is an optional RSS/Atom feed whose items are merged with the page's anchors
	FeedURL string `mapstructure:"feed_url"`
	// Exclusions are site-specific URL patterns (prefix or "*" wildcard substring)
	Exclusions []string `mapstructure:"exclusions"`
}

// Category maps a name to an ordered set of matching terms
type Category struct {
	Name     string   `mapstructure:"name"`
	Keywords []string `mapstructure:"keywords"`
	Image    string   `mapstructure:"image"`
}

// CandidateLink is an anchor extracted from a page, not yet validated as an article
type CandidateLink struct {
	Title   string
	RawHref string
}

// Article is a validated, deduplicated, classified unit of content
type Article struct {
	URL         string    `bson:"url"`
	Title       string    `bson:"title"`
	Category    string    `bson:"category"`
	Source      string    `bson:"source,omitempty"`
	PublishedAt time.Time `bson:"published_at,omitempty"`
	Summary     string    `bson:"summary,omitempty"`
}

// HasPublishedAt reports whether a publication date was extracted
func (a *Article) HasPublishedAt() bool {
	return !a.PublishedAt.IsZero()
}

// Record is one row of the persistent record store
type Record struct {
	Date     string `bson:"date"` // YYYY-MM-DD
	Category string `bson:"category"`
	Title    string `bson:"title"`
	URL      string `bson:"url"`
}

// DateLayout is the layout of Record.Date
const DateLayout = "2006-01-02"
