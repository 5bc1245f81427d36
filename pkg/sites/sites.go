// Package sites holds the built-in source profiles and keyword categories.
package sites

import (
	"slices"

	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/httpclient"
)

// GenericExclusions reject common non-article pages on any site
var GenericExclusions = []string{
	"/page/*",
	"*/search*",
	"/feed*",
	"/rss*",
	"/atom*",
	"/login*",
	"/register*",
	"/subscribe*",
	"/newsletter*",
	"/about*",
	"/contact*",
	"/privacy*",
	"/terms*",
	"/cookie*",
	"/advertise*",
	"/events*",
	"/webinars*",
}

// Profile is a built-in source and the header profile it needs
type Profile struct {
	Source     domain.Source
	ClientType httpclient.ClientType
}

var profiles = []Profile{
	{
		Source: domain.Source{
			Name:    "Dark Reading",
			BaseURL: "https://www.darkreading.com/",
			FeedURL: "https://www.darkreading.com/rss.xml",
			Exclusions: []string{
				"/program/*",
				"/resources*",
				"/white-papers*",
				"/reports*",
				"/keyword/*",
			},
		},
		ClientType: httpclient.BrowserClient,
	},
	{
		Source: domain.Source{
			Name:    "The Hacker News",
			BaseURL: "https://thehackernews.com/",
			FeedURL: "https://feeds.feedburner.com/TheHackersNews",
			Exclusions: []string{
				"/search/label/*",
				"/p/*",
				"*?m=1*",
			},
		},
		ClientType: httpclient.BrowserClient,
	},
	{
		Source: domain.Source{
			Name:    "CSO Online",
			BaseURL: "https://www.csoonline.com/",
			FeedURL: "https://www.csoonline.com/feed/",
			Exclusions: []string{
				"/video*",
				"/podcasts*",
				"/newsletters/*",
				"/profile/*",
				"*/resources/*",
			},
		},
		ClientType: httpclient.BrowserClient,
	},
	{
		Source: domain.Source{
			Name:    "Krebs on Security",
			BaseURL: "https://krebsonsecurity.com/",
			FeedURL: "https://krebsonsecurity.com/feed/",
			Exclusions: []string{
				"/wp-*",
				"/comments/*",
				"*replytocom=*",
			},
		},
		ClientType: httpclient.CloudflareClient,
	},
}

// Profiles returns the built-in profiles with generic exclusions merged in
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	for i, p := range profiles {
		p.Source.Exclusions = WithGenericExclusions(p.Source.Exclusions)
		out[i] = p
	}
	return out
}

// Sources returns the built-in sources in crawl order
func Sources() []domain.Source {
	ps := Profiles()
	out := make([]domain.Source, len(ps))
	for i, p := range ps {
		out[i] = p.Source
	}
	return out
}

// WithGenericExclusions appends GenericExclusions not already present
func WithGenericExclusions(exclusions []string) []string {
	out := slices.Clone(exclusions)
	for _, g := range GenericExclusions {
		if !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

// ClientTypeFor returns the header profile for a source name. Unknown
// sources get browser headers.
func ClientTypeFor(name string) httpclient.ClientType {
	for _, p := range profiles {
		if p.Source.Name == name {
			return p.ClientType
		}
	}
	return httpclient.BrowserClient
}

// Categories returns the built-in keyword categories in tie-break order
func Categories() []domain.Category {
	return []domain.Category{
		{Name: "Breach", Keywords: []string{"breach", "data breach", "leak", "stolen data"}, Image: "https://example.com/breach_image.jpg"},
		{Name: "Vulnerability", Keywords: []string{"vulnerability", "exploit", "zero-day", "cve", "patch"}, Image: "https://example.com/vulnerability_image.jpg"},
		{Name: "Compliance", Keywords: []string{"compliance", "regulation", "gdpr", "sec rule"}, Image: "https://example.com/compliance_image.jpg"},
		{Name: "Startup", Keywords: []string{"startup", "funding", "raises", "acquires"}, Image: "https://example.com/startup_image.jpg"},
		{Name: "AI", Keywords: []string{"AI", "artificial intelligence", "machine learning", "LLM"}, Image: "https://example.com/ai_image.jpg"},
	}
}
