// Package digest groups classified articles into the daily report.
package digest

import (
	"time"

	"cyber-digest/pkg/domain"
)

const (
	// Title heads every digest
	Title = "Daily Cybersecurity News"
	// NothingNewText is the body of a digest without articles
	NothingNewText = "No new articles today. Thanks for checking in with us."
)

// Item is one rendered article. Date and Summary are best-effort.
type Item struct {
	Title       string
	URL         string
	Source      string
	PublishedAt time.Time
	Summary     string
}

// HasDate reports whether a publication date is known
func (i Item) HasDate() bool {
	return !i.PublishedAt.IsZero()
}

// Section lists the articles of one non-empty category
type Section struct {
	Category string
	Image    string
	Items    []Item
}

// Entry is one line of a supplementary section
type Entry struct {
	Title   string
	URL     string
	Summary string
}

// Supplement is an extra section fed by a third-party API. When Failed is
// set the section renders its placeholder instead of entries.
type Supplement struct {
	Name    string
	Entries []Entry
	Failed  bool
}

// Placeholder is the text shown for a failed supplement
func (s Supplement) Placeholder() string {
	return "Failed to fetch " + s.Name + "."
}

// Document is the structured digest handed to the dispatcher
type Document struct {
	Title       string
	Date        time.Time
	Sections    []Section
	Supplements []Supplement
	// NothingNew marks the fixed placeholder document
	NothingNew bool
}

// Subject is the message subject line carrying the run date
func (d Document) Subject() string {
	return Title + " - " + d.Date.Format(domain.DateLayout)
}

// ArticleCount is the number of articles across all sections
func (d Document) ArticleCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Items)
	}
	return n
}

// Build groups articles by category, one section per non-empty category in
// the order of categories. Articles keep their relative order. Articles whose
// category is not configured are dropped. With nothing left the NothingNew
// document is returned.
func Build(date time.Time, categories []domain.Category, articles []domain.Article) Document {
	byCategory := make(map[string][]Item, len(categories))
	for _, a := range articles {
		if a.Category == "" {
			continue
		}
		byCategory[a.Category] = append(byCategory[a.Category], Item{
			Title:       a.Title,
			URL:         a.URL,
			Source:      a.Source,
			PublishedAt: a.PublishedAt,
			Summary:     a.Summary,
		})
	}

	doc := Document{Title: Title, Date: date}
	for _, cat := range categories {
		items := byCategory[cat.Name]
		if len(items) == 0 {
			continue
		}
		doc.Sections = append(doc.Sections, Section{Category: cat.Name, Image: cat.Image, Items: items})
	}

	if len(doc.Sections) == 0 {
		return NothingNew(date)
	}
	return doc
}

// NothingNew is the fixed placeholder document
func NothingNew(date time.Time) Document {
	return Document{Title: Title, Date: date, NothingNew: true}
}

// WithSupplements attaches supplementary sections. They never turn a
// NothingNew document into a regular one.
func (d Document) WithSupplements(supplements ...Supplement) Document {
	d.Supplements = append(append([]Supplement(nil), d.Supplements...), supplements...)
	return d
}
