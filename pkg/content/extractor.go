package content

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"
)

const (
	// NotAvailable is the summary sentinel when no content could be found
	NotAvailable = "Summary not available."

	maxSummaryRunes    = 200
	summaryParagraphs  = 2
	minParagraphRunes  = 40
	maxDateCandidateSz = 80
	minPlausibleYear   = 1990
	maxFutureSkew      = 24 * time.Hour
)

var (
	digitRun  = regexp.MustCompile(`\d+`)
	clockOnly = regexp.MustCompile(`(?i)^\d{1,2}(:\d{2}){1,2}(\s*[ap]\.?m\.?)?$`)
	monthName = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\b`)
)

// dateSelectors are tried in order; the first candidate that parses wins
var dateSelectors = []string{
	"time[datetime]",
	"meta[property='article:published_time']",
	"meta[itemprop='datePublished']",
	"meta[name='pubdate']",
	"meta[name='date']",
	"[itemprop='datePublished']",
	"time",
	"span.date, span.time, span.published, p.date, p.time, p.published",
	"[class*='publish'], [class*='date'], [class*='time']",
}

// contentSelectors locate the main content region of an article page
var contentSelectors = []string{
	"[itemprop='articleBody']",
	"article .entry-content",
	".article-content",
	".entry-content",
	".post-content",
	".articleBody",
	"article",
	"main",
}

// dateLayouts are attempted before the lenient parser
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"Monday, January 2, 2006",
	"2 January 2006",
}

// Page is a parsed article page
type Page struct {
	URL  string
	body []byte
	doc  *goquery.Document
}

// ParsePage parses an article body fetched from pageURL
func ParsePage(body []byte, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Page{URL: pageURL, body: body, doc: doc}, nil
}

// ExtractDate returns the first publication timestamp found in common date markup
func ExtractDate(p *Page) (time.Time, bool) {
	if p == nil || p.doc == nil {
		return time.Time{}, false
	}

	for _, selector := range dateSelectors {
		var found time.Time
		p.doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			for _, raw := range dateCandidates(s) {
				if t, ok := ParseDate(raw); ok {
					found = t
					return false
				}
			}
			return true
		})
		if !found.IsZero() {
			return found, true
		}
	}
	return time.Time{}, false
}

// dateCandidates lists machine-readable attributes first, then visible text
func dateCandidates(s *goquery.Selection) []string {
	var out []string
	for _, attr := range []string{"datetime", "content"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	if text := strings.Join(strings.Fields(s.Text()), " "); text != "" && len(text) <= maxDateCandidateSz {
		out = append(out, text)
	}
	return out
}

// ParseDate tries the known layouts and then a lenient parser. Results
// before 1990 or more than a day ahead are rejected, and the lenient parser
// only sees text that names a day (not a bare year, clock time or number).
func ParseDate(raw string) (time.Time, bool) {
	return parseDateAt(raw, time.Now())
}

func parseDateAt(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, plausibleDate(t, now)
		}
	}
	if !hasDayComponent(raw) {
		return time.Time{}, false
	}
	if t, err := dateparse.ParseAny(raw); err == nil && plausibleDate(t, now) {
		return t, true
	}
	return time.Time{}, false
}

func plausibleDate(t, now time.Time) bool {
	return t.Year() >= minPlausibleYear && !t.After(now.Add(maxFutureSkew))
}

// hasDayComponent wants a month name plus one more number, or three numbers
func hasDayComponent(raw string) bool {
	if clockOnly.MatchString(raw) {
		return false
	}
	numbers := len(digitRun.FindAllString(raw, -1))
	if monthName.MatchString(raw) {
		return numbers >= 2
	}
	return numbers >= 3
}

// ExtractSummary joins the first paragraphs of the main content region and
// truncates the result. Pages without a usable region fall back to readability;
// when that also fails the NotAvailable sentinel is returned.
func ExtractSummary(p *Page) string {
	if p == nil || p.doc == nil {
		return NotAvailable
	}

	for _, selector := range contentSelectors {
		region := p.doc.Find(selector).First()
		if region.Length() == 0 {
			continue
		}
		if summary := leadingParagraphs(region); summary != "" {
			return Truncate(summary, maxSummaryRunes)
		}
	}

	if text := readabilityText(p); text != "" {
		return Truncate(text, maxSummaryRunes)
	}
	return NotAvailable
}

func leadingParagraphs(region *goquery.Selection) string {
	var parts []string
	region.Find("p").EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if len([]rune(text)) < minParagraphRunes {
			return true
		}
		parts = append(parts, text)
		return len(parts) < summaryParagraphs
	})
	return strings.Join(parts, " ")
}

func readabilityText(p *Page) string {
	pageURL, _ := url.Parse(p.URL)
	article, err := readability.FromReader(bytes.NewReader(p.body), pageURL)
	if err != nil {
		return ""
	}
	if excerpt := strings.TrimSpace(article.Excerpt); excerpt != "" {
		return strings.Join(strings.Fields(excerpt), " ")
	}
	return strings.Join(strings.Fields(article.TextContent), " ")
}

// Truncate cuts s to at most limit runes, appending "..." when shortened
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimRight(string(runes[:limit]), " ,;:") + "..."
}
