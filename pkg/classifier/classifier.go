// Package classifier assigns articles to keyword categories.
package classifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"cyber-digest/pkg/domain"
)

// MatchMode selects how a keyword must appear in the text
type MatchMode string

const (
	// MatchWord requires the keyword to start on a word boundary and end on one,
	// allowing a plural or verb ending ("breaches", "leaked"); "AI" does not match "said"
	MatchWord MatchMode = "word"
	// MatchContains accepts any case-insensitive substring occurrence
	MatchContains MatchMode = "contains"
)

var (
	ErrNoCategories = errors.New("classifier: no categories configured")
	ErrUnknownMode  = errors.New("classifier: unknown match mode")
)

// inflections are the endings word mode tolerates after a keyword
const inflections = `(?:s|es|ed|d|ing)?`

// term is one distinct lower-cased keyword and the categories that list it
type term struct {
	keyword    string
	boundary   *regexp.Regexp
	categories []int
}

// Classifier matches text against an ordered list of categories in a single
// pass over the input. It is immutable after construction and safe for
// concurrent use.
type Classifier struct {
	mode       MatchMode
	categories []domain.Category
	terms      []term
	matcher    *ahocorasick.Matcher
}

// New builds a classifier. Category order is the tie-break order.
func New(categories []domain.Category, mode MatchMode) (*Classifier, error) {
	if len(categories) == 0 {
		return nil, ErrNoCategories
	}
	switch mode {
	case "":
		mode = MatchWord
	case MatchWord, MatchContains:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	c := &Classifier{mode: mode, categories: categories}
	index := make(map[string]int)
	for ci, cat := range categories {
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			ti, ok := index[kw]
			if !ok {
				ti = len(c.terms)
				index[kw] = ti
				c.terms = append(c.terms, term{
					keyword:  kw,
					boundary: regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + inflections + `\b`),
				})
			}
			c.terms[ti].categories = append(c.terms[ti].categories, ci)
		}
	}

	if len(c.terms) > 0 {
		words := make([]string, len(c.terms))
		for i, t := range c.terms {
			words[i] = t.keyword
		}
		c.matcher = ahocorasick.NewStringMatcher(words)
	}
	return c, nil
}

// Classify returns the first category, in configured order, with a keyword
// present in any of texts. ok is false when nothing matches.
func (c *Classifier) Classify(texts ...string) (name string, ok bool) {
	if c.matcher == nil {
		return "", false
	}

	best := -1
	for _, text := range texts {
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		for _, hit := range c.matcher.Match([]byte(lower)) {
			t := c.terms[hit]
			if c.mode == MatchWord && !t.boundary.MatchString(lower) {
				continue
			}
			for _, ci := range t.categories {
				if best == -1 || ci < best {
					best = ci
				}
			}
		}
	}

	if best == -1 {
		return "", false
	}
	return c.categories[best].Name, true
}

// Categories returns the configured categories in order
func (c *Classifier) Categories() []domain.Category {
	return c.categories
}

// Mode returns the active match mode
func (c *Classifier) Mode() MatchMode {
	return c.mode
}
