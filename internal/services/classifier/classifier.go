// Package classifier maps free-text certification labels onto the closed
// tag taxonomy using the ordered keyword rule table.
package classifier

import (
	"context"
	"strings"
	"unicode"

	"qualitygrid/internal/cache"
	"qualitygrid/internal/domain"
	"qualitygrid/internal/ports"
	"qualitygrid/internal/taxonomy"
)

// unclassified is the cached marker for a text no rule matches.
const unclassified = "-"

type rule struct {
	tag           string
	keywords      []string
	wholeWord     bool
	caseSensitive bool
}

// Classifier is safe for concurrent use; it holds only compiled rules.
type Classifier struct {
	rules []rule
}

func New(tx *taxonomy.Taxonomy) *Classifier {
	c := &Classifier{}
	for _, r := range tx.Rules() {
		cr := rule{tag: r.Tag, wholeWord: r.WholeWord, caseSensitive: r.CaseSensitive}
		for _, k := range r.Keywords {
			switch {
			case r.CaseSensitive && r.WholeWord:
				cr.keywords = append(cr.keywords, words(k))
			case r.CaseSensitive:
				cr.keywords = append(cr.keywords, strings.Join(strings.Fields(k), " "))
			case r.WholeWord:
				cr.keywords = append(cr.keywords, tokenize(k))
			default:
				cr.keywords = append(cr.keywords, collapse(k))
			}
		}
		c.rules = append(c.rules, cr)
	}
	return c
}

// collapse upper-cases and folds runs of whitespace.
func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// tokenize upper-cases, splits on anything that is not a letter or digit
// and pads with spaces so a padded keyword only matches whole tokens.
func tokenize(s string) string {
	return words(strings.ToUpper(s))
}

// words is tokenize without case folding.
func words(s string) string {
	w := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(w, " ") + " "
}

type normalized struct {
	plain     string
	padded    string
	raw       string
	rawPadded string
}

func normalize(text string) normalized {
	return normalized{
		plain:     collapse(text),
		padded:    tokenize(text),
		raw:       strings.Join(strings.Fields(text), " "),
		rawPadded: words(text),
	}
}

func (r rule) matches(n normalized) bool {
	for _, k := range r.keywords {
		var hay string
		switch {
		case r.caseSensitive && r.wholeWord:
			hay = n.rawPadded
		case r.caseSensitive:
			hay = n.raw
		case r.wholeWord:
			hay = n.padded
		default:
			hay = n.plain
		}
		if !strings.Contains(hay, k) {
			return false
		}
	}
	return true
}

// Classify returns the tag of the first matching rule, or "" when no rule
// matches. It is a pure function of the text.
func (c *Classifier) Classify(text string) string {
	n := normalize(text)
	if n.plain == "" {
		return ""
	}
	for _, r := range c.rules {
		if r.matches(n) {
			return r.tag
		}
	}
	return ""
}

// ClassifyAll returns every distinct tag whose rule matches, in rule
// priority order. The first element always equals Classify(text).
func (c *Classifier) ClassifyAll(text string) []string {
	n := normalize(text)
	if n.plain == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, r := range c.rules {
		if seen[r.tag] || !r.matches(n) {
			continue
		}
		seen[r.tag] = true
		out = append(out, r.tag)
	}
	return out
}

// Cached fronts a Classifier with the validation cache under the
// classification category.
type Cached struct {
	inner *Classifier
	cache ports.Cache
}

func NewCached(inner *Classifier, c ports.Cache) *Cached {
	if c == nil {
		c = cache.Nop{}
	}
	return &Cached{inner: inner, cache: c}
}

func (c *Cached) Classify(ctx context.Context, text string) string {
	key := strings.Join(strings.Fields(text), " ")
	if key == "" {
		return ""
	}
	if v, ok := c.cache.Get(ctx, cache.CategoryClassification, key); ok {
		if v == unclassified {
			return ""
		}
		return v
	}
	tag := c.inner.Classify(text)
	stored := tag
	if stored == "" {
		stored = unclassified
	}
	c.cache.Set(ctx, cache.CategoryClassification, key, stored)
	return tag
}

// Certification returns a copy of cert carrying its classified tag.
// Unclassifiable certifications come back with a nil tag.
func (c *Cached) Certification(ctx context.Context, cert domain.Certification) domain.Certification {
	return cert.WithTag(c.Classify(ctx, cert.Text()))
}
