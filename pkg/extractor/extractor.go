package extractor

import (
	"fmt"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extractor pulls raw href values out of HTML pages.
//
// By default it streams the page through the HTML tokenizer and reports the
// href of every <a> element. With a CSS selector it builds the document tree
// and reports the href of every matching element instead.
type Extractor struct {
	selector string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSelector makes the extractor report hrefs of elements matching sel,
// e.g. "a[href], area[href]". An empty selector keeps the default.
func WithSelector(sel string) Option {
	return func(e *Extractor) {
		e.selector = strings.TrimSpace(sel)
	}
}

// New creates a new Extractor instance
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector != "" {
		if _, err := cascadia.ParseGroup(e.selector); err != nil {
			return nil, fmt.Errorf("invalid link selector %q: %w", e.selector, err)
		}
	}
	return e, nil
}

// ExtractHrefs yields the literal href values in document order.
// The sequence is single-use.
func (e *Extractor) ExtractHrefs(page string) iter.Seq[string] {
	if e.selector != "" {
		return e.selectHrefs(page)
	}
	return tokenHrefs(page)
}

func tokenHrefs(page string) iter.Seq[string] {
	return func(yield func(string) bool) {
		z := html.NewTokenizer(strings.NewReader(page))
		for {
			switch z.Next() {
			case html.ErrorToken:
				// io.EOF for a string reader; the tokenizer never fails otherwise
				return
			case html.StartTagToken, html.SelfClosingTagToken:
				name, hasAttr := z.TagName()
				if !hasAttr || atom.Lookup(name) != atom.A {
					continue
				}
				if href, ok := hrefAttr(z); ok && !yield(href) {
					return
				}
			}
		}
	}
}

func hrefAttr(z *html.Tokenizer) (string, bool) {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return string(val), true
		}
		if !more {
			return "", false
		}
	}
}

func (e *Extractor) selectHrefs(page string) iter.Seq[string] {
	return func(yield func(string) bool) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
		if err != nil {
			return
		}
		doc.Find(e.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			return yield(href)
		})
	}
}
