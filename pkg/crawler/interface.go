package crawler

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"net/url"
)

// PageFetcher retrieves the text of a page.
// Any error aborts the crawl; retries are the fetcher's business.
type PageFetcher interface {
	Fetch(ctx context.Context, u *url.URL) (string, error)
}

// AnchorExtractor yields the raw href values of a page in document order.
type AnchorExtractor interface {
	ExtractHrefs(page string) iter.Seq[string]
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc func(ctx context.Context, u *url.URL) (string, error)

// Fetch calls f(ctx, u).
func (f FetcherFunc) Fetch(ctx context.Context, u *url.URL) (string, error) {
	return f(ctx, u)
}

// Options contains configuration for the crawler
type Options struct {
	// MaxConcurrency caps in-flight fetches. 0 or less means unbounded;
	// an explicit bound of 0 is not raised to 1.
	MaxConcurrency int
	SkipMalformed  bool                // Log and skip unresolvable hrefs instead of failing
	Filter         func(*url.URL) bool // Resolved links rejected here are never offered
	Progress       io.Writer           // Receives one '+' per fetched page, nil to disable
	Logger         *slog.Logger        // Defaults to slog.Default()
	StrategyName   string              // Reported in CrawlResult.Strategy
}
