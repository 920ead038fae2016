// Package crawler drains a frontier.Store with a bounded pool of
// fetch-and-expand tasks.
//
// The orchestrating loop alternates between filling the pool from the
// frontier and waiting for one task to finish. A run ends when the frontier is
// empty and nothing is in flight, or at the first task error.
package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amosWeiskopf/linkcrawl/internal/models"
	"github.com/amosWeiskopf/linkcrawl/pkg/canon"
	"github.com/amosWeiskopf/linkcrawl/pkg/frontier"
	"github.com/amosWeiskopf/linkcrawl/pkg/utils"
)

// Crawler discovers every link reachable from the seeds held by its store.
type Crawler[K canon.Key] struct {
	store     *frontier.Store[K]
	fetcher   PageFetcher
	extractor AnchorExtractor
	opts      Options
	logger    *slog.Logger

	fetched atomic.Int64
	peak    atomic.Int64
}

// New creates a crawler over store. The store must already hold the seeds.
func New[K canon.Key](store *frontier.Store[K], fetcher PageFetcher, extractor AnchorExtractor, opts Options) *Crawler[K] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConcurrency < 0 {
		opts.MaxConcurrency = 0
	}
	return &Crawler[K]{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
	}
}

// Store returns the crawl state. After a failed run it still holds whatever
// was discovered before the failure.
func (c *Crawler[K]) Store() *frontier.Store[K] {
	return c.store
}

// Crawl runs until no undiscovered work remains. Any task error, or
// cancellation of ctx, aborts the run; tasks already in flight are canceled
// and waited for before Crawl returns.
func (c *Crawler[K]) Crawl(ctx context.Context) (*models.CrawlResult, error) {
	result := &models.CrawlResult{
		RunID:          uuid.NewString(),
		Strategy:       c.opts.StrategyName,
		Seeds:          c.store.Links(),
		MaxConcurrency: c.opts.MaxConcurrency,
		StartedAt:      time.Now(),
	}
	c.logger.Info("crawl started",
		"run_id", result.RunID,
		"seeds", len(result.Seeds),
		"max_concurrency", c.opts.MaxConcurrency,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, taskCtx := errgroup.WithContext(runCtx)

	// Unbuffered: every task blocks until the loop below receives its result,
	// and the loop receives exactly once per dispatched task.
	done := make(chan error)

	var (
		inFlight int
		runErr   error
	)
	for {
		for runErr == nil && c.canDispatch(inFlight) {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			next, ok, err := c.store.TakeNext()
			if err != nil {
				runErr = fmt.Errorf("take next link: %w", err)
				break
			}
			if !ok {
				break
			}
			inFlight++
			c.observeInFlight(inFlight)
			g.Go(func() error {
				err := c.expand(taskCtx, next)
				done <- err
				return err
			})
		}
		if runErr != nil {
			cancel()
		}
		if inFlight == 0 {
			break
		}

		err := <-done
		inFlight--
		if err != nil {
			if runErr == nil {
				runErr = err
			}
			continue
		}
		if runErr == nil {
			c.fetched.Add(1)
			c.tick()
		}
	}
	_ = g.Wait()

	if c.opts.Progress != nil {
		_, _ = fmt.Fprintln(c.opts.Progress)
	}
	if runErr != nil {
		c.logger.Debug("crawl aborted", "run_id", result.RunID, "discovered", c.store.Size(), "error", runErr)
		return nil, runErr
	}

	result.FinishedAt = time.Now()
	result.Links = c.store.Links()
	result.TotalLinks = len(result.Links)
	result.PagesFetched = int(c.fetched.Load())
	result.PeakInFlight = int(c.peak.Load())

	c.logger.Info("crawl finished",
		"run_id", result.RunID,
		"links", result.TotalLinks,
		"pages", result.PagesFetched,
		"duration", result.Duration(),
	)
	return result, nil
}

func (c *Crawler[K]) canDispatch(inFlight int) bool {
	return c.opts.MaxConcurrency == 0 || inFlight < c.opts.MaxConcurrency
}

func (c *Crawler[K]) observeInFlight(n int) {
	if int64(n) > c.peak.Load() {
		c.peak.Store(int64(n))
	}
}

func (c *Crawler[K]) tick() {
	if c.opts.Progress != nil {
		_, _ = io.WriteString(c.opts.Progress, "+")
	}
}

// expand fetches page, resolves every href on it and offers the results to
// the store.
func (c *Crawler[K]) expand(ctx context.Context, page *url.URL) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("crawl task for %s panicked: %v", page, r)
		}
	}()

	body, err := c.fetcher.Fetch(ctx, page)
	if err != nil {
		return err
	}

	for href := range c.extractor.ExtractHrefs(body) {
		link, err := utils.Resolve(page, href)
		if err != nil {
			if c.opts.SkipMalformed {
				c.logger.Warn("skipping malformed link", "page", page.String(), "href", href, "error", err)
				continue
			}
			return err
		}
		if c.opts.Filter != nil && !c.opts.Filter(link) {
			c.logger.Debug("link filtered", "url", link.String())
			continue
		}
		added, err := c.store.Offer(link)
		if err != nil {
			return fmt.Errorf("offer %s: %w", link, err)
		}
		if added {
			c.logger.Debug("discovered link", "url", link.String(), "from", page.String())
		}
	}
	return nil
}

// SchemeFilter returns a filter accepting only URLs with one of schemes.
func SchemeFilter(schemes ...string) func(*url.URL) bool {
	allowed := make(map[string]struct{}, len(schemes))
	for _, s := range schemes {
		allowed[s] = struct{}{}
	}
	return func(u *url.URL) bool {
		_, ok := allowed[u.Scheme]
		return ok
	}
}
