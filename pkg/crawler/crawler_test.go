package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/linkcrawl/pkg/canon"
	"github.com/amosWeiskopf/linkcrawl/pkg/extractor"
	"github.com/amosWeiskopf/linkcrawl/pkg/fetcher"
	"github.com/amosWeiskopf/linkcrawl/pkg/frontier"
	"github.com/amosWeiskopf/linkcrawl/pkg/utils"
)

// lineExtractor treats every non-empty line of a page as one href.
type lineExtractor struct{}

func (lineExtractor) ExtractHrefs(page string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range strings.Split(page, "\n") {
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// fakeSite serves pages keyed by URL without fragment. Unknown pages are
// empty.
type fakeSite struct {
	pages map[string][]string

	mu    sync.Mutex
	calls map[string]int
}

func newFakeSite(pages map[string][]string) *fakeSite {
	return &fakeSite{pages: pages, calls: make(map[string]int)}
}

func (s *fakeSite) Fetch(_ context.Context, u *url.URL) (string, error) {
	page := *u
	page.Fragment = ""
	key := page.String()

	s.mu.Lock()
	s.calls[key]++
	s.mu.Unlock()

	return strings.Join(s.pages[key], "\n"), nil
}

func (s *fakeSite) callCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.calls))
	for k, v := range s.calls {
		out[k] = v
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStandard(t *testing.T, f PageFetcher, opts Options, seeds ...string) *Crawler[canon.Unified] {
	t.Helper()
	store, err := frontier.New[canon.Unified](canon.Standard{}, seeds)
	require.NoError(t, err)
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return New(store, f, lineExtractor{}, opts)
}

var smallGraph = map[string][]string{
	"https://a.test/":  {"/b", "/c", "http://b.test/"},
	"https://a.test/b": {"/c", "/d#frag", "https://a.test/b"},
	"https://a.test/c": {"/"},
	"https://a.test/d": nil,
	"http://b.test/":   {"https://a.test/b", "HTTP://B.TEST/"},
}

func TestCrawlReachesClosure(t *testing.T) {
	site := newFakeSite(smallGraph)
	c := newStandard(t, site, Options{MaxConcurrency: 2, StrategyName: canon.StrategyStandard}, "https://a.test/")

	result, err := c.Crawl(context.Background())
	require.NoError(t, err)

	want := []string{
		"https://a.test/",
		"https://a.test/b",
		"https://a.test/c",
		"https://a.test/d",
		"https://b.test/",
	}
	assert.Equal(t, want, result.Links)
	assert.Equal(t, 5, result.TotalLinks)
	assert.Equal(t, 5, result.PagesFetched)
	assert.Equal(t, canon.StrategyStandard, result.Strategy)
	assert.Equal(t, []string{"https://a.test/"}, result.Seeds)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
	assert.Zero(t, c.Store().Pending())

	for page, n := range site.callCounts() {
		assert.Equal(t, 1, n, "page %s fetched more than once", page)
	}
}

func TestCrawlIdentityStrategy(t *testing.T) {
	site := newFakeSite(smallGraph)
	store, err := frontier.New[canon.Exact](canon.Identity{}, []string{"https://a.test/"})
	require.NoError(t, err)
	c := New(store, site, lineExtractor{}, Options{Logger: quietLogger()})

	result, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://b.test/",
		"https://a.test/",
		"https://a.test/b",
		"https://a.test/c",
		"https://a.test/d#frag",
	}, result.Links)
}

func TestCrawlSameResultAtAnyConcurrency(t *testing.T) {
	var baseline []string
	for _, k := range []int{1, 2, 3, 8, 0} {
		t.Run(fmt.Sprintf("max=%d", k), func(t *testing.T) {
			c := newStandard(t, newFakeSite(smallGraph), Options{MaxConcurrency: k}, "https://a.test/", "http://b.test/")
			result, err := c.Crawl(context.Background())
			require.NoError(t, err)
			if baseline == nil {
				baseline = result.Links
				return
			}
			assert.Equal(t, baseline, result.Links)
		})
	}
}

func TestCrawlFetchesEachSeedOnce(t *testing.T) {
	seeds := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		seeds = append(seeds, fmt.Sprintf("https://s%d.test/", i))
	}
	// duplicates by identity
	seeds = append(seeds, "http://s0.test/", "https://s1.test/#top")

	for _, k := range []int{1, 4, 0} {
		t.Run(fmt.Sprintf("max=%d", k), func(t *testing.T) {
			site := newFakeSite(nil)
			c := newStandard(t, site, Options{MaxConcurrency: k}, seeds...)
			result, err := c.Crawl(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 20, result.TotalLinks)
			assert.Equal(t, 20, result.PagesFetched)
			calls := site.callCounts()
			assert.Len(t, calls, 20)
			for page, n := range calls {
				assert.Equal(t, 1, n, page)
			}
		})
	}
}

// slowFanOut links a root page to n leaves and records the highest number of
// simultaneous fetches.
type slowFanOut struct {
	n       int
	current atomic.Int32
	max     atomic.Int32
}

func (s *slowFanOut) Fetch(_ context.Context, u *url.URL) (string, error) {
	cur := s.current.Add(1)
	defer s.current.Add(-1)
	for {
		old := s.max.Load()
		if cur <= old || s.max.CompareAndSwap(old, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if u.Path != "/" {
		return "", nil
	}
	links := make([]string, s.n)
	for i := range links {
		links[i] = fmt.Sprintf("/p%d", i)
	}
	return strings.Join(links, "\n"), nil
}

func TestCrawlRespectsConcurrencyBound(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		wantPeak int
	}{
		{name: "sequential", max: 1, wantPeak: 1},
		{name: "bounded", max: 3, wantPeak: 3},
		{name: "unbounded", max: 0, wantPeak: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := &slowFanOut{n: 30}
			c := newStandard(t, site, Options{MaxConcurrency: tt.max}, "https://a.test/")

			result, err := c.Crawl(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 31, result.TotalLinks)
			assert.Equal(t, 31, result.PagesFetched)
			assert.Equal(t, tt.wantPeak, result.PeakInFlight)
			assert.LessOrEqual(t, int(site.max.Load()), tt.wantPeak)
		})
	}
}

func TestCrawlMalformedLinkAborts(t *testing.T) {
	site := newFakeSite(map[string][]string{
		"https://a.test/":  {"/b", "https://a.test/b#x", "http://[::1"},
		"https://a.test/b": {"/never"},
	})
	c := newStandard(t, site, Options{MaxConcurrency: 1}, "https://a.test/")

	result, err := c.Crawl(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)

	var malformed *utils.MalformedURLError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "http://[::1", malformed.Href)

	assert.Equal(t, []string{"https://a.test/", "https://a.test/b"}, c.Store().Links())
	assert.Equal(t, map[string]int{"https://a.test/": 1}, site.callCounts())
}

func TestCrawlSkipMalformed(t *testing.T) {
	site := newFakeSite(map[string][]string{
		"https://a.test/": {"/b", "http://[::1", "%zz", "/c"},
	})
	c := newStandard(t, site, Options{SkipMalformed: true}, "https://a.test/")

	result, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/", "https://a.test/b", "https://a.test/c"}, result.Links)
}

func TestCrawlFilter(t *testing.T) {
	site := newFakeSite(map[string][]string{
		"https://a.test/": {"mailto:someone@a.test", "ftp://files.a.test/x", "/b"},
	})
	c := newStandard(t, site, Options{Filter: SchemeFilter("http", "https")}, "https://a.test/")

	result, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/", "https://a.test/b"}, result.Links)
	assert.NotContains(t, site.callCounts(), "mailto:someone@a.test")
}

func TestCrawlFetchErrorAborts(t *testing.T) {
	errDown := errors.New("server down")
	var calls atomic.Int32
	f := FetcherFunc(func(_ context.Context, u *url.URL) (string, error) {
		calls.Add(1)
		switch u.Path {
		case "/":
			return "/ok\n/bad", nil
		case "/bad":
			return "", errDown
		}
		return "", nil
	})
	c := newStandard(t, f, Options{MaxConcurrency: 1}, "https://a.test/")

	result, err := c.Crawl(context.Background())
	assert.ErrorIs(t, err, errDown)
	assert.Nil(t, result)
	// LIFO: /bad is taken before /ok, and nothing is dispatched after it fails
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, c.Store().Pending())
}

func TestCrawlTaskPanic(t *testing.T) {
	f := FetcherFunc(func(_ context.Context, u *url.URL) (string, error) {
		if u.Path == "/boom" {
			panic("fetcher exploded")
		}
		return "/boom", nil
	})
	c := newStandard(t, f, Options{}, "https://a.test/")

	_, err := c.Crawl(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Contains(t, err.Error(), "fetcher exploded")
}

type explodingCanon struct{}

func (explodingCanon) Canonicalize(u *url.URL) canon.Exact {
	if u.Host == "boom.test" {
		panic("canonicalizer failure")
	}
	return canon.Exact(u.String())
}

func TestCrawlPoisonedStore(t *testing.T) {
	store, err := frontier.New[canon.Exact](explodingCanon{}, []string{"https://a.test/"})
	require.NoError(t, err)
	site := newFakeSite(map[string][]string{
		"https://a.test/": {"https://boom.test/"},
	})
	c := New(store, site, lineExtractor{}, Options{Logger: quietLogger()})

	_, err = c.Crawl(context.Background())
	require.Error(t, err)

	_, err = store.Offer(&url.URL{Scheme: "https", Host: "c.test", Path: "/"})
	assert.ErrorIs(t, err, frontier.ErrLockUnavailable)
	assert.Zero(t, store.Size())
	assert.Nil(t, store.Snapshot())

	// a second run fails on the first dispatch
	_, err = c.Crawl(context.Background())
	assert.ErrorIs(t, err, frontier.ErrLockUnavailable)
}

func TestCrawlProgress(t *testing.T) {
	var progress bytes.Buffer
	c := newStandard(t, newFakeSite(smallGraph), Options{MaxConcurrency: 3, Progress: &progress}, "https://a.test/")

	result, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("+", result.PagesFetched)+"\n", progress.String())
}

func TestCrawlProgressOnFailure(t *testing.T) {
	var progress bytes.Buffer
	site := newFakeSite(map[string][]string{
		"https://a.test/": {"%zz"},
	})
	c := newStandard(t, site, Options{Progress: &progress}, "https://a.test/")

	_, err := c.Crawl(context.Background())
	require.Error(t, err)
	assert.Equal(t, "\n", progress.String())
}

func TestCrawlCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	site := newFakeSite(smallGraph)
	c := newStandard(t, site, Options{}, "https://a.test/")
	_, err := c.Crawl(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, site.callCounts())
}

func TestCrawlCanceledMidRun(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	f := FetcherFunc(func(ctx context.Context, u *url.URL) (string, error) {
		if u.Path == "/" {
			return "/slow1\n/slow2", nil
		}
		once.Do(func() { close(started) })
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := newStandard(t, f, Options{MaxConcurrency: 2}, "https://a.test/")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Crawl(ctx)
		errc <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after cancellation")
	}
}

func TestCrawlHTTPSite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><body>
				<a href="/page1">Page 1</a>
				<a href="page2#section">Page 2</a>
				<a href="mailto:owner@a.test">mail</a>
			</body></html>`)
		case "/page1":
			fmt.Fprint(w, `<html><body><a href="/">Home</a><a href="/page2">Page 2</a></body></html>`)
		case "/page2":
			fmt.Fprint(w, `<html><body><p>No links here</p></body></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	f, err := fetcher.New(fetcher.Options{Timeout: 5 * time.Second, Logger: quietLogger()})
	require.NoError(t, err)
	x, err := extractor.New()
	require.NoError(t, err)

	store, err := frontier.New[canon.Exact](canon.Identity{}, []string{server.URL})
	require.NoError(t, err)
	c := New(store, f, x, Options{
		MaxConcurrency: 4,
		Filter:         SchemeFilter("http", "https"),
		Logger:         quietLogger(),
	})

	result, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		server.URL + "/",
		server.URL + "/page1",
		server.URL + "/page2",
		server.URL + "/page2#section",
	}, result.Links)
	assert.Equal(t, 4, result.PagesFetched)
}

func TestSchemeFilter(t *testing.T) {
	keep := SchemeFilter("http", "https")
	assert.True(t, keep(&url.URL{Scheme: "https", Host: "a.test"}))
	assert.True(t, keep(&url.URL{Scheme: "http", Host: "a.test"}))
	assert.False(t, keep(&url.URL{Scheme: "mailto", Opaque: "x@a.test"}))
}
