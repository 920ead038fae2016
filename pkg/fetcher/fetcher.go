package fetcher

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

var (
	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrUnexpectedStatus is returned for responses outside the 2xx range.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrNotText is returned when the response is not a text document.
	ErrNotText = errors.New("response is not a text document")

	// ErrBodyTooLarge is returned when the body exceeds Options.MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrInvalidRequest is returned when no request can be built for the URL.
	ErrInvalidRequest = errors.New("invalid request")
)

// FetchError is the single failure type of HTTPFetcher.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %v (status %d)", e.URL, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent string
	Timeout   time.Duration

	// RequestsPerSecond caps the request rate across all hosts. Zero disables
	// the limiter.
	RequestsPerSecond float64
	Burst             int

	// Retries is the number of extra attempts after a network error or a 5xx
	// response. Zero means a failure is final.
	Retries      int
	RetryBackoff time.Duration

	MaxBodyBytes int64
	Logger       *slog.Logger
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		UserAgent:    "linkcrawl/1.0",
		Timeout:      15 * time.Second,
		RetryBackoff: 100 * time.Millisecond,
		MaxBodyBytes: 10 * 1024 * 1024,
	}
}

// HTTPFetcher issues GET requests and returns response bodies as text.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	limiter      *rate.Limiter
	retries      int
	backoff      time.Duration
	maxBodyBytes int64
	logger       *slog.Logger
}

// New builds an HTTPFetcher. Zero-valued options fall back to DefaultOptions.
func New(opts Options) (*HTTPFetcher, error) {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	f := &HTTPFetcher{
		client:       &http.Client{Transport: transport, Timeout: opts.Timeout, Jar: jar},
		userAgent:    opts.UserAgent,
		retries:      opts.Retries,
		backoff:      opts.RetryBackoff,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       opts.Logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = max(1, int(opts.RequestsPerSecond))
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return f, nil
}

// Fetch downloads u and returns its body decoded to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (string, error) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &FetchError{URL: u.String(), Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}

	for attempt := 0; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return "", &FetchError{URL: u.String(), Err: err}
			}
		}

		body, err := f.fetchOnce(ctx, u)
		if err == nil {
			return body, nil
		}
		if attempt >= f.retries || ctx.Err() != nil || !retryable(err) {
			return "", err
		}

		wait := f.backoff * time.Duration(1<<attempt)
		f.logger.Debug("retrying fetch", "url", u.String(), "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return "", &FetchError{URL: u.String(), Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &FetchError{URL: u.String(), Err: fmt.Errorf("%w: %w", ErrInvalidRequest, err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: u.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return "", &FetchError{URL: u.String(), StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextMIME(contentType) {
		_ = resp.Body.Close()
		return "", &FetchError{URL: u.String(), StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %s", ErrNotText, contentType)}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return "", &FetchError{URL: u.String(), StatusCode: resp.StatusCode, Err: err}
	}

	f.logger.Debug("fetched page", "url", u.String(), "status", resp.StatusCode, "bytes", len(body))
	return decodeText(body, contentType), nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl, err := deflateReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("deflate decode: %w", err)
		}
		reader = fl
		closers = append(closers, fl)
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, f.maxBodyBytes)
	}
	return body, nil
}

// deflateReader decodes HTTP deflate, which is zlib-wrapped. Some servers
// send a bare deflate stream instead, so the zlib header is checked first.
func deflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	if hdr, err := br.Peek(2); err == nil && isZlibHeader(hdr[0], hdr[1]) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// isZlibHeader checks CM=8 (deflate) and the FCHECK bits of RFC 1950.
func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// decodeText converts body to UTF-8 using the declared or sniffed charset.
// Undecodable input is returned as is.
func decodeText(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// isTextMIME accepts a missing content type, any text/* type and the XML
// flavours pages are commonly served as.
func isTextMIME(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/xhtml+xml", "application/xml":
		return true
	}
	return false
}

func retryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	if errors.Is(fe.Err, ErrNotText) || errors.Is(fe.Err, ErrBodyTooLarge) || errors.Is(fe.Err, ErrInvalidRequest) {
		return false
	}
	return fe.StatusCode == 0 || fe.StatusCode >= 500
}
