package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrRelativeURL is returned by ParseURL for input without a scheme.
var ErrRelativeURL = errors.New("relative URL without a base")

// MalformedURLError reports an href that could not be turned into an
// absolute URL against the page it was found on.
type MalformedURLError struct {
	Base string
	Href string
	Err  error
}

func (e *MalformedURLError) Error() string {
	return fmt.Sprintf("malformed link %q on %s: %v", e.Href, e.Base, e.Err)
}

func (e *MalformedURLError) Unwrap() error {
	return e.Err
}

// ParseURL parses an absolute URL and normalizes it so that equivalent
// spellings serialize identically: scheme and host are lower-cased and a
// hierarchical URL with an empty path gets the root path.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, ErrRelativeURL
	}
	normalize(u)
	return u, nil
}

// Resolve turns href into an absolute URL. An href containing "://" is taken
// as already absolute and never resolved against base; anything else is a
// reference relative to base.
func Resolve(base *url.URL, href string) (*url.URL, error) {
	href = strings.TrimSpace(href)

	if strings.Contains(href, "://") {
		u, err := ParseURL(href)
		if err != nil {
			return nil, &MalformedURLError{Base: base.String(), Href: href, Err: err}
		}
		return u, nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil, &MalformedURLError{Base: base.String(), Href: href, Err: err}
	}
	u := base.ResolveReference(ref)
	normalize(u)
	return u, nil
}

func normalize(u *url.URL) {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Host != "" && u.Opaque == "" && u.Path == "" {
		u.Path = "/"
	}
}

// ReadLines returns the non-blank lines of r with surrounding whitespace
// removed.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return lines, nil
}
