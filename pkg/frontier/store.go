// Package frontier holds the shared crawl state: the set of canonical
// identities discovered so far and the stack of discovered URLs that have not
// been fetched yet.
//
// Both structures sit behind one mutex. Inserting into the visited set and
// pushing onto the frontier must happen as a single step, otherwise two
// workers discovering the same page could both enqueue it.
package frontier

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/amosWeiskopf/linkcrawl/pkg/canon"
	"github.com/amosWeiskopf/linkcrawl/pkg/utils"
)

var (
	// ErrEmptySeedSet is returned by New when no seed URL remains after
	// deduplication.
	ErrEmptySeedSet = errors.New("seed set is empty")

	// ErrLockUnavailable is returned by mutating operations once a panic has
	// escaped a critical section and the state can no longer be trusted.
	ErrLockUnavailable = errors.New("frontier lock unavailable: state poisoned by an earlier panic")
)

// InvalidSeedURLError reports a seed string that is not an absolute URL.
type InvalidSeedURLError struct {
	Seed string
	Err  error
}

func (e *InvalidSeedURLError) Error() string {
	return fmt.Sprintf("invalid seed URL %q: %v", e.Seed, e.Err)
}

func (e *InvalidSeedURLError) Unwrap() error {
	return e.Err
}

// Store is the visited set plus the frontier, safe for concurrent use.
type Store[K canon.Key] struct {
	canon canon.Canonicalizer[K]

	mu       sync.Mutex
	visited  map[K]struct{}
	frontier []*url.URL
	poisoned bool
}

// New parses and canonicalizes seeds and returns a store holding each
// distinct one in both the visited set and the frontier. The first seed with
// a given identity wins.
func New[K canon.Key](c canon.Canonicalizer[K], seeds []string) (*Store[K], error) {
	s := &Store[K]{
		canon:   c,
		visited: make(map[K]struct{}, len(seeds)),
	}

	for _, raw := range seeds {
		u, err := utils.ParseURL(raw)
		if err != nil {
			return nil, &InvalidSeedURLError{Seed: raw, Err: err}
		}
		if _, err := s.Offer(u); err != nil {
			return nil, err
		}
	}

	if len(s.visited) == 0 {
		return nil, ErrEmptySeedSet
	}
	return s, nil
}

// locked runs fn under the store mutex. A panic leaving fn poisons the store
// before it propagates.
func (s *Store[K]) locked(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return ErrLockUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			panic(r)
		}
	}()

	fn()
	return nil
}

// TakeNext removes and returns one URL from the frontier. The boolean is
// false when the frontier is empty.
func (s *Store[K]) TakeNext() (*url.URL, bool, error) {
	var next *url.URL
	err := s.locked(func() {
		n := len(s.frontier)
		if n == 0 {
			return
		}
		next = s.frontier[n-1]
		s.frontier[n-1] = nil
		s.frontier = s.frontier[:n-1]
	})
	if err != nil {
		return nil, false, err
	}
	return next, next != nil, nil
}

// Offer records u if its canonical identity has not been seen and pushes it
// onto the frontier. It reports whether u was new.
func (s *Store[K]) Offer(u *url.URL) (bool, error) {
	var added bool
	err := s.locked(func() {
		key := s.canon.Canonicalize(u)
		if _, seen := s.visited[key]; seen {
			return
		}
		s.visited[key] = struct{}{}
		s.frontier = append(s.frontier, u)
		added = true
	})
	return added, err
}

// Size returns the number of distinct identities discovered so far.
// It returns 0 if the store is poisoned.
func (s *Store[K]) Size() int {
	var n int
	if err := s.locked(func() { n = len(s.visited) }); err != nil {
		return 0
	}
	return n
}

// Pending returns the number of discovered URLs not yet taken.
// It returns 0 if the store is poisoned.
func (s *Store[K]) Pending() int {
	var n int
	if err := s.locked(func() { n = len(s.frontier) }); err != nil {
		return 0
	}
	return n
}

// Snapshot returns the discovered identities ordered by display form.
// It returns nil if the store is poisoned.
func (s *Store[K]) Snapshot() []K {
	var keys []K
	err := s.locked(func() {
		keys = make([]K, 0, len(s.visited))
		for k := range s.visited {
			keys = append(keys, k)
		}
	})
	if err != nil {
		return nil
	}
	slices.SortFunc(keys, func(a, b K) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

// Links returns Snapshot rendered as display strings.
func (s *Store[K]) Links() []string {
	keys := s.Snapshot()
	links := make([]string, len(keys))
	for i, k := range keys {
		links[i] = k.String()
	}
	return links
}
