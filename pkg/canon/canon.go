package canon

import (
	"fmt"
	"net/url"
	"strings"
)

// Strategy names accepted by Display and the --strategy flag.
const (
	StrategyStandard = "standard"
	StrategyIdentity = "identity"
)

// Key is a canonical URL identity. Two URLs with equal keys are the same page
// and are fetched at most once. String returns a displayable URL form.
type Key interface {
	comparable
	String() string
}

// Canonicalizer maps a parsed URL to its canonical identity.
// Implementations must be pure: no network access, no mutable state.
type Canonicalizer[K Key] interface {
	Canonicalize(u *url.URL) K
}

// Exact is the identity produced by the Identity strategy: the URL's full
// string form.
type Exact string

func (e Exact) String() string { return string(e) }

// Identity treats URLs as distinct unless their string forms match exactly.
type Identity struct{}

// Canonicalize returns the URL's serialized form.
func (Identity) Canonicalize(u *url.URL) Exact {
	return Exact(u.String())
}

// Unified is the identity produced by the Standard strategy: the URL with its
// scheme prefix and fragment removed.
type Unified struct {
	rest string
}

// String reconstructs a displayable URL by prefixing https://.
// The scheme is not recoverable, so http URLs are shown as https.
func (u Unified) String() string {
	return "https://" + u.rest
}

// Standard ignores the scheme and the fragment when comparing URLs.
type Standard struct{}

// Canonicalize strips everything up to and including the first "://" and
// everything from the first "#" on.
func (Standard) Canonicalize(u *url.URL) Unified {
	s := u.String()
	if _, rest, ok := strings.Cut(s, "://"); ok {
		s = rest
	}
	s, _, _ = strings.Cut(s, "#")
	return Unified{rest: s}
}

// ValidateName reports whether name is a known strategy.
func ValidateName(name string) error {
	switch strings.ToLower(name) {
	case StrategyStandard, StrategyIdentity:
		return nil
	default:
		return fmt.Errorf("unknown canonicalization strategy %q (want %q or %q)", name, StrategyStandard, StrategyIdentity)
	}
}

// Display canonicalizes u with the named strategy and returns the display
// form. It is used where the key type does not matter, e.g. the canon command.
func Display(name string, u *url.URL) (string, error) {
	switch strings.ToLower(name) {
	case StrategyStandard:
		return Standard{}.Canonicalize(u).String(), nil
	case StrategyIdentity:
		return Identity{}.Canonicalize(u).String(), nil
	default:
		return "", ValidateName(name)
	}
}
