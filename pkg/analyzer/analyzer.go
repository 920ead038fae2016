package analyzer

import (
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/amosWeiskopf/linkcrawl/internal/models"
)

// Analyzer groups discovered links by host and registrable domain
type Analyzer struct {
	config *Config
}

// Config holds analyzer configuration
type Config struct {
	// TopN caps each list in the summary, 0 for no cap
	TopN int
}

// New creates a new Analyzer instance
func New() *Analyzer {
	return &Analyzer{config: &Config{}}
}

// NewWithConfig creates an Analyzer with custom configuration
func NewWithConfig(config *Config) *Analyzer {
	return &Analyzer{config: config}
}

// Analyze attaches a summary of result.Links to result and returns it
func (a *Analyzer) Analyze(result *models.CrawlResult) *models.Summary {
	result.Summary = a.Summarize(result.Links)
	return result.Summary
}

// Summarize counts links per host and per registrable domain. Links without
// a host, such as mailto: links, are counted under their scheme.
func (a *Analyzer) Summarize(links []string) *models.Summary {
	hosts := make(map[string]int)
	domains := make(map[string]int)

	for _, link := range links {
		host := hostOf(link)
		hosts[host]++
		domains[registrableDomain(host)]++
	}

	return &models.Summary{
		Hosts:   a.rank(hosts),
		Domains: a.rank(domains),
	}
}

// rank orders counts by descending count, then by name
func (a *Analyzer) rank(counts map[string]int) []models.HostCount {
	ranked := make([]models.HostCount, 0, len(counts))
	for name, n := range counts {
		ranked = append(ranked, models.HostCount{Name: name, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if a.config.TopN > 0 && len(ranked) > a.config.TopN {
		ranked = ranked[:a.config.TopN]
	}
	return ranked
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "(invalid)"
	}
	if u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	if u.Scheme != "" {
		return u.Scheme + ":"
	}
	return "(none)"
}

// registrableDomain returns the eTLD+1 of host, or host itself when it has
// none (IP addresses, localhost, scheme placeholders)
func registrableDomain(host string) string {
	if strings.HasSuffix(host, ":") || strings.HasPrefix(host, "(") || net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
