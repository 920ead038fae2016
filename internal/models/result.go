package models

import "time"

// CrawlResult describes a finished crawl run.
type CrawlResult struct {
	RunID          string    `json:"run_id" yaml:"run_id"`
	Strategy       string    `json:"strategy" yaml:"strategy"`
	Seeds          []string  `json:"seeds" yaml:"seeds"`
	Links          []string  `json:"links" yaml:"links"`
	TotalLinks     int       `json:"total_links" yaml:"total_links"`
	PagesFetched   int       `json:"pages_fetched" yaml:"pages_fetched"`
	PeakInFlight   int       `json:"peak_in_flight" yaml:"peak_in_flight"`
	MaxConcurrency int       `json:"max_concurrency" yaml:"max_concurrency"`
	StartedAt      time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time `json:"finished_at" yaml:"finished_at"`
	Summary        *Summary  `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Duration returns how long the run took.
func (r *CrawlResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary groups discovered links by where they point.
type Summary struct {
	Hosts   []HostCount `json:"hosts" yaml:"hosts"`
	Domains []HostCount `json:"domains" yaml:"domains"`
}

// HostCount is a name with the number of links under it.
type HostCount struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}
