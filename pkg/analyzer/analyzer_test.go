package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/linkcrawl/internal/models"
)

func TestSummarize(t *testing.T) {
	links := []string{
		"https://www.example.co.uk/",
		"https://www.example.co.uk/a",
		"https://blog.example.co.uk/post",
		"https://a.test/",
		"http://127.0.0.1:8080/x",
		"mailto:someone@a.test",
	}

	summary := New().Summarize(links)
	require.NotNil(t, summary)

	assert.Equal(t, []models.HostCount{
		{Name: "www.example.co.uk", Count: 2},
		{Name: "127.0.0.1", Count: 1},
		{Name: "a.test", Count: 1},
		{Name: "blog.example.co.uk", Count: 1},
		{Name: "mailto:", Count: 1},
	}, summary.Hosts)

	assert.Equal(t, []models.HostCount{
		{Name: "example.co.uk", Count: 3},
		{Name: "127.0.0.1", Count: 1},
		{Name: "a.test", Count: 1},
		{Name: "mailto:", Count: 1},
	}, summary.Domains)
}

func TestSummarizeTopN(t *testing.T) {
	a := NewWithConfig(&Config{TopN: 1})
	summary := a.Summarize([]string{"https://a.test/", "https://b.test/", "https://b.test/x"})
	assert.Equal(t, []models.HostCount{{Name: "b.test", Count: 2}}, summary.Hosts)
}

func TestAnalyzeAttachesSummary(t *testing.T) {
	result := &models.CrawlResult{Links: []string{"https://a.test/"}}
	summary := New().Analyze(result)
	assert.Same(t, summary, result.Summary)
	assert.Equal(t, 1, summary.Hosts[0].Count)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := New().Summarize(nil)
	assert.Empty(t, summary.Hosts)
	assert.Empty(t, summary.Domains)
}
