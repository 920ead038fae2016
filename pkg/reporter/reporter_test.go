package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/amosWeiskopf/linkcrawl/internal/models"
)

func sampleResult() *models.CrawlResult {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &models.CrawlResult{
		RunID:          "run-1",
		Strategy:       "standard",
		Seeds:          []string{"https://a.test/"},
		Links:          []string{"https://a.test/", "https://a.test/b"},
		TotalLinks:     2,
		PagesFetched:   2,
		PeakInFlight:   1,
		MaxConcurrency: 4,
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
		Summary: &models.Summary{
			Hosts:   []models.HostCount{{Name: "a.test", Count: 2}},
			Domains: []models.HostCount{{Name: "a.test", Count: 2}},
		},
	}
}

func TestGenerateReportText(t *testing.T) {
	out, err := New().GenerateReport(sampleResult(), FormatText)
	require.NoError(t, err)
	assert.Equal(t, "[2]:\nhttps://a.test/\nhttps://a.test/b\n", out)
}

func TestGenerateReportTextEmpty(t *testing.T) {
	out, err := New().GenerateReport(&models.CrawlResult{}, FormatText)
	require.NoError(t, err)
	assert.Equal(t, "[0]:\n", out)
}

func TestGenerateReportList(t *testing.T) {
	out, err := New().GenerateReport(sampleResult(), "LIST")
	require.NoError(t, err)
	assert.Equal(t, "https://a.test/\nhttps://a.test/b\n", out)
}

func TestGenerateReportJSON(t *testing.T) {
	out, err := New().GenerateReport(sampleResult(), FormatJSON)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, float64(2), got["total_links"])
	assert.Contains(t, got, "summary")
}

func TestGenerateReportYAML(t *testing.T) {
	out, err := New().GenerateReport(sampleResult(), FormatYAML)
	require.NoError(t, err)

	var got struct {
		RunID string   `yaml:"run_id"`
		Links []string `yaml:"links"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, sampleResult().Links, got.Links)
}

func TestGenerateReportMarkdown(t *testing.T) {
	out, err := New().GenerateReport(sampleResult(), FormatMarkdown)
	require.NoError(t, err)

	assert.Contains(t, out, "# Crawl Report")
	assert.Contains(t, out, "`run-1`")
	assert.Contains(t, out, "## Domains")
	assert.Contains(t, out, "```mermaid")
	assert.Contains(t, out, "- `https://a.test/b`")
	assert.Contains(t, out, "1.5s")
}

func TestGenerateReportMarkdownNoLinks(t *testing.T) {
	out, err := New().GenerateReport(&models.CrawlResult{}, FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, out, "No links discovered.")
	assert.NotContains(t, out, "## Domains")
}

func TestGenerateReportXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().Write(&buf, sampleResult(), FormatXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Links")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"#", "URL", "Host"},
		{"1", "https://a.test/", "a.test"},
		{"2", "https://a.test/b", "a.test"},
	}, rows)

	info, err := f.GetRows("Run")
	require.NoError(t, err)
	assert.Equal(t, []string{"Run ID", "run-1"}, info[0])
}

func TestGenerateReportUnsupported(t *testing.T) {
	_, err := New().GenerateReport(sampleResult(), "html")
	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWritePropagatesErrors(t *testing.T) {
	for _, format := range Formats {
		t.Run(format, func(t *testing.T) {
			assert.Error(t, New().Write(failingWriter{}, sampleResult(), format))
		})
	}
}

func TestSupports(t *testing.T) {
	assert.True(t, Supports("json"))
	assert.False(t, Supports("sqlite"))

	var buf bytes.Buffer
	require.NoError(t, New().Write(&buf, sampleResult(), FormatList))
	assert.NotEmpty(t, buf.String())
}
