package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/amosWeiskopf/linkcrawl/internal/models"
)

// Output formats understood by the Reporter
const (
	FormatText     = "text"
	FormatList     = "list"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatMarkdown = "markdown"
	FormatXLSX     = "xlsx"
)

// Formats lists the supported formats
var Formats = []string{FormatText, FormatList, FormatJSON, FormatYAML, FormatMarkdown, FormatXLSX}

// Reporter renders crawl results in various formats
type Reporter struct {
	// pieSlices caps the domains shown in the markdown chart
	pieSlices int
}

// New creates a new Reporter instance
func New() *Reporter {
	return &Reporter{pieSlices: 8}
}

// Supports reports whether format is one of Formats
func Supports(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// GenerateReport renders result in the specified format
func (r *Reporter) GenerateReport(result *models.CrawlResult, format string) (string, error) {
	var buf bytes.Buffer
	if err := r.Write(&buf, result, format); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Write renders result to w in the specified format
func (r *Reporter) Write(w io.Writer, result *models.CrawlResult, format string) error {
	switch strings.ToLower(format) {
	case FormatText:
		return r.writeText(w, result)
	case FormatList:
		return r.writeList(w, result)
	case FormatJSON:
		return r.writeJSON(w, result)
	case FormatYAML:
		return r.writeYAML(w, result)
	case FormatMarkdown:
		return r.writeMarkdown(w, result)
	case FormatXLSX:
		return r.writeXLSX(w, result)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// writeText writes the link count header followed by one link per line
func (r *Reporter) writeText(w io.Writer, result *models.CrawlResult) error {
	if _, err := fmt.Fprintf(w, "[%d]:\n", len(result.Links)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return r.writeList(w, result)
}

// writeList writes one link per line
func (r *Reporter) writeList(w io.Writer, result *models.CrawlResult) error {
	for _, link := range result.Links {
		if _, err := io.WriteString(w, link+"\n"); err != nil {
			return fmt.Errorf("failed to write link: %w", err)
		}
	}
	return nil
}

// writeJSON creates a JSON formatted report
func (r *Reporter) writeJSON(w io.Writer, result *models.CrawlResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *Reporter) writeYAML(w io.Writer, result *models.CrawlResult) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// writeMarkdown creates a Markdown formatted report
func (r *Reporter) writeMarkdown(w io.Writer, result *models.CrawlResult) error {
	md := markdown.NewMarkdown(w)

	md.H1("Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + result.RunID + "`"},
			{"Strategy", result.Strategy},
			{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", result.Duration().String()},
			{"Pages Fetched", strconv.Itoa(result.PagesFetched)},
			{"Peak In Flight", strconv.Itoa(result.PeakInFlight)},
			{"Links", strconv.Itoa(result.TotalLinks)},
		},
	})
	md.PlainText("")

	md.H2("Seeds")
	md.PlainText("")
	md.BulletList(codeSpans(result.Seeds)...)
	md.PlainText("")

	if result.Summary != nil && len(result.Summary.Domains) > 0 {
		r.writeSummary(md, result.Summary)
	}

	md.H2("Links")
	md.PlainText("")
	if len(result.Links) == 0 {
		md.PlainText("No links discovered.")
	} else {
		md.BulletList(codeSpans(result.Links)...)
	}
	md.PlainText("")

	return md.Build()
}

func (r *Reporter) writeSummary(md *markdown.Markdown, summary *models.Summary) {
	md.H2("Domains")
	md.PlainText("")

	rows := make([][]string, 0, len(summary.Domains))
	for _, d := range summary.Domains {
		rows = append(rows, []string{d.Name, strconv.Itoa(d.Count)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Links"},
		Rows:   rows,
	})
	md.PlainText("")

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Links by Domain"),
		piechart.WithShowData(true),
	)
	for i, d := range summary.Domains {
		if i == r.pieSlices {
			break
		}
		chart.LabelAndIntValue(d.Name, uint64(d.Count))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeXLSX writes a workbook with a Links sheet and a Run sheet
func (r *Reporter) writeXLSX(w io.Writer, result *models.CrawlResult) error {
	f := excelize.NewFile()
	defer f.Close()

	const links = "Links"
	if err := f.SetSheetName("Sheet1", links); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.SetSheetRow(links, "A1", &[]any{"#", "URL", "Host"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, link := range result.Links {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(links, cell, &[]any{i + 1, link, hostOf(link)}); err != nil {
			return fmt.Errorf("failed to write link: %w", err)
		}
	}

	const run = "Run"
	if _, err := f.NewSheet(run); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	rows := [][]any{
		{"Run ID", result.RunID},
		{"Strategy", result.Strategy},
		{"Started", result.StartedAt.Format(time.RFC3339)},
		{"Duration", result.Duration().String()},
		{"Pages Fetched", result.PagesFetched},
		{"Peak In Flight", result.PeakInFlight},
		{"Links", result.TotalLinks},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(run, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("failed to write run info: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func codeSpans(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = "`" + s + "`"
	}
	return out
}
