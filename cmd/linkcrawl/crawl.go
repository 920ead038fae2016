package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/linkcrawl/internal/config"
	"github.com/amosWeiskopf/linkcrawl/internal/database"
	"github.com/amosWeiskopf/linkcrawl/internal/models"
	"github.com/amosWeiskopf/linkcrawl/pkg/analyzer"
	"github.com/amosWeiskopf/linkcrawl/pkg/canon"
	"github.com/amosWeiskopf/linkcrawl/pkg/crawler"
	"github.com/amosWeiskopf/linkcrawl/pkg/extractor"
	"github.com/amosWeiskopf/linkcrawl/pkg/fetcher"
	"github.com/amosWeiskopf/linkcrawl/pkg/frontier"
	"github.com/amosWeiskopf/linkcrawl/pkg/reporter"
	"github.com/amosWeiskopf/linkcrawl/pkg/utils"
)

var (
	errNoSeeds          = errors.New("no seeds: pass seed URLs as arguments or use --seeds-file")
	errConflictingSeeds = errors.New("seed URL arguments and --seeds-file cannot be used together")
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [URL...]",
		Short: "Discover every link reachable from the seed URLs",
		Long: `Crawl fetches each seed, extracts the links on it, and keeps fetching
newly discovered links until none are left. The run stops at the first
error: an unreachable page, a non-text response, or a malformed link
(unless --skip-malformed is set).

On the console the result is a "[count]:" line followed by one link per
line. With --output the links are written to the file, one per line.`,
		RunE: runCrawlCmd,
	}

	flags := cmd.Flags()
	flags.IntP("max-concurrency", "j", 0, "Maximum number of pages fetched at once (0 = unbounded)")
	flags.BoolP("quiet", "q", false, "Do not print a '+' per fetched page")
	flags.StringP("seeds-file", "f", "", "Read seed URLs from a file, one per line")
	flags.StringP("output", "o", "", "Write results to a file instead of stdout")
	flags.String("format", "", "Output format (text, list, json, yaml, markdown, xlsx, sqlite)")
	flags.String("strategy", canon.StrategyStandard, "Canonicalization strategy (standard, identity)")
	flags.Bool("skip-malformed", false, "Log and skip links that cannot be resolved instead of failing")
	flags.StringSlice("schemes", []string{"http", "https"}, "Only record and follow links with these schemes; others such as mailto: are dropped (empty keeps all, and a non-http link then fails the crawl)")
	flags.String("selector", "", "CSS selector for link elements (default: every <a href>)")
	flags.Bool("summary", false, "Add per-host and per-domain link counts to structured output")
	flags.String("user-agent", "linkcrawl/1.0", "User-Agent header")
	flags.Duration("timeout", 0, "Per-request timeout (default from config, 15s)")
	flags.Float64("rate-limit", 0, "Maximum requests per second across all hosts (0 = unlimited)")
	flags.Int("retries", 0, "Extra attempts after a network error or 5xx response")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := setupLogger(cfg, verbose, cmd.ErrOrStderr())

	seedsFile, _ := cmd.Flags().GetString("seeds-file")
	seeds, err := collectSeeds(args, seedsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress io.Writer
	if !cfg.Crawler.Quiet {
		progress = cmd.OutOrStdout()
	}

	result, err := runCrawl(ctx, cfg, seeds, progress, logger)
	if err != nil {
		return err
	}

	if cfg.Output.Summary {
		analyzer.New().Analyze(result)
	}
	return writeResult(cmd.Context(), cfg, result, cmd.OutOrStdout(), logger)
}

// collectSeeds returns the inline seeds or the lines of seedsFile; exactly
// one source must be given.
func collectSeeds(args []string, seedsFile string) ([]string, error) {
	switch {
	case len(args) > 0 && seedsFile != "":
		return nil, errConflictingSeeds
	case len(args) > 0:
		return args, nil
	case seedsFile == "":
		return nil, errNoSeeds
	}

	f, err := os.Open(seedsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open seeds file: %w", err)
	}
	defer f.Close()

	seeds, err := utils.ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read seeds file: %w", err)
	}
	return seeds, nil
}

// runCrawl builds the crawl pipeline from cfg and runs it.
func runCrawl(ctx context.Context, cfg *config.Config, seeds []string, progress io.Writer, logger *slog.Logger) (*models.CrawlResult, error) {
	f, err := fetcher.New(fetcher.Options{
		UserAgent:         cfg.Fetcher.UserAgent,
		Timeout:           cfg.Fetcher.Timeout,
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
		Burst:             cfg.Fetcher.Burst,
		Retries:           cfg.Fetcher.Retries,
		RetryBackoff:      cfg.Fetcher.RetryBackoff,
		MaxBodyBytes:      cfg.Fetcher.MaxBodyBytes,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}
	x, err := extractor.New(extractor.WithSelector(cfg.Crawler.Selector))
	if err != nil {
		return nil, err
	}

	opts := crawler.Options{
		MaxConcurrency: cfg.Crawler.MaxConcurrency,
		SkipMalformed:  cfg.Crawler.SkipMalformed,
		Progress:       progress,
		Logger:         logger,
		StrategyName:   cfg.Crawler.Strategy,
	}
	if len(cfg.Crawler.Schemes) > 0 {
		opts.Filter = crawler.SchemeFilter(cfg.Crawler.Schemes...)
	}

	switch cfg.Crawler.Strategy {
	case canon.StrategyIdentity:
		return crawlWith[canon.Exact](ctx, canon.Identity{}, seeds, f, x, opts)
	default:
		return crawlWith[canon.Unified](ctx, canon.Standard{}, seeds, f, x, opts)
	}
}

func crawlWith[K canon.Key](ctx context.Context, c canon.Canonicalizer[K], seeds []string, f crawler.PageFetcher, x crawler.AnchorExtractor, opts crawler.Options) (*models.CrawlResult, error) {
	store, err := frontier.New(c, seeds)
	if err != nil {
		return nil, err
	}
	return crawler.New(store, f, x, opts).Crawl(ctx)
}

// writeResult renders result to the configured destination.
func writeResult(ctx context.Context, cfg *config.Config, result *models.CrawlResult, stdout io.Writer, logger *slog.Logger) error {
	format := cfg.OutputFormat()

	if format == config.FormatSQLite {
		db, err := database.Open(cfg.Output.Path, database.DefaultOptions())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveResult(ctx, result); err != nil {
			return err
		}
		logger.Info("results saved", "path", cfg.Output.Path, "run_id", result.RunID, "links", result.TotalLinks)
		return nil
	}

	r := reporter.New()
	if cfg.Output.Path == "" {
		return r.Write(stdout, result, format)
	}

	out, err := os.Create(cfg.Output.Path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := r.Write(out, result, format); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	logger.Info("results written", "path", cfg.Output.Path, "format", format, "links", result.TotalLinks)
	return nil
}
