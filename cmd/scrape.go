package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webharvest/webharvest/internal/config"
	"github.com/webharvest/webharvest/internal/extract"
	"github.com/webharvest/webharvest/internal/fetch"
	"github.com/webharvest/webharvest/internal/render"
	"github.com/webharvest/webharvest/internal/store"
)

// newScrapeCmd creates the 'scrape' subcommand: fetch each URL politely,
// extract fields, and persist the results.
func newScrapeCmd() *cobra.Command {
	var (
		inputFile  string
		parserName string
		formatFlag string
		failFast   bool
	)

	cmd := &cobra.Command{
		Use:   "scrape [urls...]",
		Short: "Fetch URLs and extract structured fields",
		Long: `Fetches the given URLs (or URLs read from --input, one per line)
through the polite-fetch engine and extracts text, links, tables, and
metadata. Results are written to the configured output directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			urls := args
			if inputFile != "" {
				fromFile, err := fetch.ReadURLsFromFile(inputFile)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}
			if len(urls) == 0 {
				return errors.New("no URLs given: pass them as arguments or via --input")
			}
			if failFast {
				cfg.Parallel.FailFast = true
			}
			if formatFlag != "" {
				cfg.Output.Format = formatFlag
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runScrape(ctx, cfg, logger, urls, parserName)
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "file with URLs, one per line")
	cmd.Flags().StringVarP(&parserName, "parser", "p", "", "named parser from the registry (default: generic fields)")
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "output format: json, csv, yaml, xlsx, sqlite")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop on the first unrecoverable failure")
	return cmd
}

func runScrape(ctx context.Context, cfg config.Config, logger *zap.Logger, urls []string, parserName string) error {
	engine := fetch.NewEngine(fetch.EngineConfig{
		RespectRobots:      cfg.Scraper.RespectRobots,
		InsecureSkipVerify: !cfg.Scraper.VerifySSL,
		RequestTimeout:     cfg.Scraper.RequestTimeout,
		MaxRetries:         cfg.Scraper.MaxRetries,
		UserAgents:         cfg.Scraper.UserAgents,
		GlobalRPS:          cfg.Scraper.GlobalRPS,
		RateLimiter: fetch.RateLimiterConfig{
			DefaultDelay:  cfg.Scraper.DefaultDelay,
			BackoffFactor: cfg.Scraper.BackoffFactor,
			Jitter:        cfg.Scraper.Jitter,
		},
	}, logger)
	defer engine.Close()

	var renderer render.Renderer = render.Noop{}
	if cfg.Render.Enabled {
		chrome, err := render.NewChromedp(render.Config{
			NavTimeout:  cfg.Render.NavTimeout,
			MaxParallel: cfg.Render.MaxParallel,
		}, logger)
		if err != nil {
			return fmt.Errorf("start renderer: %w", err)
		}
		renderer = chrome
	}
	defer func() { _ = renderer.Close() }()

	parser := extract.DefaultParser()
	if parserName != "" {
		registered, ok := parsers.Lookup(parserName)
		if !ok {
			return fmt.Errorf("unknown parser %q (registered: %v)", parserName, parsers.Names())
		}
		parser = registered
	}

	coordinator := fetch.NewCoordinator(fetch.CoordinatorConfig{
		MaxWorkers:  cfg.Parallel.MaxWorkers,
		TaskTimeout: cfg.Parallel.TaskTimeout,
		BatchDelay:  cfg.Parallel.BatchDelay,
		FailFast:    cfg.Parallel.FailFast,
	}, logger)

	runID := uuid.NewString()
	outcomes := coordinator.Process(ctx, urls, func(ctx context.Context, url string) (any, error) {
		return scrapeOne(ctx, engine, renderer, parser, cfg.Render.Enabled, url)
	})

	return persistOutcomes(ctx, cfg.Output, logger, runID, outcomes)
}

type pageResult struct {
	statusCode int
	fields     store.Record
}

func scrapeOne(
	ctx context.Context,
	engine *fetch.Engine,
	renderer render.Renderer,
	parser extract.Parser,
	renderEnabled bool,
	url string,
) (any, error) {
	result, err := engine.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	html := string(result.Body)
	if renderEnabled {
		rendered, rerr := renderer.Render(ctx, url)
		if rerr != nil {
			return nil, fmt.Errorf("render: %w", rerr)
		}
		html = rendered
	}

	fields, err := parser.Parse(html, result.URL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return pageResult{statusCode: result.StatusCode, fields: fields}, nil
}

func persistOutcomes(
	ctx context.Context,
	out config.OutputConfig,
	logger *zap.Logger,
	runID string,
	outcomes []fetch.Outcome,
) error {
	pages := make([]store.Page, 0, len(outcomes))
	records := make([]store.Record, 0, len(outcomes))
	failures := 0
	now := time.Now()

	for _, o := range outcomes {
		page := store.Page{RunID: runID, URL: o.URL, FetchedAt: now}
		if o.Err != nil {
			failures++
			page.Error = o.Err.Error()
			records = append(records, store.Record{"url": o.URL, "error": o.Err.Error()})
		} else {
			pr := o.Value.(pageResult)
			page.StatusCode = pr.statusCode
			page.Fields = pr.fields
			records = append(records, pr.fields)
		}
		pages = append(pages, page)
	}

	if err := os.MkdirAll(out.Dir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if out.Format == "sqlite" {
		db, err := store.Open(filepath.Join(out.Dir, out.DBFile))
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := db.SavePages(ctx, pages); err != nil {
			return err
		}
		logger.Info("results saved",
			zap.String("db", db.Path()),
			zap.String("run_id", runID),
			zap.Int("pages", len(pages)),
			zap.Int("failures", failures),
		)
		return nil
	}

	format := store.Format(out.Format)
	path := filepath.Join(out.Dir, "scrape-"+now.Format("20060102-150405")+store.Ext(format))
	f, err := os.Create(path) // #nosec G304 -- operator-configured output dir
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w, err := store.NewWriter(f, format)
	if err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.Info("results saved",
		zap.String("file", path),
		zap.Int("records", len(records)),
		zap.Int("failures", failures),
	)
	return nil
}
