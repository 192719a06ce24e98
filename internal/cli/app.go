package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/tengjizhang/feedexec/internal/config"
	"github.com/tengjizhang/feedexec/internal/dispatch"
	"github.com/tengjizhang/feedexec/internal/fetch"
	"github.com/tengjizhang/feedexec/internal/filter"
	"github.com/tengjizhang/feedexec/internal/logger"
)

// AppOptions are per-invocation switches that do not belong in the config.
type AppOptions struct {
	// DryRun lists matched items on out instead of running the command.
	DryRun bool
	// JSON renders the dry-run listing as a single JSON document.
	JSON bool
}

type App struct {
	cfg        config.Config
	opts       AppOptions
	out        io.Writer
	fetcher    *fetch.Fetcher
	filter     *filter.Filter
	dispatcher *dispatch.Dispatcher
}

// NewApp wires one run. out receives forwarded command output and the
// per-feed error lines.
func NewApp(cfg config.Config, out io.Writer, opts AppOptions) *App {
	return &App{
		cfg:  cfg,
		opts: opts,
		out:  out,
		fetcher: fetch.NewFetcher(fetch.Options{
			HTTPTimeout: cfg.HTTPTimeout,
			Concurrency: cfg.FetchConcurrency,
			UserAgent:   cfg.UserAgent,
		}),
		filter: filter.New(filter.Options{
			Timestamp: cfg.Timestamp,
			Keywords:  cfg.Keywords,
			Strict:    cfg.Strict,
		}),
		dispatcher: dispatch.New(cfg.Cmd, cfg.Args, out),
	}
}

// Run fetches every feed, then filters and dispatches feed by feed in
// configuration order. Feed failures are printed and skipped; any returned
// error aborts the run.
func (a *App) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{Feeds: len(a.cfg.URLs), Reports: make([]FeedReport, 0, len(a.cfg.URLs))}

	results := a.fetcher.FetchAllWithProgress(ctx, a.cfg.URLs, func(done, total int, result FetchResult) {
		if result.Err != nil {
			logger.L.Infow("feed failed", "progress", fmt.Sprintf("%d/%d", done, total), "url", result.URL, "error", result.Err)
			return
		}
		logger.L.Infow("feed fetched", "progress", fmt.Sprintf("%d/%d", done, total), "url", result.URL, "items", len(result.Channel.Items))
	})
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	stats.FeedErrors = lo.CountBy(results, func(r FetchResult) bool { return !r.OK() })

	var listed DryRunOutput
	for _, res := range results {
		if !res.OK() {
			msg := oneLine(res.Err.Error())
			stats.Reports = append(stats.Reports, FeedReport{URL: res.URL, Error: msg})
			if a.opts.DryRun && a.opts.JSON {
				listed.Errors = append(listed.Errors, FeedError{URL: res.URL, Error: msg})
				continue
			}
			fmt.Fprintf(a.out, "Error: %s\n", msg)
			continue
		}

		filtered, err := a.filter.Apply(res.Channel.Items)
		stats.Items += len(res.Channel.Items)
		stats.Skipped += filtered.Skipped
		if err != nil {
			return stats, fmt.Errorf("feed %s: %w", res.URL, err)
		}
		stats.Matched += len(filtered.Matched)
		stats.Reports = append(stats.Reports, FeedReport{
			URL:     res.URL,
			Title:   res.Channel.Title,
			Items:   len(res.Channel.Items),
			Matched: len(filtered.Matched),
			Skipped: filtered.Skipped,
		})
		logger.L.Debugw("feed filtered",
			"url", res.URL,
			"title", fallback(res.Channel.Title, res.URL),
			"items", len(res.Channel.Items),
			"matched", len(filtered.Matched),
			"skipped", filtered.Skipped,
		)

		if a.opts.DryRun {
			listed.Items = append(listed.Items, filtered.Matched...)
			continue
		}
		if !a.dispatcher.Enabled() {
			continue
		}
		for _, item := range filtered.Matched {
			if err := a.dispatcher.Dispatch(ctx, item); err != nil {
				return stats, err
			}
			stats.Dispatched++
		}
	}

	if a.opts.DryRun {
		if err := a.writeListing(listed); err != nil {
			return stats, err
		}
	}

	logger.L.Infow("run finished",
		"feeds", stats.Feeds,
		"feed_errors", stats.FeedErrors,
		"items", stats.Items,
		"matched", stats.Matched,
		"skipped", stats.Skipped,
		"dispatched", stats.Dispatched,
	)
	return stats, nil
}

func (a *App) writeListing(listed DryRunOutput) error {
	if a.opts.JSON {
		if listed.Items == nil {
			listed.Items = []Item{}
		}
		if listed.Errors == nil {
			listed.Errors = []FeedError{}
		}
		return writeJSON(a.out, listed)
	}
	writeItemsTable(a.out, listed.Items)
	return nil
}
